package pgstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
)

func TestQueryBuilder_Where(t *testing.T) {
	b := &queryBuilder{}
	b.sql.WriteString(`SELECT id FROM graph_vertices WHERE vertex_type = `)
	b.sql.WriteString(b.arg("locality"))

	filters, err := graphstore.NormalizeFilters([]graphstore.Filter{
		graphstore.Eq("user_id", "u1"),
		graphstore.Eq("active", true),
		graphstore.Gte("arrival", 100),
	})
	require.NoError(t, err)
	require.NoError(t, b.where(filters))
	b.limit(5)

	sql := b.sql.String()
	assert.Contains(t, sql, `AND properties @> $2::jsonb AND properties @> $3::jsonb`)
	assert.Contains(t, sql, `jsonb_typeof(properties->$4) = 'number' THEN (properties->>$4)::numeric END) >= $5::numeric`)
	assert.Contains(t, sql, `LIMIT $6`)
	assert.NotContains(t, sql, `properties->>$2`, "equality must stay indexable")
	require.Len(t, b.args, 6)
	assert.Equal(t, "locality", b.args[0])
	assert.JSONEq(t, `{"user_id":"u1"}`, b.args[1].(string))
	assert.JSONEq(t, `{"active":true}`, b.args[2].(string))
	assert.Equal(t, []any{"arrival", "100", 5}, b.args[3:])
}

func TestQueryBuilder_WhereRanges(t *testing.T) {
	b := &queryBuilder{}
	filters, err := graphstore.NormalizeFilters([]graphstore.Filter{
		graphstore.Lt("name", "m"),
		graphstore.Gt("active", false),
		graphstore.Eq("arrival", int64(1714560000123456789)),
	})
	require.NoError(t, err)
	require.NoError(t, b.where(filters))

	sql := b.sql.String()
	assert.Contains(t, sql, `jsonb_typeof(properties->$1) = 'string' THEN properties->>$1 END) COLLATE "C" < $2::text`)
	assert.Contains(t, sql, `jsonb_typeof(properties->$3) = 'boolean' THEN (properties->>$3)::boolean END) > $4::boolean`)
	assert.Contains(t, sql, `AND properties @> $5::jsonb`)
	assert.JSONEq(t, `{"arrival":1714560000123456789}`, b.args[4].(string))
}

func TestQueryBuilder_WhereRejectsUnsupportedValue(t *testing.T) {
	b := &queryBuilder{}
	err := b.where([]graphstore.Filter{{Key: "tags", Op: graphstore.OpEq, Value: []string{"a"}}})
	assert.Error(t, err)
	assert.Empty(t, b.args)
}

func TestQueryBuilder_NoLimit(t *testing.T) {
	b := &queryBuilder{}
	b.limit(0)
	assert.Empty(t, b.sql.String())
	assert.Empty(t, b.args)
}

func TestDecodeProperties(t *testing.T) {
	props, err := decodeProperties([]byte(`{"name":"hall","floor":3,"distance":12.5,"active":true,"arrival":1714560000123456789}`))
	require.NoError(t, err)

	assert.Equal(t, "hall", props["name"])
	assert.Equal(t, int64(3), props["floor"])
	assert.Equal(t, 12.5, props["distance"])
	assert.Equal(t, true, props["active"])
	assert.Equal(t, int64(1714560000123456789), props["arrival"])
}

func TestEncodeProperties_DropsNil(t *testing.T) {
	doc, err := encodeProperties(graphstore.Properties{"a": 1, "b": nil})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, doc)

	_, err = encodeProperties(graphstore.Properties{"bad": struct{}{}})
	assert.Error(t, err)
}
