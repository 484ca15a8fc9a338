package graphstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 6, time.FixedZone("x", 3600))

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "a", "a"},
		{"bool", true, true},
		{"int", 3, int64(3)},
		{"int32", int32(-4), int64(-4)},
		{"float32", float32(0.5), 0.5},
		{"time", at, at.UnixNano()},
		{"time pointer", &at, at.UnixNano()},
		{"zero time", time.Time{}, nil},
		{"nil time pointer", (*time.Time)(nil), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Normalize([]string{"nope"})
	assert.Error(t, err)
}

func TestMatches(t *testing.T) {
	props := Properties{"name": "b", "n": int64(5), "f": 2.5, "ok": true}

	tests := []struct {
		name    string
		filters []Filter
		want    bool
	}{
		{"no filters", nil, true},
		{"string eq", []Filter{Eq("name", "b")}, true},
		{"string range", []Filter{Gt("name", "a"), Lt("name", "c")}, true},
		{"int vs float", []Filter{Gte("n", 5.0), Lte("n", 5)}, true},
		{"float vs int", []Filter{Gt("f", 2)}, true},
		{"bool", []Filter{Eq("ok", true)}, true},
		{"bool mismatch", []Filter{Eq("ok", false)}, false},
		{"kind mismatch", []Filter{Eq("name", 1)}, false},
		{"missing key", []Filter{Eq("absent", "x")}, false},
		{"one failing", []Filter{Eq("name", "b"), Gt("n", 5)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filters, err := NormalizeFilters(tt.filters)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Matches(props, filters))
		})
	}
}

func TestNormalizeFilters_Rejects(t *testing.T) {
	_, err := NormalizeFilters([]Filter{{Key: "k", Op: "like", Value: "x"}})
	assert.Error(t, err)

	_, err = NormalizeFilters([]Filter{Eq("k", nil)})
	assert.Error(t, err)
}

func TestProperties_Accessors(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	p := Properties{"s": "x", "i": int64(7), "f": 1.5, "t": at.UnixNano()}

	assert.Equal(t, "x", p.String("s"))
	assert.Equal(t, "", p.String("i"))
	i, ok := p.Int("f")
	assert.True(t, ok)
	assert.Equal(t, int64(1), i)
	f, ok := p.Float("i")
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)
	got, ok := p.Time("t")
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
	_, ok = p.Time("missing")
	assert.False(t, ok)

	c := p.Clone()
	c["s"] = "y"
	assert.Equal(t, "x", p.String("s"))
}
