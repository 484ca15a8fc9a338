// Package pgstore implements graphstore on PostgreSQL.
//
// Vertices and edges live in graph_vertices and graph_edges with their
// properties in a JSONB column. Filters are translated to JSONB operators
// with type guards so a comparison never casts a value of the wrong kind.
package pgstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
)

// Store is a graphstore backed by a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New wraps pool. The store takes ownership and closes it on Close.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger.Named("pgstore")}
}

var _ graphstore.Store = (*Store)(nil)

func (s *Store) Begin(ctx context.Context) (graphstore.Tx, error) {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &tx{tx: pgTx}, nil
}

func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

type tx struct {
	tx   pgx.Tx
	done bool
}

func (t *tx) check() error {
	if t.done {
		return graphstore.ErrTxDone
	}
	return nil
}

func (t *tx) CreateVertex(ctx context.Context, vertexType string, props graphstore.Properties) (string, error) {
	if err := t.check(); err != nil {
		return "", err
	}
	if vertexType == "" {
		return "", fmt.Errorf("pgstore: vertex type is required")
	}
	doc, err := encodeProperties(props)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = t.tx.Exec(ctx,
		`INSERT INTO graph_vertices (id, vertex_type, properties) VALUES ($1, $2, $3::jsonb)`,
		id, vertexType, doc)
	if err != nil {
		return "", fmt.Errorf("insert vertex: %w", err)
	}
	return id, nil
}

func (t *tx) GetVertex(ctx context.Context, id string) (*graphstore.Vertex, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	var (
		vertexType string
		raw        []byte
	)
	err := t.tx.QueryRow(ctx,
		`SELECT vertex_type, properties FROM graph_vertices WHERE id = $1`, id).
		Scan(&vertexType, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, graphstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vertex: %w", err)
	}
	props, err := decodeProperties(raw)
	if err != nil {
		return nil, err
	}
	return &graphstore.Vertex{ID: id, Type: vertexType, Properties: props}, nil
}

func (t *tx) SetProperty(ctx context.Context, id, key string, value any) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.setProperty(ctx, "graph_vertices", id, key, value)
}

func (t *tx) SetEdgeProperty(ctx context.Context, edgeID, key string, value any) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.setProperty(ctx, "graph_edges", edgeID, key, value)
}

func (t *tx) setProperty(ctx context.Context, table, id, key string, value any) error {
	v, err := graphstore.Normalize(value)
	if err != nil {
		return err
	}

	var query string
	args := []any{id, key}
	if v == nil {
		query = fmt.Sprintf(`UPDATE %s SET properties = properties - $2::text WHERE id = $1`, table)
	} else {
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode property %q: %w", key, err)
		}
		query = fmt.Sprintf(`UPDATE %s SET properties = properties || jsonb_build_object($2::text, $3::jsonb) WHERE id = $1`, table)
		args = append(args, string(encoded))
	}

	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set property %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return graphstore.ErrNotFound
	}
	return nil
}

func (t *tx) RemoveVertex(ctx context.Context, id string) error {
	if err := t.check(); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM graph_vertices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vertex: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return graphstore.ErrNotFound
	}
	return nil
}

func (t *tx) AddEdge(ctx context.Context, from, to, label string, props graphstore.Properties) (string, error) {
	if err := t.check(); err != nil {
		return "", err
	}
	if label == "" {
		return "", fmt.Errorf("pgstore: edge label is required")
	}
	var endpointsExist bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM graph_vertices WHERE id = $1)
		   AND EXISTS (SELECT 1 FROM graph_vertices WHERE id = $2)`, from, to).
		Scan(&endpointsExist)
	if err != nil {
		return "", fmt.Errorf("check edge endpoints: %w", err)
	}
	if !endpointsExist {
		return "", graphstore.ErrNotFound
	}

	doc, err := encodeProperties(props)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = t.tx.Exec(ctx,
		`INSERT INTO graph_edges (id, from_id, to_id, label, properties) VALUES ($1, $2, $3, $4, $5::jsonb)`,
		id, from, to, label, doc)
	if err != nil {
		return "", fmt.Errorf("insert edge: %w", err)
	}
	return id, nil
}

func (t *tx) RemoveEdge(ctx context.Context, edgeID string) error {
	if err := t.check(); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM graph_edges WHERE id = $1`, edgeID)
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return graphstore.ErrNotFound
	}
	return nil
}

func (t *tx) QueryVertices(ctx context.Context, vertexType string, filters []graphstore.Filter, limit int) ([]*graphstore.Vertex, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	normalized, err := graphstore.NormalizeFilters(filters)
	if err != nil {
		return nil, err
	}

	b := &queryBuilder{}
	b.sql.WriteString(`SELECT id, vertex_type, properties FROM graph_vertices WHERE vertex_type = `)
	b.sql.WriteString(b.arg(vertexType))
	if err := b.where(normalized); err != nil {
		return nil, err
	}
	b.sql.WriteString(` ORDER BY seq`)
	b.limit(limit)

	rows, err := t.tx.Query(ctx, b.sql.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("query vertices: %w", err)
	}
	defer rows.Close()

	var result []*graphstore.Vertex
	for rows.Next() {
		var (
			v   graphstore.Vertex
			raw []byte
		)
		if err := rows.Scan(&v.ID, &v.Type, &raw); err != nil {
			return nil, fmt.Errorf("scan vertex: %w", err)
		}
		if v.Properties, err = decodeProperties(raw); err != nil {
			return nil, err
		}
		result = append(result, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query vertices: %w", err)
	}
	return result, nil
}

func (t *tx) QueryEdges(ctx context.Context, vertexID string, dir graphstore.Direction, label string, filters []graphstore.Filter, limit int) ([]*graphstore.Edge, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	normalized, err := graphstore.NormalizeFilters(filters)
	if err != nil {
		return nil, err
	}

	b := &queryBuilder{}
	b.sql.WriteString(`SELECT id, from_id, to_id, label, properties FROM graph_edges WHERE label = `)
	b.sql.WriteString(b.arg(label))
	vertexArg := b.arg(vertexID)
	switch dir {
	case graphstore.Outbound:
		b.sql.WriteString(` AND from_id = ` + vertexArg)
	case graphstore.Inbound:
		b.sql.WriteString(` AND to_id = ` + vertexArg)
	case graphstore.Both:
		b.sql.WriteString(` AND (from_id = ` + vertexArg + ` OR to_id = ` + vertexArg + `)`)
	default:
		return nil, fmt.Errorf("pgstore: unknown direction %d", dir)
	}
	if err := b.where(normalized); err != nil {
		return nil, err
	}
	b.sql.WriteString(` ORDER BY seq`)
	b.limit(limit)

	rows, err := t.tx.Query(ctx, b.sql.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var result []*graphstore.Edge
	for rows.Next() {
		var (
			e   graphstore.Edge
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.Label, &raw); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if e.Properties, err = decodeProperties(raw); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	return result, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return graphstore.ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// queryBuilder accumulates SQL text and positional arguments.
type queryBuilder struct {
	sql  strings.Builder
	args []any
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *queryBuilder) limit(n int) {
	if n > 0 {
		b.sql.WriteString(` LIMIT ` + b.arg(n))
	}
}

var sqlOps = map[graphstore.Op]string{
	graphstore.OpEq:  "=",
	graphstore.OpGt:  ">",
	graphstore.OpGte: ">=",
	graphstore.OpLt:  "<",
	graphstore.OpLte: "<=",
}

// where appends one condition per filter. Equality is written as jsonb
// containment so the jsonb_path_ops index on properties serves it; range
// comparisons only match values of the filter's JSON type.
func (b *queryBuilder) where(filters []graphstore.Filter) error {
	for _, f := range filters {
		op, ok := sqlOps[f.Op]
		if !ok {
			return fmt.Errorf("pgstore: unknown filter op %q", f.Op)
		}
		switch f.Value.(type) {
		case string, bool, int64, float64:
		default:
			return fmt.Errorf("pgstore: unsupported filter value %T", f.Value)
		}
		if f.Op == graphstore.OpEq {
			doc, err := json.Marshal(map[string]any{f.Key: f.Value})
			if err != nil {
				return fmt.Errorf("pgstore: encode filter %q: %w", f.Key, err)
			}
			fmt.Fprintf(&b.sql, ` AND properties @> %s::jsonb`, b.arg(string(doc)))
			continue
		}
		key := b.arg(f.Key)
		switch v := f.Value.(type) {
		case string:
			fmt.Fprintf(&b.sql,
				` AND (CASE WHEN jsonb_typeof(properties->%[1]s) = 'string' THEN properties->>%[1]s END) COLLATE "C" %[2]s %[3]s::text`,
				key, op, b.arg(v))
		case bool:
			fmt.Fprintf(&b.sql,
				` AND (CASE WHEN jsonb_typeof(properties->%[1]s) = 'boolean' THEN (properties->>%[1]s)::boolean END) %[2]s %[3]s::boolean`,
				key, op, b.arg(v))
		case int64, float64:
			fmt.Fprintf(&b.sql,
				` AND (CASE WHEN jsonb_typeof(properties->%[1]s) = 'number' THEN (properties->>%[1]s)::numeric END) %[2]s %[3]s::numeric`,
				key, op, b.arg(fmt.Sprint(v)))
		}
	}
	return nil
}

func encodeProperties(props graphstore.Properties) (string, error) {
	normalized, err := graphstore.NormalizeAll(props)
	if err != nil {
		return "", err
	}
	doc, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}
	return string(doc), nil
}

// decodeProperties restores normalized kinds. Integral JSON numbers come back
// as int64 and the rest as float64.
func decodeProperties(raw []byte) (graphstore.Properties, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	props := make(graphstore.Properties, len(doc))
	for k, v := range doc {
		n, ok := v.(json.Number)
		if !ok {
			props[k] = v
			continue
		}
		if i, err := n.Int64(); err == nil {
			props[k] = i
			continue
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("decode property %q: %w", k, err)
		}
		props[k] = f
	}
	return props, nil
}
