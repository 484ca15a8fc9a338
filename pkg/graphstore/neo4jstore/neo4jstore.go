// Package neo4jstore implements graphstore on Neo4j.
//
// Every vertex is a :GraphVertex node and every edge a :GRAPH_EDGE
// relationship. Identity, type or label, and creation sequence are kept in
// reserved underscore properties next to the caller's properties.
package neo4jstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
)

const (
	keyID    = "_id"
	keyType  = "_type"
	keyLabel = "_label"
	keySeq   = "_seq"
)

// Store opens one explicit Neo4j transaction per graphstore.Tx.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// New wraps driver. The store takes ownership and closes it on Close.
func New(driver neo4j.DriverWithContext, database string, logger *zap.Logger) *Store {
	return &Store{driver: driver, database: database, logger: logger.Named("neo4jstore")}
}

var _ graphstore.Store = (*Store)(nil)

// EnsureSchema creates the uniqueness constraints and lookup indexes. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT graph_vertex_id_unique IF NOT EXISTS FOR (v:GraphVertex) REQUIRE v._id IS UNIQUE`,
		`CREATE INDEX graph_vertex_type IF NOT EXISTS FOR (v:GraphVertex) ON (v._type)`,
		`CREATE INDEX graph_edge_id IF NOT EXISTS FOR ()-[e:GRAPH_EDGE]-() ON (e._id)`,
		`CREATE INDEX graph_edge_label IF NOT EXISTS FOR ()-[e:GRAPH_EDGE]-() ON (e._label)`,
	}
	for _, q := range stmts {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			return fmt.Errorf("neo4jstore: schema: %w", err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return fmt.Errorf("neo4jstore: schema: %w", err)
		}
	}
	s.logger.Debug("Graph schema ensured")
	return nil
}

func (s *Store) Begin(ctx context.Context) (graphstore.Tx, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	ntx, err := session.BeginTransaction(ctx)
	if err != nil {
		_ = session.Close(ctx)
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &tx{session: session, tx: ntx}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

type tx struct {
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	done    bool
}

func (t *tx) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	if t.done {
		return nil, graphstore.ErrTxDone
	}
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return res.Collect(ctx)
}

const nextSeq = `
MERGE (s:GraphSequence {name: 'graph'})
ON CREATE SET s.value = 0
SET s.value = s.value + 1
`

func (t *tx) CreateVertex(ctx context.Context, vertexType string, props graphstore.Properties) (string, error) {
	if vertexType == "" {
		return "", fmt.Errorf("neo4jstore: vertex type is required")
	}
	normalized, err := normalizeUserProperties(props)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = t.run(ctx, nextSeq+`
WITH s
CREATE (v:GraphVertex {_id: $id, _type: $type, _seq: s.value})
SET v += $props
`, map[string]any{"id": id, "type": vertexType, "props": map[string]any(normalized)})
	if err != nil {
		return "", fmt.Errorf("create vertex: %w", err)
	}
	return id, nil
}

func (t *tx) GetVertex(ctx context.Context, id string) (*graphstore.Vertex, error) {
	records, err := t.run(ctx,
		`MATCH (v:GraphVertex {_id: $id}) RETURN properties(v) AS props`,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get vertex: %w", err)
	}
	if len(records) == 0 {
		return nil, graphstore.ErrNotFound
	}
	return vertexFromRecord(records[0])
}

func (t *tx) SetProperty(ctx context.Context, id, key string, value any) error {
	return t.setProperty(ctx,
		`MATCH (v:GraphVertex {_id: $id}) SET v += $patch RETURN v._id AS id`, id, key, value)
}

func (t *tx) SetEdgeProperty(ctx context.Context, edgeID, key string, value any) error {
	return t.setProperty(ctx,
		`MATCH ()-[e:GRAPH_EDGE {_id: $id}]->() SET e += $patch RETURN e._id AS id`, edgeID, key, value)
}

// setProperty relies on Cypher's map merge semantics: a null entry removes the property.
func (t *tx) setProperty(ctx context.Context, cypher, id, key string, value any) error {
	if reserved(key) {
		return fmt.Errorf("neo4jstore: property %q is reserved", key)
	}
	v, err := graphstore.Normalize(value)
	if err != nil {
		return err
	}
	records, err := t.run(ctx, cypher, map[string]any{"id": id, "patch": map[string]any{key: v}})
	if err != nil {
		return fmt.Errorf("set property %q: %w", key, err)
	}
	if len(records) == 0 {
		return graphstore.ErrNotFound
	}
	return nil
}

func (t *tx) RemoveVertex(ctx context.Context, id string) error {
	records, err := t.run(ctx,
		`MATCH (v:GraphVertex {_id: $id}) DETACH DELETE v RETURN count(*) AS n`,
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete vertex: %w", err)
	}
	if countOf(records) == 0 {
		return graphstore.ErrNotFound
	}
	return nil
}

func (t *tx) AddEdge(ctx context.Context, from, to, label string, props graphstore.Properties) (string, error) {
	if label == "" {
		return "", fmt.Errorf("neo4jstore: edge label is required")
	}
	normalized, err := normalizeUserProperties(props)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	records, err := t.run(ctx, `
MATCH (a:GraphVertex {_id: $from}), (b:GraphVertex {_id: $to})
`+nextSeq+`
WITH a, b, s
CREATE (a)-[e:GRAPH_EDGE {_id: $id, _label: $label, _seq: s.value}]->(b)
SET e += $props
RETURN e._id AS id
`, map[string]any{"from": from, "to": to, "id": id, "label": label, "props": map[string]any(normalized)})
	if err != nil {
		return "", fmt.Errorf("create edge: %w", err)
	}
	if len(records) == 0 {
		return "", graphstore.ErrNotFound
	}
	return id, nil
}

func (t *tx) RemoveEdge(ctx context.Context, edgeID string) error {
	records, err := t.run(ctx,
		`MATCH ()-[e:GRAPH_EDGE {_id: $id}]->() DELETE e RETURN count(*) AS n`,
		map[string]any{"id": edgeID})
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	if countOf(records) == 0 {
		return graphstore.ErrNotFound
	}
	return nil
}

func (t *tx) QueryVertices(ctx context.Context, vertexType string, filters []graphstore.Filter, limit int) ([]*graphstore.Vertex, error) {
	normalized, err := graphstore.NormalizeFilters(filters)
	if err != nil {
		return nil, err
	}
	params := map[string]any{"type": vertexType}
	var q strings.Builder
	q.WriteString(`MATCH (v:GraphVertex {_type: $type})`)
	if err := writeWhere(&q, "v", normalized, params); err != nil {
		return nil, err
	}
	q.WriteString(` RETURN properties(v) AS props ORDER BY v._seq`)
	writeLimit(&q, limit, params)

	records, err := t.run(ctx, q.String(), params)
	if err != nil {
		return nil, fmt.Errorf("query vertices: %w", err)
	}
	result := make([]*graphstore.Vertex, 0, len(records))
	for _, rec := range records {
		v, err := vertexFromRecord(rec)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func (t *tx) QueryEdges(ctx context.Context, vertexID string, dir graphstore.Direction, label string, filters []graphstore.Filter, limit int) ([]*graphstore.Edge, error) {
	normalized, err := graphstore.NormalizeFilters(filters)
	if err != nil {
		return nil, err
	}
	var pattern string
	switch dir {
	case graphstore.Outbound:
		pattern = `(v:GraphVertex {_id: $vid})-[e:GRAPH_EDGE {_label: $label}]->()`
	case graphstore.Inbound:
		pattern = `(v:GraphVertex {_id: $vid})<-[e:GRAPH_EDGE {_label: $label}]-()`
	case graphstore.Both:
		pattern = `(v:GraphVertex {_id: $vid})-[e:GRAPH_EDGE {_label: $label}]-()`
	default:
		return nil, fmt.Errorf("neo4jstore: unknown direction %d", dir)
	}

	params := map[string]any{"vid": vertexID, "label": label}
	var q strings.Builder
	q.WriteString(`MATCH ` + pattern)
	if err := writeWhere(&q, "e", normalized, params); err != nil {
		return nil, err
	}
	q.WriteString(` WITH DISTINCT e
RETURN properties(e) AS props, startNode(e)._id AS from, endNode(e)._id AS to
ORDER BY e._seq`)
	writeLimit(&q, limit, params)

	records, err := t.run(ctx, q.String(), params)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	result := make([]*graphstore.Edge, 0, len(records))
	for _, rec := range records {
		e, err := edgeFromRecord(rec)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return graphstore.ErrTxDone
	}
	t.done = true
	defer t.session.Close(ctx)
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
	defer t.session.Close(ctx)
	if err := t.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

var cypherOps = map[graphstore.Op]string{
	graphstore.OpEq:  "=",
	graphstore.OpGt:  ">",
	graphstore.OpGte: ">=",
	graphstore.OpLt:  "<",
	graphstore.OpLte: "<=",
}

// writeWhere appends filters with dynamic property access. Cypher yields null
// when kinds differ, so mismatched values never match.
func writeWhere(q *strings.Builder, variable string, filters []graphstore.Filter, params map[string]any) error {
	for i, f := range filters {
		op, ok := cypherOps[f.Op]
		if !ok {
			return fmt.Errorf("neo4jstore: unknown filter op %q", f.Op)
		}
		if i == 0 {
			q.WriteString(` WHERE `)
		} else {
			q.WriteString(` AND `)
		}
		k, v := fmt.Sprintf("fk%d", i), fmt.Sprintf("fv%d", i)
		fmt.Fprintf(q, `%s[$%s] %s $%s`, variable, k, op, v)
		params[k] = f.Key
		params[v] = f.Value
	}
	return nil
}

func writeLimit(q *strings.Builder, limit int, params map[string]any) {
	if limit > 0 {
		q.WriteString(` LIMIT $limit`)
		params["limit"] = int64(limit)
	}
}

func reserved(key string) bool {
	switch key {
	case keyID, keyType, keyLabel, keySeq:
		return true
	}
	return false
}

func normalizeUserProperties(props graphstore.Properties) (graphstore.Properties, error) {
	for k := range props {
		if reserved(k) {
			return nil, fmt.Errorf("neo4jstore: property %q is reserved", k)
		}
	}
	return graphstore.NormalizeAll(props)
}

func propsOf(rec *neo4j.Record) (map[string]any, error) {
	raw, ok := rec.Get("props")
	if !ok {
		return nil, fmt.Errorf("neo4jstore: record has no props")
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("neo4jstore: unexpected props type %T", raw)
	}
	return m, nil
}

// userProperties strips reserved keys and widens driver kinds to the normalized set.
func userProperties(m map[string]any) graphstore.Properties {
	props := make(graphstore.Properties, len(m))
	for k, v := range m {
		if reserved(k) {
			continue
		}
		if n, err := graphstore.Normalize(v); err == nil && n != nil {
			props[k] = n
		}
	}
	return props
}

func vertexFromRecord(rec *neo4j.Record) (*graphstore.Vertex, error) {
	m, err := propsOf(rec)
	if err != nil {
		return nil, err
	}
	id, _ := m[keyID].(string)
	typ, _ := m[keyType].(string)
	return &graphstore.Vertex{ID: id, Type: typ, Properties: userProperties(m)}, nil
}

func edgeFromRecord(rec *neo4j.Record) (*graphstore.Edge, error) {
	m, err := propsOf(rec)
	if err != nil {
		return nil, err
	}
	from, _ := rec.Get("from")
	to, _ := rec.Get("to")
	e := &graphstore.Edge{Properties: userProperties(m)}
	e.ID, _ = m[keyID].(string)
	e.Label, _ = m[keyLabel].(string)
	e.From, _ = from.(string)
	e.To, _ = to.(string)
	return e, nil
}

func countOf(records []*neo4j.Record) int64 {
	if len(records) == 0 {
		return 0
	}
	n, _ := records[0].Get("n")
	c, _ := n.(int64)
	return c
}
