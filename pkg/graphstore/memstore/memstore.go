// Package memstore is an in-process graphstore backend.
//
// A transaction holds the store exclusively from Begin until Commit or Rollback,
// which makes every transaction serializable. Writes apply in place and are
// undo-logged so Rollback restores the previous state.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
)

// ErrClosed is returned by Begin after Close.
var ErrClosed = errors.New("memstore: closed")

type vertexRecord struct {
	seq   uint64
	typ   string
	props graphstore.Properties
}

type edgeRecord struct {
	seq   uint64
	from  string
	to    string
	label string
	props graphstore.Properties
}

// Store keeps the whole graph in maps.
type Store struct {
	sem chan struct{}

	seq      uint64
	closed   bool
	vertices map[string]*vertexRecord
	edges    map[string]*edgeRecord
	out      map[string]map[string]struct{}
	in       map[string]map[string]struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sem:      make(chan struct{}, 1),
		vertices: make(map[string]*vertexRecord),
		edges:    make(map[string]*edgeRecord),
		out:      make(map[string]map[string]struct{}),
		in:       make(map[string]map[string]struct{}),
	}
}

var _ graphstore.Store = (*Store)(nil)

// Begin waits until no other transaction is open, or ctx is done.
func (s *Store) Begin(ctx context.Context) (graphstore.Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.closed {
		<-s.sem
		return nil, ErrClosed
	}
	return &tx{s: s}, nil
}

// Close marks the store closed once in-flight transactions finish.
func (s *Store) Close(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.closed = true
	<-s.sem
	return nil
}

// Stats reports vertex and edge counts. Intended for tests.
func (s *Store) Stats() (vertices, edges int) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	return len(s.vertices), len(s.edges)
}

func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func (s *Store) link(id string, e *edgeRecord) {
	if s.out[e.from] == nil {
		s.out[e.from] = make(map[string]struct{})
	}
	if s.in[e.to] == nil {
		s.in[e.to] = make(map[string]struct{})
	}
	s.out[e.from][id] = struct{}{}
	s.in[e.to][id] = struct{}{}
	s.edges[id] = e
}

func (s *Store) unlink(id string) {
	e, ok := s.edges[id]
	if !ok {
		return
	}
	delete(s.out[e.from], id)
	delete(s.in[e.to], id)
	delete(s.edges, id)
}

type tx struct {
	s    *Store
	undo []func()
	done bool
}

func (t *tx) check(ctx context.Context) error {
	if t.done {
		return graphstore.ErrTxDone
	}
	return ctx.Err()
}

func (t *tx) CreateVertex(ctx context.Context, vertexType string, props graphstore.Properties) (string, error) {
	if err := t.check(ctx); err != nil {
		return "", err
	}
	if vertexType == "" {
		return "", fmt.Errorf("memstore: vertex type is required")
	}
	normalized, err := graphstore.NormalizeAll(props)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	t.s.vertices[id] = &vertexRecord{seq: t.s.nextSeq(), typ: vertexType, props: normalized}
	t.undo = append(t.undo, func() { delete(t.s.vertices, id) })
	return id, nil
}

func (t *tx) GetVertex(ctx context.Context, id string) (*graphstore.Vertex, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	rec, ok := t.s.vertices[id]
	if !ok {
		return nil, graphstore.ErrNotFound
	}
	return &graphstore.Vertex{ID: id, Type: rec.typ, Properties: rec.props.Clone()}, nil
}

func (t *tx) SetProperty(ctx context.Context, id, key string, value any) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	rec, ok := t.s.vertices[id]
	if !ok {
		return graphstore.ErrNotFound
	}
	return t.setProp(rec.props, key, value)
}

func (t *tx) setProp(props graphstore.Properties, key string, value any) error {
	v, err := graphstore.Normalize(value)
	if err != nil {
		return err
	}
	prev, had := props[key]
	if v == nil {
		delete(props, key)
	} else {
		props[key] = v
	}
	t.undo = append(t.undo, func() {
		if had {
			props[key] = prev
		} else {
			delete(props, key)
		}
	})
	return nil
}

func (t *tx) RemoveVertex(ctx context.Context, id string) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	rec, ok := t.s.vertices[id]
	if !ok {
		return graphstore.ErrNotFound
	}
	incident := make(map[string]*edgeRecord)
	for eid := range t.s.out[id] {
		incident[eid] = t.s.edges[eid]
	}
	for eid := range t.s.in[id] {
		incident[eid] = t.s.edges[eid]
	}
	for eid := range incident {
		t.s.unlink(eid)
	}
	delete(t.s.vertices, id)
	t.undo = append(t.undo, func() {
		t.s.vertices[id] = rec
		for eid, e := range incident {
			t.s.link(eid, e)
		}
	})
	return nil
}

func (t *tx) AddEdge(ctx context.Context, from, to, label string, props graphstore.Properties) (string, error) {
	if err := t.check(ctx); err != nil {
		return "", err
	}
	if label == "" {
		return "", fmt.Errorf("memstore: edge label is required")
	}
	if _, ok := t.s.vertices[from]; !ok {
		return "", graphstore.ErrNotFound
	}
	if _, ok := t.s.vertices[to]; !ok {
		return "", graphstore.ErrNotFound
	}
	normalized, err := graphstore.NormalizeAll(props)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	t.s.link(id, &edgeRecord{seq: t.s.nextSeq(), from: from, to: to, label: label, props: normalized})
	t.undo = append(t.undo, func() { t.s.unlink(id) })
	return id, nil
}

func (t *tx) SetEdgeProperty(ctx context.Context, edgeID, key string, value any) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	e, ok := t.s.edges[edgeID]
	if !ok {
		return graphstore.ErrNotFound
	}
	return t.setProp(e.props, key, value)
}

func (t *tx) RemoveEdge(ctx context.Context, edgeID string) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	e, ok := t.s.edges[edgeID]
	if !ok {
		return graphstore.ErrNotFound
	}
	t.s.unlink(edgeID)
	t.undo = append(t.undo, func() { t.s.link(edgeID, e) })
	return nil
}

func (t *tx) QueryVertices(ctx context.Context, vertexType string, filters []graphstore.Filter, limit int) ([]*graphstore.Vertex, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	normalized, err := graphstore.NormalizeFilters(filters)
	if err != nil {
		return nil, err
	}

	type hit struct {
		seq uint64
		v   *graphstore.Vertex
	}
	var hits []hit
	for id, rec := range t.s.vertices {
		if rec.typ != vertexType || !graphstore.Matches(rec.props, normalized) {
			continue
		}
		hits = append(hits, hit{seq: rec.seq, v: &graphstore.Vertex{ID: id, Type: rec.typ, Properties: rec.props.Clone()}})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	result := make([]*graphstore.Vertex, len(hits))
	for i, h := range hits {
		result[i] = h.v
	}
	return result, nil
}

func (t *tx) QueryEdges(ctx context.Context, vertexID string, dir graphstore.Direction, label string, filters []graphstore.Filter, limit int) ([]*graphstore.Edge, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	normalized, err := graphstore.NormalizeFilters(filters)
	if err != nil {
		return nil, err
	}

	candidates := make(map[string]struct{})
	if dir == graphstore.Outbound || dir == graphstore.Both {
		for eid := range t.s.out[vertexID] {
			candidates[eid] = struct{}{}
		}
	}
	if dir == graphstore.Inbound || dir == graphstore.Both {
		for eid := range t.s.in[vertexID] {
			candidates[eid] = struct{}{}
		}
	}

	var hits []*edgeRecord
	ids := make(map[*edgeRecord]string, len(candidates))
	for eid := range candidates {
		e := t.s.edges[eid]
		if e.label != label || !graphstore.Matches(e.props, normalized) {
			continue
		}
		hits = append(hits, e)
		ids[e] = eid
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	result := make([]*graphstore.Edge, len(hits))
	for i, e := range hits {
		result[i] = &graphstore.Edge{ID: ids[e], From: e.from, To: e.to, Label: e.label, Properties: e.props.Clone()}
	}
	return result, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return graphstore.ErrTxDone
	}
	t.done = true
	t.undo = nil
	<-t.s.sem
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.undo = nil
	<-t.s.sem
	return nil
}
