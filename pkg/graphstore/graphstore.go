// Package graphstore defines the contract of the property graph the locality core is built on.
//
// A Store hands out transactions. Every read and write goes through a Tx, and a logical
// operation commits exactly once. Backends live in the memstore, pgstore and neo4jstore
// subpackages.
package graphstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a vertex or edge id does not exist.
// Backends must not return it for connectivity or query failures.
var ErrNotFound = errors.New("graphstore: not found")

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("graphstore: transaction already finished")

// Direction selects which incident edges QueryEdges returns.
type Direction int

const (
	Outbound Direction = iota
	Inbound
	Both
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "out"
	case Inbound:
		return "in"
	case Both:
		return "both"
	}
	return "unknown"
}

// Vertex is a typed property bag.
type Vertex struct {
	ID         string
	Type       string
	Properties Properties
}

// Edge is a directed, labeled connection between two vertices.
type Edge struct {
	ID         string
	From       string
	To         string
	Label      string
	Properties Properties
}

// Other returns the endpoint of e that is not vertexID.
func (e *Edge) Other(vertexID string) string {
	if e.From == vertexID {
		return e.To
	}
	return e.From
}

// Store opens transactions against a graph backend.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close(ctx context.Context) error
}

// Tx is a unit of work. Writes become visible to other transactions on Commit.
// After Commit or Rollback every method returns ErrTxDone; Rollback after Commit is a no-op.
type Tx interface {
	CreateVertex(ctx context.Context, vertexType string, props Properties) (string, error)
	GetVertex(ctx context.Context, id string) (*Vertex, error)
	// SetProperty sets one property. A nil value removes the key.
	SetProperty(ctx context.Context, id, key string, value any) error
	// RemoveVertex deletes the vertex and all incident edges.
	RemoveVertex(ctx context.Context, id string) error

	AddEdge(ctx context.Context, from, to, label string, props Properties) (string, error)
	SetEdgeProperty(ctx context.Context, edgeID, key string, value any) error
	RemoveEdge(ctx context.Context, edgeID string) error

	// QueryVertices returns vertices of vertexType matching all filters, in creation order.
	// limit <= 0 means no limit.
	QueryVertices(ctx context.Context, vertexType string, filters []Filter, limit int) ([]*Vertex, error)
	// QueryEdges returns edges with label incident to vertexID in the given direction,
	// matching all filters on edge properties, in creation order. limit <= 0 means no limit.
	QueryEdges(ctx context.Context, vertexID string, dir Direction, label string, filters []Filter, limit int) ([]*Edge, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Tag values for vertex types and edge labels used by the locality core.
const (
	TypeUser          = "user"
	TypeDevice        = "device"
	TypeLocation      = "location"
	TypeSensor        = "sensor"
	TypeEnvironmental = "environmental"
	TypeLocality      = "locality"

	LabelKnows    = "knows"
	LabelWithin   = "within"
	LabelNearby   = "nearby"
	LabelContains = "contains"
)

// TargetKey is the edge property that mirrors the edge's To endpoint so that
// existence checks can be expressed as an exact-match filter.
const TargetKey = "_target"
