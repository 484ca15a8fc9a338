package models

// Entity is the closed set of domain records stored as graph vertices.
// EntityKind returns the vertex type tag the record is stored under.
type Entity interface {
	EntityKind() string
}

func (*User) EntityKind() string     { return "user" }
func (*Device) EntityKind() string   { return "device" }
func (*Location) EntityKind() string { return "location" }
func (*Locality) EntityKind() string { return "locality" }
func (s *Signal) EntityKind() string { return string(s.Kind) }
