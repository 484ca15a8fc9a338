package models

import (
	"fmt"
	"time"
)

// Coordinates are WGS84 degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the coordinate ranges.
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", c.Longitude)
	}
	return nil
}

// Location is a place. Locations form a containment DAG through within
// edges and a distance-weighted neighborhood through nearby edges.
type Location struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Address     string       `json:"address,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Type        string       `json:"type,omitempty"` // free-form tag, e.g. "building", "room"
	CreatedAt   time.Time    `json:"created_at"`
}

// Nearby is one side of a nearby relationship as seen from a Location.
type Nearby struct {
	Location *Location `json:"location"`
	Distance float64   `json:"distance"` // meters
}
