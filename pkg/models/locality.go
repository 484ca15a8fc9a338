package models

import "time"

// LocalitySource records how a Locality came to be.
type LocalitySource string

const (
	LocalitySourceSensor        LocalitySource = "sensor"
	LocalitySourceEnvironmental LocalitySource = "environmental"
	LocalitySourceManual        LocalitySource = "manual"
)

// Locality asserts that a User was at a Location from Arrival until Departure.
// Departure is nil while the Locality is active. PreviousLocalityID links
// closed Localities into the user's reverse-chronological history.
type Locality struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	LocationID         string     `json:"location_id"`
	DeviceID           string     `json:"device_id,omitempty"`
	SignalID           string     `json:"signal_id,omitempty"`
	SignalKind         SignalKind `json:"signal_kind,omitempty"`
	Manual             bool       `json:"manual"`
	Active             bool       `json:"active"`
	Arrival            time.Time  `json:"arrival"`
	Departure          *time.Time `json:"departure,omitempty"`
	PreviousLocalityID string     `json:"previous_locality_id,omitempty"`
}

// Source derives the LocalitySource from Manual and SignalKind.
func (l *Locality) Source() LocalitySource {
	switch {
	case l.Manual:
		return LocalitySourceManual
	case l.SignalKind == SignalKindEnvironmental:
		return LocalitySourceEnvironmental
	default:
		return LocalitySourceSensor
	}
}
