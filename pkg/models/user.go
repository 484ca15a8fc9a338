// Package models contains domain types for whereabouts.
package models

import "time"

// User is the subject of Localities and a node in the social graph.
// CurrentLocalityID is the single active Locality; LastLocalityID heads the
// closed-history chain. Both are empty when unset.
type User struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email,omitempty"`
	CurrentLocalityID string    `json:"current_locality_id,omitempty"`
	LastLocalityID    string    `json:"last_locality_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Device is a mobile endpoint owned by exactly one User.
type Device struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Model     string    `json:"model,omitempty"`
	Platform  string    `json:"platform,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
