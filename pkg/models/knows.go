package models

import "fmt"

// Strength bounds for knows edges.
const (
	MinStrength = 0
	MaxStrength = 100
)

// Direction selects which side of a directed relationship to traverse.
type Direction string

const (
	// DirectionOutbound follows edges leaving the user: whom the user knows.
	DirectionOutbound Direction = "outbound"
	// DirectionInbound follows edges arriving at the user: who knows the user.
	DirectionInbound Direction = "inbound"
)

// ParseDirection accepts "outbound"/"out" and "inbound"/"in". Empty means outbound.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "outbound", "out":
		return DirectionOutbound, nil
	case "inbound", "in":
		return DirectionInbound, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Knows is a directed, weighted social edge.
type Knows struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Strength   int    `json:"strength"`
}

// ValidStrength reports whether s lies in [MinStrength, MaxStrength].
func ValidStrength(s int) bool {
	return s >= MinStrength && s <= MaxStrength
}

// Contact is a user reached through a knows edge.
type Contact struct {
	User     *User `json:"user"`
	Strength int   `json:"strength"`
}
