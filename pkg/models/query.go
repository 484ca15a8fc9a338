package models

import "time"

// QueryType identifies a proximity query resolution strategy.
type QueryType int

const (
	QueryTypeUnknown QueryType = -1

	// QueryTypeSelfCurrent returns the requester's active Locality.
	QueryTypeSelfCurrent QueryType = 0
	// QueryTypeSelfHistory returns the requester's history in a date range.
	QueryTypeSelfHistory QueryType = 1
	// QueryTypeContactsCurrent returns contacts' active Localities, optionally distance filtered.
	QueryTypeContactsCurrent QueryType = 2
	// QueryTypeContactsHistory returns the union of contacts' histories in a date range.
	QueryTypeContactsHistory QueryType = 3
	// QueryTypeContactsAtLocation returns contacts currently at a Location.
	QueryTypeContactsAtLocation QueryType = 4
	// QueryTypeContactsHistoryAtLocation returns contacts' past Localities at a Location.
	QueryTypeContactsHistoryAtLocation QueryType = 5
)

func (q QueryType) String() string {
	switch q {
	case QueryTypeSelfCurrent:
		return "self_current"
	case QueryTypeSelfHistory:
		return "self_history"
	case QueryTypeContactsCurrent:
		return "contacts_current"
	case QueryTypeContactsHistory:
		return "contacts_history"
	case QueryTypeContactsAtLocation:
		return "contacts_at_location"
	case QueryTypeContactsHistoryAtLocation:
		return "contacts_history_at_location"
	default:
		return "unknown"
	}
}

// ProximityQuery is a request to the proximity query engine. Optional
// fields are pointers; which of them are set selects the strategy.
type ProximityQuery struct {
	UserID      string     `json:"user_id"`
	LocationID  *string    `json:"location_id,omitempty"`
	Strength    *int       `json:"strength,omitempty"`
	MaxDistance *float64   `json:"max_distance,omitempty"` // meters
	DateStart   *time.Time `json:"date_start,omitempty"`
	DateEnd     *time.Time `json:"date_end,omitempty"`
}

// ProximityResult is the resolved strategy and its Localities.
type ProximityResult struct {
	Type       QueryType   `json:"type"`
	Strategy   string      `json:"strategy"`
	Localities []*Locality `json:"localities"`
}
