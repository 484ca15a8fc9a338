package models

import (
	"fmt"
	"strings"
	"time"
)

// SignalKind distinguishes device-side sensors from installed environmental markers.
type SignalKind string

const (
	SignalKindSensor        SignalKind = "sensor"
	SignalKindEnvironmental SignalKind = "environmental"
)

func (k SignalKind) String() string {
	return string(k)
}

// IsValid returns true if k is a known kind.
func (k SignalKind) IsValid() bool {
	switch k {
	case SignalKindSensor, SignalKindEnvironmental:
		return true
	default:
		return false
	}
}

// SignalType is the technology of a signal. The identifier format depends on it.
type SignalType string

// Sensor types.
const (
	SignalTypeWiFi      SignalType = "wifi"      // BSSID
	SignalTypeBluetooth SignalType = "bluetooth" // MAC or service UUID
	SignalTypeCell      SignalType = "cell"      // cell id
)

// Environmental types.
const (
	SignalTypeNFC    SignalType = "nfc"    // tag UID
	SignalTypeQRCode SignalType = "qrcode" // payload
	SignalTypeBeacon SignalType = "beacon" // iBeacon / Eddystone UUID
	SignalTypeAudio  SignalType = "audio"  // watermark id
)

func (t SignalType) String() string {
	return string(t)
}

// Kind returns the kind a type belongs to, or "" for unknown types.
func (t SignalType) Kind() SignalKind {
	switch t {
	case SignalTypeWiFi, SignalTypeBluetooth, SignalTypeCell:
		return SignalKindSensor
	case SignalTypeNFC, SignalTypeQRCode, SignalTypeBeacon, SignalTypeAudio:
		return SignalKindEnvironmental
	default:
		return ""
	}
}

// Signal is a Sensor or Environmental bound to exactly one Location.
// (Kind, Type, Identifier) is unique.
type Signal struct {
	ID          string     `json:"id"`
	Kind        SignalKind `json:"kind"`
	Type        SignalType `json:"type"`
	Identifier  string     `json:"identifier"`
	Description string     `json:"description,omitempty"`
	LocationID  string     `json:"location_id"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Validate checks the kind/type pairing and the identifier.
func (s *Signal) Validate() error {
	if !s.Kind.IsValid() {
		return fmt.Errorf("unknown signal kind %q", s.Kind)
	}
	if s.Type.Kind() != s.Kind {
		return fmt.Errorf("signal type %q is not a %s type", s.Type, s.Kind)
	}
	if strings.TrimSpace(s.Identifier) == "" {
		return fmt.Errorf("signal identifier is required")
	}
	return nil
}

// SignalRef is a partial description of a detected signal. Either ID is set,
// or Type and Identifier are. Kind is optional and narrows the match.
type SignalRef struct {
	ID         string     `json:"id,omitempty"`
	Kind       SignalKind `json:"kind,omitempty"`
	Type       SignalType `json:"type,omitempty"`
	Identifier string     `json:"identifier,omitempty"`
}

func (r SignalRef) String() string {
	if r.ID != "" {
		return "signal:" + r.ID
	}
	return fmt.Sprintf("%s/%s:%s", r.Kind, r.Type, r.Identifier)
}
