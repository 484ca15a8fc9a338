// Package codec maps domain records to graph vertex properties and back.
//
// Every entity kind has an Encode/Decode pair. Decode dispatches on the
// vertex type tag and rejects tags it does not know.
package codec

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/whereabouts/pkg/apperrors"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
	"github.com/ekaya-inc/whereabouts/pkg/models"
)

// ErrUnknownVertexType is returned by Decode for a type tag outside the entity set.
var ErrUnknownVertexType = errors.New("unknown vertex type")

// Property keys shared between the codec and the services that filter on them.
const (
	KeyName        = "name"
	KeyEmail       = "email"
	KeyCreatedAt   = "created_at"
	KeyCurrent     = "current_locality_id"
	KeyLast        = "last_locality_id"
	KeyUserID      = "user_id"
	KeyModel       = "model"
	KeyPlatform    = "platform"
	KeyDescription = "description"
	KeyAddress     = "address"
	KeyLatitude    = "latitude"
	KeyLongitude   = "longitude"
	KeyLocType     = "location_type"
	KeySignalType  = "signal_type"
	KeyIdentifier  = "identifier"
	KeyLocationID  = "location_id"
	KeyDeviceID    = "device_id"
	KeySignalID    = "signal_id"
	KeySignalKind  = "signal_kind"
	KeyManual      = "manual"
	KeyActive      = "active"
	KeyArrival     = "arrival"
	KeyDeparture   = "departure"
	KeyPrevious    = "previous_locality_id"

	KeyStrength = "strength"
	KeyDistance = "distance"
)

// ValidateID rejects empty and whitespace-only ids.
func ValidateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s id is empty: %w", kind, apperrors.ErrInvalidReference)
	}
	return nil
}

// Decode returns the typed record for v.
func Decode(v *graphstore.Vertex) (models.Entity, error) {
	switch v.Type {
	case graphstore.TypeUser:
		return DecodeUser(v)
	case graphstore.TypeDevice:
		return DecodeDevice(v)
	case graphstore.TypeLocation:
		return DecodeLocation(v)
	case graphstore.TypeSensor, graphstore.TypeEnvironmental:
		return DecodeSignal(v)
	case graphstore.TypeLocality:
		return DecodeLocality(v)
	default:
		return nil, fmt.Errorf("vertex %s has type %q: %w", v.ID, v.Type, ErrUnknownVertexType)
	}
}

func expect(v *graphstore.Vertex, types ...string) error {
	for _, t := range types {
		if v.Type == t {
			return nil
		}
	}
	return fmt.Errorf("vertex %s is a %s, not a %s: %w",
		v.ID, v.Type, strings.Join(types, " or "), apperrors.ErrInvalidReference)
}

func setIfNotEmpty(p graphstore.Properties, key, value string) {
	if value != "" {
		p[key] = value
	}
}

func timeOrZero(p graphstore.Properties, key string) time.Time {
	t, _ := p.Time(key)
	return t
}

// EncodeUser returns the properties of u.
func EncodeUser(u *models.User) graphstore.Properties {
	p := graphstore.Properties{
		KeyName:      u.Name,
		KeyCreatedAt: u.CreatedAt,
	}
	setIfNotEmpty(p, KeyEmail, u.Email)
	setIfNotEmpty(p, KeyCurrent, u.CurrentLocalityID)
	setIfNotEmpty(p, KeyLast, u.LastLocalityID)
	return p
}

// DecodeUser fails with ErrInvalidReference if v is not a user vertex.
func DecodeUser(v *graphstore.Vertex) (*models.User, error) {
	if err := expect(v, graphstore.TypeUser); err != nil {
		return nil, err
	}
	p := v.Properties
	return &models.User{
		ID:                v.ID,
		Name:              p.String(KeyName),
		Email:             p.String(KeyEmail),
		CurrentLocalityID: p.String(KeyCurrent),
		LastLocalityID:    p.String(KeyLast),
		CreatedAt:         timeOrZero(p, KeyCreatedAt),
	}, nil
}

func EncodeDevice(d *models.Device) graphstore.Properties {
	p := graphstore.Properties{
		KeyUserID:    d.UserID,
		KeyCreatedAt: d.CreatedAt,
	}
	setIfNotEmpty(p, KeyName, d.Name)
	setIfNotEmpty(p, KeyModel, d.Model)
	setIfNotEmpty(p, KeyPlatform, d.Platform)
	return p
}

func DecodeDevice(v *graphstore.Vertex) (*models.Device, error) {
	if err := expect(v, graphstore.TypeDevice); err != nil {
		return nil, err
	}
	p := v.Properties
	return &models.Device{
		ID:        v.ID,
		UserID:    p.String(KeyUserID),
		Name:      p.String(KeyName),
		Model:     p.String(KeyModel),
		Platform:  p.String(KeyPlatform),
		CreatedAt: timeOrZero(p, KeyCreatedAt),
	}, nil
}

func EncodeLocation(l *models.Location) graphstore.Properties {
	p := graphstore.Properties{
		KeyDescription: l.Description,
		KeyCreatedAt:   l.CreatedAt,
	}
	setIfNotEmpty(p, KeyAddress, l.Address)
	setIfNotEmpty(p, KeyLocType, l.Type)
	if l.Coordinates != nil {
		p[KeyLatitude] = l.Coordinates.Latitude
		p[KeyLongitude] = l.Coordinates.Longitude
	}
	return p
}

func DecodeLocation(v *graphstore.Vertex) (*models.Location, error) {
	if err := expect(v, graphstore.TypeLocation); err != nil {
		return nil, err
	}
	p := v.Properties
	loc := &models.Location{
		ID:          v.ID,
		Description: p.String(KeyDescription),
		Address:     p.String(KeyAddress),
		Type:        p.String(KeyLocType),
		CreatedAt:   timeOrZero(p, KeyCreatedAt),
	}
	lat, latOK := p.Float(KeyLatitude)
	lon, lonOK := p.Float(KeyLongitude)
	if latOK && lonOK {
		loc.Coordinates = &models.Coordinates{Latitude: lat, Longitude: lon}
	}
	return loc, nil
}

// SignalVertexType maps a signal kind to its vertex type tag.
func SignalVertexType(kind models.SignalKind) (string, error) {
	switch kind {
	case models.SignalKindSensor:
		return graphstore.TypeSensor, nil
	case models.SignalKindEnvironmental:
		return graphstore.TypeEnvironmental, nil
	}
	return "", fmt.Errorf("unknown signal kind %q", kind)
}

// EncodeSignal stores everything but Kind, which is carried by the vertex type,
// and LocationID, which is carried by the contains edge.
func EncodeSignal(s *models.Signal) graphstore.Properties {
	p := graphstore.Properties{
		KeySignalType: string(s.Type),
		KeyIdentifier: s.Identifier,
		KeyCreatedAt:  s.CreatedAt,
	}
	setIfNotEmpty(p, KeyDescription, s.Description)
	return p
}

// DecodeSignal decodes a sensor or environmental vertex. LocationID is left
// empty; it is resolved from the contains edge.
func DecodeSignal(v *graphstore.Vertex) (*models.Signal, error) {
	if err := expect(v, graphstore.TypeSensor, graphstore.TypeEnvironmental); err != nil {
		return nil, err
	}
	p := v.Properties
	return &models.Signal{
		ID:          v.ID,
		Kind:        models.SignalKind(v.Type),
		Type:        models.SignalType(p.String(KeySignalType)),
		Identifier:  p.String(KeyIdentifier),
		Description: p.String(KeyDescription),
		CreatedAt:   timeOrZero(p, KeyCreatedAt),
	}, nil
}

func EncodeLocality(l *models.Locality) graphstore.Properties {
	p := graphstore.Properties{
		KeyUserID:     l.UserID,
		KeyLocationID: l.LocationID,
		KeyManual:     l.Manual,
		KeyActive:     l.Active,
		KeyArrival:    l.Arrival,
	}
	setIfNotEmpty(p, KeyDeviceID, l.DeviceID)
	setIfNotEmpty(p, KeySignalID, l.SignalID)
	setIfNotEmpty(p, KeySignalKind, string(l.SignalKind))
	setIfNotEmpty(p, KeyPrevious, l.PreviousLocalityID)
	if l.Departure != nil {
		p[KeyDeparture] = *l.Departure
	}
	return p
}

func DecodeLocality(v *graphstore.Vertex) (*models.Locality, error) {
	if err := expect(v, graphstore.TypeLocality); err != nil {
		return nil, err
	}
	p := v.Properties
	l := &models.Locality{
		ID:                 v.ID,
		UserID:             p.String(KeyUserID),
		LocationID:         p.String(KeyLocationID),
		DeviceID:           p.String(KeyDeviceID),
		SignalID:           p.String(KeySignalID),
		SignalKind:         models.SignalKind(p.String(KeySignalKind)),
		Manual:             p.Bool(KeyManual),
		Active:             p.Bool(KeyActive),
		Arrival:            timeOrZero(p, KeyArrival),
		PreviousLocalityID: p.String(KeyPrevious),
	}
	if d, ok := p.Time(KeyDeparture); ok {
		l.Departure = &d
	}
	return l, nil
}
