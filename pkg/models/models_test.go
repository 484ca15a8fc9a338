package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalType_Kind(t *testing.T) {
	tests := []struct {
		typ  SignalType
		want SignalKind
	}{
		{SignalTypeWiFi, SignalKindSensor},
		{SignalTypeBluetooth, SignalKindSensor},
		{SignalTypeCell, SignalKindSensor},
		{SignalTypeNFC, SignalKindEnvironmental},
		{SignalTypeQRCode, SignalKindEnvironmental},
		{SignalTypeBeacon, SignalKindEnvironmental},
		{SignalTypeAudio, SignalKindEnvironmental},
		{SignalType("lora"), ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Kind())
		})
	}
}

func TestSignal_Validate(t *testing.T) {
	valid := &Signal{Kind: SignalKindSensor, Type: SignalTypeWiFi, Identifier: "00:11:22:33:44:55"}
	assert.NoError(t, valid.Validate())

	mismatched := &Signal{Kind: SignalKindSensor, Type: SignalTypeNFC, Identifier: "04A224"}
	assert.Error(t, mismatched.Validate())

	blank := &Signal{Kind: SignalKindEnvironmental, Type: SignalTypeQRCode, Identifier: "  "}
	assert.Error(t, blank.Validate())

	unknown := &Signal{Kind: SignalKind("radar"), Type: SignalTypeWiFi, Identifier: "x"}
	assert.Error(t, unknown.Validate())
}

func TestCoordinates_Validate(t *testing.T) {
	assert.NoError(t, Coordinates{Latitude: 52.52, Longitude: 13.405}.Validate())
	assert.Error(t, Coordinates{Latitude: 91, Longitude: 0}.Validate())
	assert.Error(t, Coordinates{Latitude: 0, Longitude: -180.5}.Validate())
}

func TestParseDirection(t *testing.T) {
	for _, s := range []string{"", "out", "outbound"} {
		d, err := ParseDirection(s)
		assert.NoError(t, err)
		assert.Equal(t, DirectionOutbound, d)
	}
	d, err := ParseDirection("in")
	assert.NoError(t, err)
	assert.Equal(t, DirectionInbound, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestLocality_Source(t *testing.T) {
	assert.Equal(t, LocalitySourceManual, (&Locality{Manual: true}).Source())
	assert.Equal(t, LocalitySourceEnvironmental, (&Locality{SignalKind: SignalKindEnvironmental}).Source())
	assert.Equal(t, LocalitySourceSensor, (&Locality{SignalKind: SignalKindSensor}).Source())
}

func TestQueryType_String(t *testing.T) {
	assert.Equal(t, "self_current", QueryTypeSelfCurrent.String())
	assert.Equal(t, "contacts_history_at_location", QueryTypeContactsHistoryAtLocation.String())
	assert.Equal(t, "unknown", QueryTypeUnknown.String())
}
