package geo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/whereabouts/pkg/models"
)

func TestDistance_KnownPairs(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Coordinates
		want float64
		tol  float64
	}{
		{
			name: "one degree of latitude",
			a:    models.Coordinates{Latitude: 0, Longitude: 0},
			b:    models.Coordinates{Latitude: 1, Longitude: 0},
			want: EarthRadius * math.Pi / 180,
			tol:  1e-6,
		},
		{
			name: "antipodes",
			a:    models.Coordinates{Latitude: 0, Longitude: 0},
			b:    models.Coordinates{Latitude: 0, Longitude: 180},
			want: EarthRadius * math.Pi,
			tol:  1e-6,
		},
		{
			name: "paris to london",
			a:    models.Coordinates{Latitude: 48.8566, Longitude: 2.3522},
			b:    models.Coordinates{Latitude: 51.5074, Longitude: -0.1278},
			want: 343_500,
			tol:  1_500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance(tt.a, tt.b), tt.tol)
		})
	}
}

func TestDistance_ZeroForSamePoint(t *testing.T) {
	p := models.Coordinates{Latitude: -33.8688, Longitude: 151.2093}
	assert.Equal(t, 0.0, Distance(p, p))
}

func TestDistance_Symmetric(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		a := models.Coordinates{Latitude: r.Float64()*180 - 90, Longitude: r.Float64()*360 - 180}
		b := models.Coordinates{Latitude: r.Float64()*180 - 90, Longitude: r.Float64()*360 - 180}

		ab, ba := Distance(a, b), Distance(b, a)
		if ab == 0 {
			assert.Equal(t, 0.0, ba)
			continue
		}
		assert.LessOrEqual(t, math.Abs(ab-ba)/ab, 1e-6, "a=%v b=%v", a, b)
	}
}
