package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"p9e.in/qareports/models"
)

func f(v float64) *float64 { return &v }

const square = `{"type":"Polygon","coordinates":[[[-84.56,33.95],[-84.54,33.95],[-84.54,33.96],[-84.56,33.96],[-84.56,33.95]]]}`

func TestParseGeofenceFormats(t *testing.T) {
	tests := map[string]string{
		"polygon":    square,
		"feature":    `{"type":"Feature","properties":{},"geometry":` + square + `}`,
		"collection": `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":` + square + `}]}`,
		"legacy":     `{"coordinates":[{"lat":33.95,"lng":-84.56},{"lat":33.95,"lng":-84.54},{"lat":33.96,"lng":-84.54}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			mp, err := ParseGeofence([]byte(raw))
			require.NoError(t, err)
			require.Len(t, mp, 1)
			assert.True(t, mp[0][0].Closed())
		})
	}
}

func TestParseGeofenceRejects(t *testing.T) {
	tests := map[string]string{
		"not json":     `{`,
		"point":        `{"type":"Point","coordinates":[-84.5,33.9]}`,
		"two points":   `{"coordinates":[{"lat":33.95,"lng":-84.56},{"lat":33.95,"lng":-84.54}]}`,
		"bad latitude": `{"coordinates":[{"lat":95,"lng":-84.56},{"lat":33.95,"lng":-84.54},{"lat":33.96,"lng":-84.54}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGeofence([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestVerifyGeofence(t *testing.T) {
	school := &models.School{Name: "Riverside", Geofence: datatypes.JSON(square)}

	v, err := Verify(school, 33.955, -84.55)
	require.NoError(t, err)
	assert.True(t, v.Verified)
	require.NotNil(t, v.WithinGeofence)
	assert.True(t, *v.WithinGeofence)
	assert.True(t, v.CanProceed)

	v, err = Verify(school, 34.10, -84.55)
	require.NoError(t, err)
	assert.False(t, v.Verified)
	assert.False(t, *v.WithinGeofence)
	assert.True(t, v.CanProceed, "verification is advisory")
}

func TestVerifyDistance(t *testing.T) {
	school := &models.School{Name: "Riverside", Latitude: f(33.9526), Longitude: f(-84.5499)}

	near, err := Verify(school, 33.9530, -84.5495)
	require.NoError(t, err)
	assert.True(t, near.Verified)
	require.NotNil(t, near.DistanceMeters)
	assert.Less(t, *near.DistanceMeters, 100.0)
	assert.Nil(t, near.WithinGeofence)

	far, err := Verify(school, 33.9700, -84.5499)
	require.NoError(t, err)
	assert.False(t, far.Verified)
	assert.Greater(t, *far.DistanceMeters, MaxDistanceMeters)
	assert.True(t, far.CanProceed)
}

func TestVerifyWithoutSchoolLocation(t *testing.T) {
	v, err := Verify(&models.School{Name: "Unmapped"}, 33.9, -84.5)
	require.NoError(t, err)
	assert.False(t, v.Verified)
	assert.True(t, v.CanProceed)
	assert.Nil(t, v.DistanceMeters)
	assert.Contains(t, v.Message, "not configured")
}

func TestVerifyRejectsBadCoordinates(t *testing.T) {
	_, err := Verify(&models.School{}, 91, 0)
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "location", ve.Field)
}
