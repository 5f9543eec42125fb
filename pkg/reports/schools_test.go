package reports

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p9e.in/qareports/models"
)

func TestSchoolValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	lat := 120.0

	tests := []struct {
		name  string
		in    SchoolInput
		field string
	}{
		{"missing name", SchoolInput{}, "name"},
		{"bad status", SchoolInput{Name: "X", Status: "closed"}, "status"},
		{"unknown classroom", SchoolInput{Name: "X", ClassroomConfig: models.ClassroomConfig{"kindergarten": 1}}, "classroom_config"},
		{"negative classroom", SchoolInput{Name: "X", ClassroomConfig: models.ClassroomConfig{"toddler": -1}}, "classroom_config"},
		{"latitude out of range", SchoolInput{Name: "X", Latitude: &lat}, "latitude"},
		{"point geofence", SchoolInput{Name: "X", Geofence: json.RawMessage(`{"type":"Point","coordinates":[0,0]}`)}, "geofence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.schools.Create(ctx, tt.in)
			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestSchoolCRUD(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	got, err := fx.schools.Get(ctx, fx.school.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SchoolActive, got.Status)
	assert.Equal(t, 2, got.Classrooms()["toddler"])

	updated, err := fx.schools.Update(ctx, fx.school.ID, SchoolInput{
		Name:            "Riverside ELC",
		Region:          "North",
		ClassroomConfig: models.ClassroomConfig{"infant_a": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "Riverside ELC", updated.Name)

	list, err := fx.schools.List(ctx, models.SchoolActive, "North")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.ClassroomConfig{"infant_a": 1}, list[0].Classrooms())

	def, err := fx.schools.Checklist(ctx, fx.school.ID, "tier1")
	require.NoError(t, err)
	_, ok := def.Section("classroom_infant_a")
	assert.True(t, ok)

	_, err = fx.schools.Checklist(ctx, fx.school.ID, "tier9")
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)

	fx.newReport(t, fx.school, "2025-03-01")
	assert.ErrorIs(t, fx.schools.Delete(ctx, fx.school.ID), models.ErrSchoolHasReports)

	empty := fx.newSchool(t, "Empty Campus")
	require.NoError(t, fx.schools.Delete(ctx, empty.ID))
	_, err = fx.schools.Get(ctx, empty.ID)
	assert.ErrorIs(t, err, models.ErrSchoolNotFound)
	assert.ErrorIs(t, fx.schools.Delete(ctx, uuid.New()), models.ErrSchoolNotFound)
}

func TestVerifyLocation(t *testing.T) {
	fx := newFixture(t)
	lat, lng := 33.9526, -84.5499
	school, err := fx.schools.Create(context.Background(), SchoolInput{Name: "Mapped", Latitude: &lat, Longitude: &lng})
	require.NoError(t, err)

	v, err := fx.schools.VerifyLocation(context.Background(), school.ID, 33.9527, -84.5498)
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.True(t, v.CanProceed)
}
