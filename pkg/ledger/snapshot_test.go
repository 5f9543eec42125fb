package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p9e.in/qareports/models"
)

func TestSnapshotPreviousCopiesMatchingResponses(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newTestDB(t))
	previousID, currentID := uuid.New(), uuid.New()

	_, err := l.BulkSave(ctx, previousID, Payload{
		"health_safety": {
			"fire_extinguisher": {Rating: "no", Notes: "expired tag"},
			"fire_drills":       {Rating: "yes"},
		},
	})
	require.NoError(t, err)
	_, err = l.BulkSave(ctx, currentID, Payload{
		"health_safety": {
			"fire_extinguisher": {Rating: "yes"},
			"allergy_list":      {Rating: "yes", PreviousRating: "sometimes"},
		},
	})
	require.NoError(t, err)

	updated, err := l.SnapshotPrevious(ctx, currentID, previousID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	grouped, err := l.GetByReportGrouped(ctx, currentID)
	require.NoError(t, err)
	fe := grouped["health_safety"]["fire_extinguisher"]
	assert.Equal(t, models.RatingYes, fe.Rating)
	assert.Equal(t, models.RatingNo, fe.PreviousRating)
	assert.Equal(t, "expired tag", fe.PreviousNotes)

	al := grouped["health_safety"]["allergy_list"]
	assert.Empty(t, al.PreviousRating, "no counterpart in the previous report")

	again, err := l.SnapshotPrevious(ctx, currentID, previousID)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestSnapshotIsNotLive(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newTestDB(t))
	previousID, currentID := uuid.New(), uuid.New()

	_, err := l.BulkSave(ctx, previousID, Payload{"lobby": {"front_desk": {Rating: "no"}}})
	require.NoError(t, err)
	_, err = l.BulkSave(ctx, currentID, Payload{"lobby": {"front_desk": {Rating: "yes"}}})
	require.NoError(t, err)
	_, err = l.SnapshotPrevious(ctx, currentID, previousID)
	require.NoError(t, err)

	_, err = l.BulkSave(ctx, previousID, Payload{"lobby": {"front_desk": {Rating: "sometimes"}}})
	require.NoError(t, err)

	grouped, err := l.GetByReportGrouped(ctx, currentID)
	require.NoError(t, err)
	assert.Equal(t, models.RatingNo, grouped["lobby"]["front_desk"].PreviousRating)
}

func TestCopyForFollowUp(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newTestDB(t))
	fromID, toID := uuid.New(), uuid.New()

	_, err := l.BulkSave(ctx, fromID, Payload{
		"lobby":   {"front_desk": {Rating: "no", Notes: "empty desk"}},
		"kitchen": {"menu_posted": {Rating: "yes", EvidenceType: "photo"}},
	})
	require.NoError(t, err)

	n, err := l.CopyForFollowUp(ctx, fromID, toID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	grouped, err := l.GetByReportGrouped(ctx, toID)
	require.NoError(t, err)
	fd := grouped["lobby"]["front_desk"]
	assert.Equal(t, models.RatingNo, fd.Rating)
	assert.Equal(t, models.RatingNo, fd.PreviousRating)
	assert.Equal(t, "empty desk", fd.PreviousNotes)
	assert.Equal(t, "photo", grouped["kitchen"]["menu_posted"].EvidenceType)
}

func TestKeepPreviousCarriesSnapshot(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newTestDB(t))
	previousID, currentID := uuid.New(), uuid.New()

	_, err := l.BulkSave(ctx, previousID, Payload{"lobby": {"front_desk": {Rating: "no", Notes: "empty desk"}}})
	require.NoError(t, err)
	_, err = l.BulkSave(ctx, currentID, Payload{"lobby": {"front_desk": {Rating: "yes"}, "visitor_log": {Rating: "yes"}}})
	require.NoError(t, err)
	_, err = l.SnapshotPrevious(ctx, currentID, previousID)
	require.NoError(t, err)

	in := Payload{"lobby": {
		"front_desk":  {Rating: "yes", Notes: "staffed at 9am"},
		"visitor_log": {Rating: "no", PreviousRating: "sometimes"},
	}}
	out, err := l.KeepPrevious(ctx, currentID, in)
	require.NoError(t, err)
	assert.Empty(t, in["lobby"]["front_desk"].PreviousRating, "input left untouched")

	fd := out["lobby"]["front_desk"]
	assert.Equal(t, "no", fd.PreviousRating)
	assert.Equal(t, "empty desk", fd.PreviousNotes)
	assert.Equal(t, "staffed at 9am", fd.Notes)
	assert.Equal(t, "sometimes", out["lobby"]["visitor_log"].PreviousRating, "explicit previous values win")

	_, err = l.BulkSave(ctx, currentID, out)
	require.NoError(t, err)
	grouped, err := l.GetByReportGrouped(ctx, currentID)
	require.NoError(t, err)
	assert.Equal(t, models.RatingNo, grouped["lobby"]["front_desk"].PreviousRating)
}
