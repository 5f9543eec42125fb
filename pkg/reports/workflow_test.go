package reports

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p9e.in/qareports/models"
)

func TestTransitionLifecycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	report := fx.newReport(t, fx.school, "2025-03-01")

	_, err := fx.svc.Transition(ctx, report.ID, ActionApprove, "director", "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "draft cannot be approved")

	submitted, err := fx.svc.Transition(ctx, report.ID, ActionSubmit, "inspector-1", "ready for review")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, submitted.Status)

	_, err = fx.svc.Transition(ctx, report.ID, ActionSubmit, "inspector-1", "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "submitted twice")

	approved, err := fx.svc.Transition(ctx, report.ID, ActionApprove, "director", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)

	for _, action := range []string{ActionSubmit, ActionApprove, "reopen"} {
		_, err = fx.svc.Transition(ctx, report.ID, action, "director", "")
		assert.ErrorIs(t, err, models.ErrInvalidTransition, action)
	}

	history, err := fx.svc.History(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "submit: draft -> submitted", history[0].String())
	assert.Equal(t, "ready for review", history[0].Comment)
	assert.Equal(t, "approve: submitted -> approved", history[1].String())
	assert.Equal(t, "director", history[1].ActorID)

	stored, err := fx.svc.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
}

func TestTransitionUnknownReport(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Transition(context.Background(), uuid.New(), ActionSubmit, "x", "")
	assert.ErrorIs(t, err, models.ErrReportNotFound)

	_, err = fx.svc.History(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrReportNotFound)
}

func TestHistoryEmpty(t *testing.T) {
	fx := newFixture(t)
	report := fx.newReport(t, fx.school, "2025-03-01")
	history, err := fx.svc.History(context.Background(), report.ID)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}
