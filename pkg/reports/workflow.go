package reports

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"p9e.in/qareports/models"
)

const (
	ActionSubmit  = "submit"
	ActionApprove = "approve"
)

type transitionDef struct {
	From   models.ReportStatus
	Action string
	To     models.ReportStatus
}

var transitions = []transitionDef{
	{From: models.StatusDraft, Action: ActionSubmit, To: models.StatusSubmitted},
	{From: models.StatusSubmitted, Action: ActionApprove, To: models.StatusApproved},
}

func findTransition(from models.ReportStatus, action string) (transitionDef, bool) {
	for _, t := range transitions {
		if t.From == from && t.Action == action {
			return t, true
		}
	}
	return transitionDef{}, false
}

// Transition applies a workflow action and records it in the report's
// history. Actions not allowed from the current status fail with
// models.ErrInvalidTransition.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, action, actorID, comment string) (*models.Report, error) {
	report, err := getReport(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}

	target, ok := findTransition(report.Status, action)
	if !ok {
		return nil, fmt.Errorf("%w: action '%s' not allowed from state '%s'", models.ErrInvalidTransition, action, report.Status)
	}
	previousState := report.Status

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Guard on the old status so a concurrent transition cannot apply twice.
	res := tx.Model(&models.Report{}).
		Where("id = ? AND status = ?", id, previousState).
		Update("status", target.To)
	if res.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update report status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, fmt.Errorf("%w: report %s is no longer %s", models.ErrInvalidTransition, id, previousState)
	}

	transition := models.ReportTransition{
		ReportID:  id,
		FromState: previousState,
		ToState:   target.To,
		Action:    action,
		ActorID:   actorID,
		Comment:   comment,
	}
	if err := tx.Create(&transition).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create transition record: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"report_id": id,
		"from":      previousState,
		"to":        target.To,
		"action":    action,
		"actor":     actorID,
	}).Info("✅ report transitioned")

	report.Status = target.To
	return report, nil
}

// History lists the workflow transitions of a report, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]models.ReportTransition, error) {
	if _, err := getReport(s.db.WithContext(ctx), id); err != nil {
		return nil, err
	}
	history := []models.ReportTransition{}
	if err := s.db.WithContext(ctx).
		Where("report_id = ?", id).
		Order("created_at ASC").
		Find(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch workflow history: %w", err)
	}
	return history, nil
}
