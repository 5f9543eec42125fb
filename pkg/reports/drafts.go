package reports

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/ledger"
)

// DraftInput is a report draft pushed by a field client. ClientKey is the
// client's idempotency key; retrying the same draft updates the same report.
type DraftInput struct {
	ID               *uuid.UUID     `json:"id"`
	ClientKey        uuid.UUID      `json:"clientKey" validate:"required"`
	SchoolID         uuid.UUID      `json:"schoolId" validate:"required"`
	ReportType       string         `json:"reportType" validate:"required,oneof=new_acquisition tier1 tier1_tier2"`
	InspectionDate   models.Date    `json:"inspectionDate"`
	PreviousReportID *uuid.UUID     `json:"previousReportId"`
	OverallRating    string         `json:"overallRating" validate:"omitempty,oneof=exceeds meets needs_improvement pending"`
	ClosingNotes     string         `json:"closingNotes"`
	Responses        ledger.Payload `json:"responses"`
	UserID           string         `json:"-"`
}

// DraftResult reports what UpsertDraft did.
type DraftResult struct {
	Report    *models.Report `json:"report"`
	Created   bool           `json:"created"`
	Responses int            `json:"responses"`
}

// UpsertDraft creates or updates a draft report and replaces its responses,
// all in one transaction. The report is found by ID, then by client key.
func (s *Service) UpsertDraft(ctx context.Context, in DraftInput) (*DraftResult, error) {
	if err := s.checkInput(in, in.InspectionDate); err != nil {
		return nil, err
	}
	reportType, err := models.ParseReportType(in.ReportType)
	if err != nil {
		return nil, err
	}
	if _, err := in.Responses.Rows(uuid.Nil); err != nil {
		return nil, err
	}

	result := &DraftResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getSchool(tx, in.SchoolID); err != nil {
			return err
		}

		report, err := findDraft(tx, in)
		if err != nil {
			return err
		}
		linkChanged := false

		if report == nil {
			report = &models.Report{
				SchoolID:       in.SchoolID,
				UserID:         in.UserID,
				ReportType:     reportType,
				InspectionDate: in.InspectionDate,
				OverallRating:  models.OverallRating(in.OverallRating),
				ClosingNotes:   in.ClosingNotes,
				Status:         models.StatusDraft,
				ClientDraftKey: &in.ClientKey,
			}
			if in.PreviousReportID != nil {
				if err := checkPrevious(tx, report, *in.PreviousReportID); err != nil {
					return err
				}
				report.PreviousReportID = in.PreviousReportID
				linkChanged = true
			}
			if err := tx.Create(report).Error; err != nil {
				return fmt.Errorf("failed to create draft report: %w", err)
			}
			result.Created = true
		} else {
			if report.Status != models.StatusDraft {
				return fmt.Errorf("%w: report %s is %s", models.ErrInvalidTransition, report.ID, report.Status)
			}
			if report.SchoolID != in.SchoolID {
				return models.NewValidationError("school_id", "draft belongs to another school")
			}
			updates := map[string]interface{}{
				"report_type":     reportType,
				"inspection_date": in.InspectionDate,
				"closing_notes":   in.ClosingNotes,
			}
			if report.ClientDraftKey == nil {
				updates["client_draft_key"] = in.ClientKey
			}
			if in.OverallRating != "" {
				updates["overall_rating"] = in.OverallRating
			}
			if in.PreviousReportID != nil && (report.PreviousReportID == nil || *report.PreviousReportID != *in.PreviousReportID) {
				if err := checkPrevious(tx, report, *in.PreviousReportID); err != nil {
					return err
				}
				updates["previous_report_id"] = *in.PreviousReportID
				linkChanged = true
			}
			if err := tx.Model(report).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update draft report: %w", err)
			}
		}

		l := s.ledger.WithTx(tx)
		payload := in.Responses
		if !result.Created {
			// field clients never send the previous values copied at link time
			if payload, err = l.KeepPrevious(ctx, report.ID, payload); err != nil {
				return err
			}
		}
		saved, err := l.BulkSave(ctx, report.ID, payload)
		if err != nil {
			return err
		}
		result.Responses = saved

		if linkChanged {
			if _, err := l.SnapshotPrevious(ctx, report.ID, *in.PreviousReportID); err != nil {
				return err
			}
		}

		result.Report, err = getReport(tx, report.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"report_id":  result.Report.ID,
		"client_key": in.ClientKey,
		"created":    result.Created,
		"responses":  result.Responses,
	}).Info("✅ draft synced")
	return result, nil
}

func findDraft(tx *gorm.DB, in DraftInput) (*models.Report, error) {
	if in.ID != nil {
		return getReport(tx, *in.ID)
	}
	var report models.Report
	err := tx.Where("client_draft_key = ?", in.ClientKey).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up draft: %w", err)
	}
	return &report, nil
}

// FollowUpInput starts a new inspection from an earlier one.
type FollowUpInput struct {
	InspectionDate models.Date `json:"inspectionDate"`
	ReportType     string      `json:"reportType" validate:"omitempty,oneof=new_acquisition tier1 tier1_tier2"`
	UserID         string      `json:"-"`
}

// StartFollowUp creates a draft linked to previousID and seeds it with the
// previous report's responses.
func (s *Service) StartFollowUp(ctx context.Context, previousID uuid.UUID, in FollowUpInput) (*models.Report, error) {
	if err := s.checkInput(in, in.InspectionDate); err != nil {
		return nil, err
	}

	var report *models.Report
	copied := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := getReport(tx, previousID)
		if err != nil {
			return err
		}
		reportType := prev.ReportType
		if in.ReportType != "" {
			reportType = models.ReportType(in.ReportType)
		}

		report = &models.Report{
			SchoolID:         prev.SchoolID,
			UserID:           in.UserID,
			ReportType:       reportType,
			InspectionDate:   in.InspectionDate,
			PreviousReportID: &prev.ID,
			Status:           models.StatusDraft,
		}
		if err := tx.Create(report).Error; err != nil {
			return fmt.Errorf("failed to create follow-up report: %w", err)
		}

		copied, err = s.ledger.WithTx(tx).CopyForFollowUp(ctx, prev.ID, report.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"report_id":   report.ID,
		"previous_id": previousID,
		"responses":   copied,
	}).Info("✅ follow-up report started")
	return report, nil
}
