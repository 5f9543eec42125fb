// Package reports owns the report aggregate: creation, linking to a
// previous inspection, workflow, cascade delete and the assembled view.
package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"p9e.in/qareports/config"
	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/checklist"
	"p9e.in/qareports/pkg/ledger"
)

// Service manages reports.
type Service struct {
	db       *gorm.DB
	registry *checklist.Registry
	ledger   *ledger.Ledger
	validate *validator.Validate
	log      logrus.FieldLogger
	now      func() time.Time

	visitIntervalDays int
}

// Option customises a Service.
type Option func(*Service)

// WithVisitInterval sets the days between expected visits to a school.
func WithVisitInterval(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.visitIntervalDays = days
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *gorm.DB, registry *checklist.Registry, l *ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		db:                db,
		registry:          registry,
		ledger:            l,
		validate:          validator.New(),
		log:               config.ComponentLogger("reports"),
		now:               time.Now,
		visitIntervalDays: 90,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry is the checklist registry the service resolves against.
func (s *Service) Registry() *checklist.Registry { return s.registry }

// Ledger is the response ledger the service writes through.
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// CreateInput is the payload for a new report.
type CreateInput struct {
	SchoolID         uuid.UUID   `json:"schoolId" validate:"required"`
	ReportType       string      `json:"reportType" validate:"required,oneof=new_acquisition tier1 tier1_tier2"`
	InspectionDate   models.Date `json:"inspectionDate"`
	PreviousReportID *uuid.UUID  `json:"previousReportId"`
	OverallRating    string      `json:"overallRating" validate:"omitempty,oneof=exceeds meets needs_improvement pending"`
	ClosingNotes     string      `json:"closingNotes"`
	UserID           string      `json:"-"`
}

func (s *Service) checkInput(in any, date models.Date) error {
	if err := s.validate.Struct(in); err != nil {
		return models.ValidationFailed(err)
	}
	if date.IsZero() {
		return models.NewValidationError("inspection_date", "is required")
	}
	return nil
}

// Create stores a new draft report.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Report, error) {
	if err := s.checkInput(in, in.InspectionDate); err != nil {
		return nil, err
	}
	reportType, err := models.ParseReportType(in.ReportType)
	if err != nil {
		return nil, err
	}

	var report *models.Report
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getSchool(tx, in.SchoolID); err != nil {
			return err
		}
		report = &models.Report{
			SchoolID:       in.SchoolID,
			UserID:         in.UserID,
			ReportType:     reportType,
			InspectionDate: in.InspectionDate,
			OverallRating:  models.OverallRating(in.OverallRating),
			ClosingNotes:   in.ClosingNotes,
			Status:         models.StatusDraft,
		}
		if in.PreviousReportID != nil {
			if err := checkPrevious(tx, report, *in.PreviousReportID); err != nil {
				return err
			}
			report.PreviousReportID = in.PreviousReportID
		}
		if err := tx.Create(report).Error; err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"report_id": report.ID, "school_id": report.SchoolID, "type": report.ReportType}).
		Info("✅ report created")
	return report, nil
}

// Get loads a report with its school.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	return getReport(s.db.WithContext(ctx).Preload("School"), id)
}

func getReport(db *gorm.DB, id uuid.UUID) (*models.Report, error) {
	var report models.Report
	if err := db.First(&report, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("report %s: %w", id, models.ErrReportNotFound)
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	return &report, nil
}

func getSchool(db *gorm.DB, id uuid.UUID) (*models.School, error) {
	var school models.School
	if err := db.First(&school, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("school %s: %w", id, models.ErrSchoolNotFound)
		}
		return nil, fmt.Errorf("failed to load school: %w", err)
	}
	return &school, nil
}

// checkPrevious enforces that a previous report exists, is another report
// and belongs to the same school.
func checkPrevious(db *gorm.DB, report *models.Report, previousID uuid.UUID) error {
	if previousID == report.ID {
		return models.NewValidationError("previous_report_id", "a report cannot be compared with itself")
	}
	prev, err := getReport(db, previousID)
	if err != nil {
		if errors.Is(err, models.ErrReportNotFound) {
			return models.NewValidationError("previous_report_id", "report %s does not exist", previousID)
		}
		return err
	}
	if prev.SchoolID != report.SchoolID {
		return models.NewValidationError("previous_report_id", "previous report belongs to another school")
	}
	return nil
}

// Filter narrows List.
type Filter struct {
	SchoolID   *uuid.UUID
	ReportType models.ReportType
	Status     models.ReportStatus
	UserID     string
	Page       int
	PageSize   int
}

// List returns one page of reports, newest inspection first, and the total count.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Report, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}

	q := s.db.WithContext(ctx).Model(&models.Report{})
	if f.SchoolID != nil {
		q = q.Where("school_id = ?", *f.SchoolID)
	}
	if f.ReportType != "" {
		q = q.Where("report_type = ?", f.ReportType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	reports := []models.Report{}
	if err := q.Preload("School").
		Order("inspection_date DESC").Order("created_at DESC").
		Offset((f.Page - 1) * f.PageSize).Limit(f.PageSize).
		Find(&reports).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, total, nil
}

// UpdateInput patches report fields. Nil fields are left alone. Status is
// changed through Transition only.
type UpdateInput struct {
	ReportType       *string      `json:"reportType" validate:"omitempty,oneof=new_acquisition tier1 tier1_tier2"`
	InspectionDate   *models.Date `json:"inspectionDate"`
	PreviousReportID *uuid.UUID   `json:"previousReportId"`
	OverallRating    *string      `json:"overallRating" validate:"omitempty,oneof=exceeds meets needs_improvement pending"`
	ClosingNotes     *string      `json:"closingNotes"`
}

// Update applies a patch in one transaction. A new previous report is
// linked as in LinkPrevious, and a rejected link leaves the report as it was.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.Report, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, models.ValidationFailed(err)
	}

	report, err := getReport(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.ReportType != nil {
		updates["report_type"] = *in.ReportType
	}
	if in.InspectionDate != nil {
		if in.InspectionDate.IsZero() {
			return nil, models.NewValidationError("inspection_date", "is required")
		}
		updates["inspection_date"] = *in.InspectionDate
	}
	if in.OverallRating != nil {
		updates["overall_rating"] = *in.OverallRating
	}
	if in.ClosingNotes != nil {
		updates["closing_notes"] = *in.ClosingNotes
	}
	relink := in.PreviousReportID != nil &&
		(report.PreviousReportID == nil || *report.PreviousReportID != *in.PreviousReportID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if relink {
			if _, err := s.linkPrevious(ctx, tx, report, *in.PreviousReportID); err != nil {
				return err
			}
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(report).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update report: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// LinkPrevious sets the report to compare against and copies the previous
// report's ratings onto the matching responses. It returns how many
// responses were updated.
func (s *Service) LinkPrevious(ctx context.Context, id, previousID uuid.UUID) (int, error) {
	updated := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		report, err := getReport(tx, id)
		if err != nil {
			return err
		}
		updated, err = s.linkPrevious(ctx, tx, report, previousID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// linkPrevious validates previousID, stores the link and takes the
// snapshot, all on tx.
func (s *Service) linkPrevious(ctx context.Context, tx *gorm.DB, report *models.Report, previousID uuid.UUID) (int, error) {
	if err := checkPrevious(tx, report, previousID); err != nil {
		return 0, err
	}
	if err := tx.Model(report).Update("previous_report_id", previousID).Error; err != nil {
		return 0, fmt.Errorf("failed to link previous report: %w", err)
	}
	return s.ledger.WithTx(tx).SnapshotPrevious(ctx, report.ID, previousID)
}

// SaveResponses bulk-saves responses after checking the report exists.
// Entries sent without previous values keep the stored ones.
func (s *Service) SaveResponses(ctx context.Context, id uuid.UUID, payload ledger.Payload) (int, error) {
	saved := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getReport(tx, id); err != nil {
			return err
		}
		l := s.ledger.WithTx(tx)
		kept, err := l.KeepPrevious(ctx, id, payload)
		if err != nil {
			return err
		}
		saved, err = l.BulkSave(ctx, id, kept)
		return err
	})
	return saved, err
}

// Responses returns the grouped responses of an existing report.
func (s *Service) Responses(ctx context.Context, id uuid.UUID) (ledger.Grouped, error) {
	if _, err := getReport(s.db.WithContext(ctx), id); err != nil {
		return nil, err
	}
	return s.ledger.GetByReportGrouped(ctx, id)
}

// Delete removes a report together with its responses, photos, summary and
// workflow history. It returns the storage references of the deleted
// photos so the caller can remove the files.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) ([]string, error) {
	var refs []string

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if _, err := getReport(tx, id); err != nil {
		tx.Rollback()
		return nil, err
	}

	var photos []models.Photo
	if err := tx.Where("report_id = ?", id).Find(&photos).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to load photos: %w", err)
	}
	for _, p := range photos {
		refs = append(refs, p.ExternalFileRef)
		if p.ThumbnailRef != "" {
			refs = append(refs, p.ThumbnailRef)
		}
	}

	if err := s.ledger.WithTx(tx).DeleteByReport(ctx, id); err != nil {
		tx.Rollback()
		return nil, err
	}
	cascade := []interface{}{&models.Photo{}, &models.AISummary{}, &models.ReportTransition{}}
	for _, model := range cascade {
		if err := tx.Where("report_id = ?", id).Delete(model).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to delete %T: %w", model, err)
		}
	}
	// Later reports keep existing but lose their comparison target.
	if err := tx.Model(&models.Report{}).Where("previous_report_id = ?", id).
		Update("previous_report_id", nil).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to unlink follow-up reports: %w", err)
	}
	if err := tx.Delete(&models.Report{}, "id = ?", id).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to delete report: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}

	s.log.WithFields(logrus.Fields{"report_id": id, "photos": len(photos)}).Info("🗑️ report deleted")
	return refs, nil
}
