package reports

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/checklist"
	"p9e.in/qareports/pkg/comparison"
)

// ResponseView is a stored response with its change against the rating
// copied from the previous report.
type ResponseView struct {
	models.Response
	comparison.Diff
	Class comparison.Class `json:"class"`
}

// ReportView is everything a report page shows.
type ReportView struct {
	Report         *models.Report                     `json:"report"`
	PreviousReport *models.Report                     `json:"previousReport,omitempty"`
	Checklist      checklist.Definition               `json:"checklist"`
	Responses      map[string]map[string]ResponseView `json:"responses"`
	Photos         map[string][]models.Photo          `json:"photos"`
	PhotoPairs     []comparison.Pair                  `json:"photoPairs"`
	PhotoSummary   *comparison.PhotoSummary           `json:"photoSummary,omitempty"`
	Progress       checklist.Stats                    `json:"progress"`
	AISummary      *models.AISummary                  `json:"aiSummary,omitempty"`
}

// View assembles the report with its checklist, responses, photos,
// photo comparison, progress and AI summary. An unlinked or deleted
// previous report leaves the comparison parts empty.
func (s *Service) View(ctx context.Context, id uuid.UUID) (*ReportView, error) {
	db := s.db.WithContext(ctx)
	report, err := getReport(db.Preload("School"), id)
	if err != nil {
		return nil, err
	}

	var classrooms models.ClassroomConfig
	if report.School != nil {
		classrooms = report.School.Classrooms()
	}
	def, err := s.registry.ResolveForSchool(report.ReportType, classrooms)
	if err != nil {
		return nil, err
	}

	responses, err := s.ledger.GetByReport(ctx, id)
	if err != nil {
		return nil, err
	}
	photos, err := reportPhotos(db, id)
	if err != nil {
		return nil, err
	}

	view := &ReportView{
		Report:     report,
		Checklist:  def,
		Responses:  map[string]map[string]ResponseView{},
		Photos:     map[string][]models.Photo{},
		PhotoPairs: []comparison.Pair{},
	}

	for _, r := range responses {
		d := comparison.DiffSnapshot(r)
		if view.Responses[r.SectionKey] == nil {
			view.Responses[r.SectionKey] = map[string]ResponseView{}
		}
		view.Responses[r.SectionKey][r.ItemKey] = ResponseView{
			Response: r,
			Diff:     d,
			Class:    comparison.Classify(d, r.Rating, r.PreviousRating),
		}
	}

	for _, p := range photos {
		key := p.SectionKey
		if key == "" {
			key = models.GeneralSection
		}
		view.Photos[key] = append(view.Photos[key], p)
	}

	prev, err := s.previousReport(db, report)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		view.PreviousReport = prev
		previousPhotos, err := reportPhotos(db, prev.ID)
		if err != nil {
			return nil, err
		}
		view.PhotoPairs = comparison.PairPhotos(photos, previousPhotos)
		summary := comparison.SummarizePhotos(photos, previousPhotos)
		view.PhotoSummary = &summary
	}

	static, err := s.registry.Resolve(report.ReportType)
	if err != nil {
		return nil, err
	}
	view.Progress = checklist.ProgressStats(static, responses)

	var summary models.AISummary
	err = db.Where("report_id = ?", id).First(&summary).Error
	switch {
	case err == nil:
		view.AISummary = &summary
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to load ai summary: %w", err)
	}

	return view, nil
}

// previousReport returns the linked previous report, or nil when the
// report is unlinked or the link is dangling.
func (s *Service) previousReport(db *gorm.DB, report *models.Report) (*models.Report, error) {
	if report.PreviousReportID == nil {
		return nil, nil
	}
	prev, err := getReport(db, *report.PreviousReportID)
	if errors.Is(err, models.ErrReportNotFound) {
		s.log.WithField("report_id", report.ID).Warn("⚠️ previous report link is dangling")
		return nil, nil
	}
	return prev, err
}

func reportPhotos(db *gorm.DB, reportID uuid.UUID) ([]models.Photo, error) {
	photos := []models.Photo{}
	if err := db.Where("report_id = ?", reportID).
		Order("sort_order ASC").Order("created_at ASC").
		Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to load photos: %w", err)
	}
	return photos, nil
}

// ProgressStats counts the rated items of a report against its static checklist.
func (s *Service) ProgressStats(ctx context.Context, id uuid.UUID) (checklist.Stats, error) {
	report, err := getReport(s.db.WithContext(ctx), id)
	if err != nil {
		return checklist.Stats{}, err
	}
	def, err := s.registry.Resolve(report.ReportType)
	if err != nil {
		return checklist.Stats{}, err
	}
	responses, err := s.ledger.GetByReport(ctx, id)
	if err != nil {
		return checklist.Stats{}, err
	}
	return checklist.ProgressStats(def, responses), nil
}

// ComparisonResult compares a report with the current state of its
// previous report.
type ComparisonResult struct {
	ReportID         uuid.UUID                  `json:"reportId"`
	PreviousReportID *uuid.UUID                 `json:"previousReportId,omitempty"`
	Deltas           []comparison.ResponseDelta `json:"deltas"`
	Summary          comparison.Summary         `json:"summary"`
	PhotoPairs       []comparison.Pair          `json:"photoPairs"`
	OrphanedPhotos   []models.Photo             `json:"orphanedPhotos"`
	PhotoSummary     comparison.PhotoSummary    `json:"photoSummary"`
}

// Comparison aligns the report's responses and photos with those of the
// linked previous report as they are now. Without a previous report every
// delta is unchanged and there are no pairs.
func (s *Service) Comparison(ctx context.Context, id uuid.UUID) (*ComparisonResult, error) {
	db := s.db.WithContext(ctx)
	report, err := getReport(db, id)
	if err != nil {
		return nil, err
	}
	current, err := s.ledger.GetByReport(ctx, id)
	if err != nil {
		return nil, err
	}
	photos, err := reportPhotos(db, id)
	if err != nil {
		return nil, err
	}

	var previous []models.Response
	var previousPhotos []models.Photo
	result := &ComparisonResult{ReportID: id}

	prev, err := s.previousReport(db, report)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		result.PreviousReportID = &prev.ID
		if previous, err = s.ledger.GetByReport(ctx, prev.ID); err != nil {
			return nil, err
		}
		if previousPhotos, err = reportPhotos(db, prev.ID); err != nil {
			return nil, err
		}
	}

	result.Deltas = comparison.CompareResponses(current, previous)
	result.Summary = comparison.Summarize(result.Deltas)
	result.PhotoPairs = comparison.PairPhotos(photos, previousPhotos)
	if prev == nil {
		result.PhotoPairs = []comparison.Pair{}
	}
	result.OrphanedPhotos = comparison.OrphanedPrevious(photos, previousPhotos)
	if result.OrphanedPhotos == nil {
		result.OrphanedPhotos = []models.Photo{}
	}
	result.PhotoSummary = comparison.SummarizePhotos(photos, previousPhotos)
	return result, nil
}
