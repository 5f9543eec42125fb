package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"p9e.in/qareports/models"
)

// NeverVisited is DaysUntilDue for a school with no reports.
const NeverVisited = -999

const defaultReminderInterval = 24 * time.Hour

// SchoolVisit is a school's visit status.
type SchoolVisit struct {
	School         models.School `json:"school"`
	LastInspection *models.Date  `json:"lastInspection,omitempty"`
	LastReportID   *string       `json:"lastReportId,omitempty"`
	DaysUntilDue   int           `json:"daysUntilDue"`
	IsOverdue      bool          `json:"isOverdue"`
}

// SchoolsDueForVisit lists active schools due for a visit within
// thresholdDays, most overdue first. Never visited schools are always due.
func (s *Service) SchoolsDueForVisit(ctx context.Context, thresholdDays int) ([]SchoolVisit, error) {
	db := s.db.WithContext(ctx)

	var schools []models.School
	if err := db.Where("status = ?", models.SchoolActive).Order("name ASC").Find(&schools).Error; err != nil {
		return nil, fmt.Errorf("failed to load schools: %w", err)
	}

	today := models.NewDate(s.now()).Time()
	due := []SchoolVisit{}
	for _, school := range schools {
		visit := SchoolVisit{School: school}

		var last models.Report
		err := db.Where("school_id = ?", school.ID).
			Order("inspection_date DESC").Order("created_at DESC").
			First(&last).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			visit.DaysUntilDue = NeverVisited
			visit.IsOverdue = true
		case err != nil:
			return nil, fmt.Errorf("failed to load last report of %s: %w", school.ID, err)
		default:
			next := last.InspectionDate.Time().AddDate(0, 0, s.visitIntervalDays)
			visit.DaysUntilDue = int(next.Sub(today).Hours() / 24)
			visit.IsOverdue = visit.DaysUntilDue < 0
			date := last.InspectionDate
			id := last.ID.String()
			visit.LastInspection = &date
			visit.LastReportID = &id
		}

		if visit.DaysUntilDue <= thresholdDays {
			due = append(due, visit)
		}
	}

	sort.SliceStable(due, func(i, j int) bool { return due[i].DaysUntilDue < due[j].DaysUntilDue })
	return due, nil
}

// OverdueSchools lists active schools past their visit interval.
func (s *Service) OverdueSchools(ctx context.Context) ([]SchoolVisit, error) {
	due, err := s.SchoolsDueForVisit(ctx, 0)
	if err != nil {
		return nil, err
	}
	overdue := due[:0]
	for _, v := range due {
		if v.IsOverdue {
			overdue = append(overdue, v)
		}
	}
	return overdue, nil
}

// Reminder periodically logs the schools due for a visit.
type Reminder struct {
	service   *Service
	interval  time.Duration
	threshold int
	log       logrus.FieldLogger
}

func NewReminder(service *Service, interval time.Duration, thresholdDays int) *Reminder {
	if interval <= 0 {
		interval = defaultReminderInterval
	}
	return &Reminder{
		service:   service,
		interval:  interval,
		threshold: thresholdDays,
		log:       service.log.WithField("job", "visit_reminder"),
	}
}

// Run checks once immediately and then on every tick until ctx is done.
func (r *Reminder) Run(ctx context.Context) {
	r.log.WithField("interval", r.interval.String()).Info("📅 Starting visit reminder")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("📅 visit reminder stopped")
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}

// Check logs one line per school due within the threshold and returns them.
func (r *Reminder) Check(ctx context.Context) []SchoolVisit {
	due, err := r.service.SchoolsDueForVisit(ctx, r.threshold)
	if err != nil {
		r.log.WithError(err).Warn("⚠️  Failed to check schools due for a visit")
		return nil
	}

	r.log.Infof("🔍 Found %d schools due for a visit", len(due))
	for _, v := range due {
		fields := logrus.Fields{"school_id": v.School.ID, "school": v.School.Name, "days_until_due": v.DaysUntilDue}
		switch {
		case v.DaysUntilDue == NeverVisited:
			r.log.WithFields(fields).Warn("⚠️  school has never been inspected")
		case v.IsOverdue:
			r.log.WithFields(fields).Warn("⚠️  school visit overdue")
		default:
			r.log.WithFields(fields).Info("📋 school visit coming up")
		}
	}
	return due
}
