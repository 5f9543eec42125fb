// Package ledger stores checklist responses. The only write path is
// BulkSave, which replaces every response of a report in one transaction.
package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"p9e.in/qareports/config"
	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/metrics"
)

const insertBatchSize = 200

// Entry is the client-supplied value for one checklist item.
type Entry struct {
	Rating         string `json:"rating"`
	Notes          string `json:"notes"`
	EvidenceType   string `json:"evidenceType,omitempty"`
	PreviousRating string `json:"previousRating,omitempty"`
	PreviousNotes  string `json:"previousNotes,omitempty"`
}

// Payload is section key -> item key -> entry.
type Payload map[string]map[string]Entry

// Grouped is section key -> item key -> response.
type Grouped map[string]map[string]models.Response

// Ledger reads and writes responses.
type Ledger struct {
	db      *gorm.DB
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewLedger returns a Ledger backed by db.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{
		db:      db,
		log:     config.ComponentLogger("ledger"),
		metrics: metrics.Get(),
	}
}

// WithTx returns a Ledger that runs on tx, for callers that need responses
// written in their own transaction.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	cp := *l
	cp.db = tx
	return &cp
}

// GetByReport returns the report's responses ordered by section then item.
func (l *Ledger) GetByReport(ctx context.Context, reportID uuid.UUID) ([]models.Response, error) {
	responses := []models.Response{}
	if err := l.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("section_key ASC").Order("item_key ASC").
		Find(&responses).Error; err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}
	return responses, nil
}

// GetByReportGrouped returns the report's responses keyed by section and item.
func (l *Ledger) GetByReportGrouped(ctx context.Context, reportID uuid.UUID) (Grouped, error) {
	responses, err := l.GetByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return Group(responses), nil
}

// Group indexes responses by section and item key.
func Group(responses []models.Response) Grouped {
	grouped := Grouped{}
	for _, r := range responses {
		if grouped[r.SectionKey] == nil {
			grouped[r.SectionKey] = map[string]models.Response{}
		}
		grouped[r.SectionKey][r.ItemKey] = r
	}
	return grouped
}

// BulkSave replaces all responses of a report with payload. Items left out
// of payload lose their stored response, so callers always send the full
// set. The delete and the inserts commit together or not at all, which
// makes repeating a payload a no-op.
func (l *Ledger) BulkSave(ctx context.Context, reportID uuid.UUID, payload Payload) (int, error) {
	rows, err := payload.Rows(reportID)
	if err != nil {
		l.metrics.BulkSaves.WithLabelValues("invalid").Inc()
		return 0, err
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("report_id = ?", reportID).Delete(&models.Response{}).Error; err != nil {
			return fmt.Errorf("failed to clear responses: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert responses: %w", err)
		}
		return nil
	})
	if err != nil {
		l.metrics.BulkSaves.WithLabelValues("error").Inc()
		config.LogError(l.log, "ledger", "BulkSave", "bulk save rolled back", reportID, err)
		return 0, err
	}

	l.metrics.BulkSaves.WithLabelValues("ok").Inc()
	l.metrics.ResponsesWritten.Add(float64(len(rows)))
	l.log.WithFields(logrus.Fields{"report_id": reportID, "responses": len(rows)}).Debug("✅ responses saved")
	return len(rows), nil
}

// Rows validates the payload and builds the rows BulkSave inserts, in
// section/item order with defaults applied.
func (p Payload) Rows(reportID uuid.UUID) ([]models.Response, error) {
	keys := make([]models.ItemKey, 0)
	for section, items := range p {
		if section == "" {
			return nil, models.NewValidationError("responses", "empty section key")
		}
		for item := range items {
			if item == "" {
				return nil, models.NewValidationError("responses", "empty item key in section %q", section)
			}
			keys = append(keys, models.ItemKey{Section: section, Item: item})
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	rows := make([]models.Response, 0, len(keys))
	for _, k := range keys {
		e := p[k.Section][k.Item]
		rating, err := models.ParseRating(e.Rating)
		if err != nil {
			return nil, models.NewValidationError("responses", "%s: %v", k, err)
		}
		var previous models.Rating
		if e.PreviousRating != "" {
			if previous, err = models.ParseRating(e.PreviousRating); err != nil {
				return nil, models.NewValidationError("responses", "%s previous: %v", k, err)
			}
		}
		evidence := e.EvidenceType
		if evidence == "" {
			evidence = models.DefaultEvidenceType
		}
		rows = append(rows, models.Response{
			ReportID:       reportID,
			SectionKey:     k.Section,
			ItemKey:        k.Item,
			Rating:         rating,
			Notes:          e.Notes,
			EvidenceType:   evidence,
			PreviousRating: previous,
			PreviousNotes:  e.PreviousNotes,
		})
	}
	return rows, nil
}

// PayloadFrom turns stored responses back into a payload, keeping the
// previous values. Resending it through BulkSave leaves the ledger unchanged.
func PayloadFrom(responses []models.Response) Payload {
	p := Payload{}
	for _, r := range responses {
		if p[r.SectionKey] == nil {
			p[r.SectionKey] = map[string]Entry{}
		}
		p[r.SectionKey][r.ItemKey] = Entry{
			Rating:         string(r.Rating),
			Notes:          r.Notes,
			EvidenceType:   r.EvidenceType,
			PreviousRating: string(r.PreviousRating),
			PreviousNotes:  r.PreviousNotes,
		}
	}
	return p
}

// DeleteByReport removes every response of a report.
func (l *Ledger) DeleteByReport(ctx context.Context, reportID uuid.UUID) error {
	if err := l.db.WithContext(ctx).Where("report_id = ?", reportID).Delete(&models.Response{}).Error; err != nil {
		return fmt.Errorf("failed to delete responses: %w", err)
	}
	return nil
}
