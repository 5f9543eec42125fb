package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"p9e.in/qareports/models"
)

// SnapshotPrevious copies rating and notes from the previous report onto
// the matching responses of reportID. It runs when a report is linked to a
// previous one; later edits to the previous report are not reflected.
// Responses with no counterpart get their previous values cleared.
func (l *Ledger) SnapshotPrevious(ctx context.Context, reportID, previousReportID uuid.UUID) (int, error) {
	updated := 0
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current, previous []models.Response
		if err := tx.Where("report_id = ?", reportID).Find(&current).Error; err != nil {
			return fmt.Errorf("failed to load responses: %w", err)
		}
		if err := tx.Where("report_id = ?", previousReportID).Find(&previous).Error; err != nil {
			return fmt.Errorf("failed to load previous responses: %w", err)
		}

		prior := make(map[models.ItemKey]models.Response, len(previous))
		for _, p := range previous {
			prior[p.Key()] = p
		}

		for _, r := range current {
			var rating models.Rating
			var notes string
			if p, ok := prior[r.Key()]; ok {
				rating, notes = p.Rating, p.Notes
			}
			if r.PreviousRating == rating && r.PreviousNotes == notes {
				continue
			}
			if err := tx.Model(&models.Response{}).Where("id = ?", r.ID).
				Updates(map[string]interface{}{"previous_rating": rating, "previous_notes": notes}).Error; err != nil {
				return fmt.Errorf("failed to snapshot %s: %w", r.Key(), err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	l.log.WithFields(logrus.Fields{
		"report_id":   reportID,
		"previous_id": previousReportID,
		"updated":     updated,
	}).Info("📋 previous ratings copied")
	return updated, nil
}

// CopyForFollowUp seeds toReportID with fromReportID's responses. Ratings
// and notes become both the starting values and the previous values.
func (l *Ledger) CopyForFollowUp(ctx context.Context, fromReportID, toReportID uuid.UUID) (int, error) {
	source, err := l.GetByReport(ctx, fromReportID)
	if err != nil {
		return 0, err
	}

	payload := Payload{}
	for _, r := range source {
		if payload[r.SectionKey] == nil {
			payload[r.SectionKey] = map[string]Entry{}
		}
		payload[r.SectionKey][r.ItemKey] = Entry{
			Rating:         string(r.Rating),
			Notes:          r.Notes,
			EvidenceType:   r.EvidenceType,
			PreviousRating: string(r.Rating),
			PreviousNotes:  r.Notes,
		}
	}
	return l.BulkSave(ctx, toReportID, payload)
}

// KeepPrevious returns a copy of payload in which every entry without
// previous values takes them from the stored response of reportID. Clients
// that never saw the snapshot can resend their ratings without erasing it.
func (l *Ledger) KeepPrevious(ctx context.Context, reportID uuid.UUID, payload Payload) (Payload, error) {
	stored, err := l.GetByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	prior := make(map[models.ItemKey]models.Response, len(stored))
	for _, r := range stored {
		if r.PreviousRating != "" || r.PreviousNotes != "" {
			prior[r.Key()] = r
		}
	}

	out := make(Payload, len(payload))
	for section, items := range payload {
		out[section] = make(map[string]Entry, len(items))
		for item, e := range items {
			if e.PreviousRating == "" && e.PreviousNotes == "" {
				if r, ok := prior[models.ItemKey{Section: section, Item: item}]; ok {
					e.PreviousRating, e.PreviousNotes = string(r.PreviousRating), r.PreviousNotes
				}
			}
			out[section][item] = e
		}
	}
	return out, nil
}
