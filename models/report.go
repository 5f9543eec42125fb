package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReportType selects which checklist a report is inspected against.
type ReportType string

const (
	ReportNewAcquisition ReportType = "new_acquisition"
	ReportTier1          ReportType = "tier1"
	ReportTier1Tier2     ReportType = "tier1_tier2"
)

// ReportTypes lists every report type in display order.
var ReportTypes = []ReportType{ReportNewAcquisition, ReportTier1, ReportTier1Tier2}

func ParseReportType(s string) (ReportType, error) {
	for _, t := range ReportTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", NewValidationError("report_type", "unknown report type %q", s)
}

// Label is the human readable report type.
func (t ReportType) Label() string {
	switch t {
	case ReportNewAcquisition:
		return "New Acquisition"
	case ReportTier1:
		return "Tier 1"
	case ReportTier1Tier2:
		return "Tier 1 + Tier 2"
	}
	return string(t)
}

// ReportStatus advances draft -> submitted -> approved and never back.
type ReportStatus string

const (
	StatusDraft     ReportStatus = "draft"
	StatusSubmitted ReportStatus = "submitted"
	StatusApproved  ReportStatus = "approved"
)

// Report is one inspection of a school.
type Report struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	SchoolID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"schoolId"`
	School           *School       `gorm:"foreignKey:SchoolID" json:"school,omitempty"`
	UserID           string        `gorm:"size:100;index" json:"userId"`
	ReportType       ReportType    `gorm:"size:30;not null;index" json:"reportType"`
	InspectionDate   Date          `gorm:"not null;index" json:"inspectionDate"`
	PreviousReportID *uuid.UUID    `gorm:"type:uuid;index" json:"previousReportId,omitempty"`
	OverallRating    OverallRating `gorm:"size:30;not null;default:pending" json:"overallRating"`
	ClosingNotes     string        `gorm:"type:text" json:"closingNotes"`
	Status           ReportStatus  `gorm:"size:20;not null;default:draft;index" json:"status"`
	ClientDraftKey   *uuid.UUID    `gorm:"type:uuid;uniqueIndex" json:"clientDraftKey,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusDraft
	}
	if r.OverallRating == "" {
		r.OverallRating = OverallPending
	}
	return
}

// ReportTransition is the audit trail of workflow actions on a report.
type ReportTransition struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID  uuid.UUID    `gorm:"type:uuid;not null;index" json:"reportId"`
	FromState ReportStatus `gorm:"size:20;not null" json:"fromState"`
	ToState   ReportStatus `gorm:"size:20;not null" json:"toState"`
	Action    string       `gorm:"size:30;not null" json:"action"`
	ActorID   string       `gorm:"size:100" json:"actorId"`
	Comment   string       `gorm:"type:text" json:"comment"`
	CreatedAt time.Time    `json:"createdAt"`
}

func (t *ReportTransition) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}

func (t ReportTransition) String() string {
	return fmt.Sprintf("%s: %s -> %s", t.Action, t.FromState, t.ToState)
}
