package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SummaryIssue is a finding the generator flagged.
type SummaryIssue struct {
	Severity    string `json:"severity"`
	Section     string `json:"section"`
	Description string `json:"description"`
}

// SummaryRecommendation is a point of interest with a suggested action.
type SummaryRecommendation struct {
	Section        string `json:"section"`
	Recommendation string `json:"recommendation"`
}

// SummaryComparison lists what moved against the previous report.
type SummaryComparison struct {
	Improvements []string `json:"improvements"`
	Regressions  []string `json:"regressions"`
}

// AISummary is the stored executive summary, at most one per report.
type AISummary struct {
	ID               uuid.UUID                                  `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID         uuid.UUID                                  `gorm:"type:uuid;not null;uniqueIndex" json:"reportId"`
	ExecutiveSummary string                                     `gorm:"type:text" json:"executiveSummary"`
	Issues           datatypes.JSONType[[]SummaryIssue]          `json:"issues"`
	PointsOfInterest datatypes.JSONType[[]SummaryRecommendation] `json:"pointsOfInterest"`
	Comparison       datatypes.JSONType[SummaryComparison]       `json:"comparison"`
	SuggestedRating  OverallRating                              `gorm:"size:30" json:"suggestedRating"`
	Model            string                                     `gorm:"size:100" json:"model"`
	GeneratedAt      time.Time                                  `json:"generatedAt"`
}

func (s *AISummary) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}
