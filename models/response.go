package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultEvidenceType = "observation"

// Response is the rating recorded for one checklist item on one report.
// PreviousRating/PreviousNotes are copied from the linked previous report
// when the link is made and are not kept in sync afterwards.
type Response struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID       uuid.UUID `gorm:"type:uuid;not null;index:idx_response_report_key,priority:1" json:"reportId"`
	SectionKey     string    `gorm:"size:100;not null;index:idx_response_report_key,priority:2" json:"sectionKey"`
	ItemKey        string    `gorm:"size:100;not null;index:idx_response_report_key,priority:3" json:"itemKey"`
	Rating         Rating    `gorm:"size:20;not null;default:na" json:"rating"`
	Notes          string    `gorm:"type:text" json:"notes"`
	EvidenceType   string    `gorm:"size:30;not null;default:observation" json:"evidenceType"`
	PreviousRating Rating    `gorm:"size:20" json:"previousRating"`
	PreviousNotes  string    `gorm:"type:text" json:"previousNotes"`
}

func (r *Response) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}

// Key identifies the checklist item a response belongs to.
func (r Response) Key() ItemKey {
	return ItemKey{Section: r.SectionKey, Item: r.ItemKey}
}

// ItemKey is the (section, item) pair that is unique within a resolved checklist.
type ItemKey struct {
	Section string
	Item    string
}

func (k ItemKey) String() string {
	return k.Section + "/" + k.Item
}

// Less orders keys by section then item.
func (k ItemKey) Less(o ItemKey) bool {
	if k.Section != o.Section {
		return k.Section < o.Section
	}
	return k.Item < o.Item
}
