package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GeneralSection is where photos without a section key are grouped.
const GeneralSection = "general"

// Photo is an evidence image attached to a report. SectionKey is either a
// section key or "section|item" for photos taken against a single item.
type Photo struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"reportId"`
	SectionKey      string     `gorm:"size:210;index" json:"sectionKey"`
	LocationTag     *string    `gorm:"size:100;index" json:"locationTag,omitempty"`
	ExternalFileRef string     `gorm:"size:500;not null" json:"externalFileRef"`
	ThumbnailRef    string     `gorm:"size:500" json:"thumbnailRef"`
	Filename        string     `gorm:"size:255" json:"filename"`
	Caption         string     `gorm:"type:text" json:"caption"`
	HasMarkup       bool       `gorm:"default:false" json:"hasMarkup"`
	SortOrder       int        `gorm:"default:0" json:"sortOrder"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	// ClientKey is set by field clients so a retried upload finds this row.
	ClientKey       *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"clientKey,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (p *Photo) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return
}

// Tag returns the trimmed location tag, "" when untagged.
func (p Photo) Tag() string {
	if p.LocationTag == nil {
		return ""
	}
	return strings.TrimSpace(*p.LocationTag)
}

// ItemSectionKey builds the composite key used for item-scoped photos.
func ItemSectionKey(section, item string) string {
	if item == "" {
		return section
	}
	return section + "|" + item
}

// SplitSectionKey reverses ItemSectionKey. item is "" for general photos.
func SplitSectionKey(key string) (section, item string) {
	section, item, _ = strings.Cut(key, "|")
	return section, item
}
