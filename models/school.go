package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ClassroomConfig maps a classroom type key (toddler, threes, ...) to the
// number of such classrooms at a school.
type ClassroomConfig map[string]int

// School is an inspected site.
type School struct {
	ID              uuid.UUID                           `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string                              `gorm:"size:200;not null" json:"name"`
	Location        string                              `gorm:"size:255" json:"location"`
	Region          string                              `gorm:"size:100;index" json:"region"`
	Status          string                              `gorm:"size:20;default:active;index" json:"status"`
	AcquiredDate    *Date                               `json:"acquiredDate,omitempty"`
	ClassroomConfig datatypes.JSONType[ClassroomConfig] `json:"classroomConfig"`
	DriveFolderID   string                              `gorm:"size:255" json:"driveFolderId"`
	Latitude        *float64                            `json:"latitude,omitempty"`
	Longitude       *float64                            `json:"longitude,omitempty"`
	Geofence        datatypes.JSON                      `json:"geofence,omitempty"` // GeoJSON polygon
	CreatedAt       time.Time                           `json:"createdAt"`
	UpdatedAt       time.Time                           `json:"updatedAt"`
}

const (
	SchoolActive   = "active"
	SchoolInactive = "inactive"
)

// Classrooms returns the classroom inventory, never nil.
func (s *School) Classrooms() ClassroomConfig {
	cfg := s.ClassroomConfig.Data()
	if cfg == nil {
		return ClassroomConfig{}
	}
	return cfg
}

// StorageRoot is the prefix photos for this school are stored under.
func (s *School) StorageRoot() string {
	if s.DriveFolderID != "" {
		return s.DriveFolderID
	}
	return "schools/" + s.ID.String()
}

func (s *School) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SchoolActive
	}
	return
}
