package reports

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"p9e.in/qareports/config"
	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/checklist"
	"p9e.in/qareports/pkg/geo"
)

// SchoolService manages schools.
type SchoolService struct {
	db       *gorm.DB
	registry *checklist.Registry
	validate *validator.Validate
	log      logrus.FieldLogger
}

func NewSchoolService(db *gorm.DB, registry *checklist.Registry) *SchoolService {
	return &SchoolService{
		db:       db,
		registry: registry,
		validate: validator.New(),
		log:      config.ComponentLogger("schools"),
	}
}

// SchoolInput creates or replaces a school.
type SchoolInput struct {
	Name            string                 `json:"name" validate:"required,max=200"`
	Location        string                 `json:"location" validate:"max=255"`
	Region          string                 `json:"region" validate:"max=100"`
	Status          string                 `json:"status" validate:"omitempty,oneof=active inactive"`
	AcquiredDate    *models.Date           `json:"acquiredDate"`
	ClassroomConfig models.ClassroomConfig `json:"classroomConfig"`
	DriveFolderID   string                 `json:"driveFolderId" validate:"max=255"`
	Latitude        *float64               `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude       *float64               `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Geofence        json.RawMessage        `json:"geofence"`
}

func (s *SchoolService) check(in SchoolInput) error {
	if err := s.validate.Struct(in); err != nil {
		return models.ValidationFailed(err)
	}
	for key, count := range in.ClassroomConfig {
		if !s.registry.IsClassroomType(key) {
			return models.NewValidationError("classroom_config", "unknown classroom type %q", key)
		}
		if count < 0 {
			return models.NewValidationError("classroom_config", "%s count must be >= 0", key)
		}
	}
	if len(in.Geofence) > 0 && string(in.Geofence) != "null" {
		if _, err := geo.ParseGeofence(in.Geofence); err != nil {
			return models.NewValidationError("geofence", "%v", err)
		}
	}
	return nil
}

func (in SchoolInput) apply(school *models.School) {
	school.Name = in.Name
	school.Location = in.Location
	school.Region = in.Region
	if in.Status != "" {
		school.Status = in.Status
	}
	school.AcquiredDate = in.AcquiredDate
	cfg := in.ClassroomConfig
	if cfg == nil {
		cfg = models.ClassroomConfig{}
	}
	school.ClassroomConfig = datatypes.NewJSONType(cfg)
	school.DriveFolderID = in.DriveFolderID
	school.Latitude = in.Latitude
	school.Longitude = in.Longitude
	school.Geofence = nil
	if len(in.Geofence) > 0 && string(in.Geofence) != "null" {
		school.Geofence = datatypes.JSON(in.Geofence)
	}
}

func (s *SchoolService) Create(ctx context.Context, in SchoolInput) (*models.School, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	school := &models.School{}
	in.apply(school)
	if err := s.db.WithContext(ctx).Create(school).Error; err != nil {
		return nil, fmt.Errorf("failed to create school: %w", err)
	}
	s.log.WithFields(logrus.Fields{"school_id": school.ID, "name": school.Name}).Info("✅ school created")
	return school, nil
}

func (s *SchoolService) Get(ctx context.Context, id uuid.UUID) (*models.School, error) {
	return getSchool(s.db.WithContext(ctx), id)
}

// List returns schools by name. An empty status lists every school.
func (s *SchoolService) List(ctx context.Context, status, region string) ([]models.School, error) {
	q := s.db.WithContext(ctx).Model(&models.School{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if region != "" {
		q = q.Where("region = ?", region)
	}
	schools := []models.School{}
	if err := q.Order("name ASC").Find(&schools).Error; err != nil {
		return nil, fmt.Errorf("failed to list schools: %w", err)
	}
	return schools, nil
}

// Update replaces the editable fields of a school.
func (s *SchoolService) Update(ctx context.Context, id uuid.UUID, in SchoolInput) (*models.School, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	school, err := getSchool(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	in.apply(school)
	if err := s.db.WithContext(ctx).Save(school).Error; err != nil {
		return nil, fmt.Errorf("failed to update school: %w", err)
	}
	return school, nil
}

// Delete removes a school that has no reports.
func (s *SchoolService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getSchool(tx, id); err != nil {
			return err
		}
		var reports int64
		if err := tx.Model(&models.Report{}).Where("school_id = ?", id).Count(&reports).Error; err != nil {
			return fmt.Errorf("failed to count reports: %w", err)
		}
		if reports > 0 {
			return fmt.Errorf("%w: %d reports", models.ErrSchoolHasReports, reports)
		}
		if err := tx.Delete(&models.School{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete school: %w", err)
		}
		return nil
	})
}

// Checklist resolves the checklist of a report type for a school,
// including its classroom sections.
func (s *SchoolService) Checklist(ctx context.Context, id uuid.UUID, reportType string) (checklist.Definition, error) {
	t, err := models.ParseReportType(reportType)
	if err != nil {
		return checklist.Definition{}, err
	}
	school, err := getSchool(s.db.WithContext(ctx), id)
	if err != nil {
		return checklist.Definition{}, err
	}
	return s.registry.ResolveForSchool(t, school.Classrooms())
}

// VerifyLocation checks a device position against the school's site.
func (s *SchoolService) VerifyLocation(ctx context.Context, id uuid.UUID, lat, lng float64) (geo.Verification, error) {
	school, err := getSchool(s.db.WithContext(ctx), id)
	if err != nil {
		return geo.Verification{}, err
	}
	return geo.Verify(school, lat, lng)
}
