package config

import (
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"p9e.in/qareports/models"
)

func ptr(f float64) *float64 { return &f }

// SeedSchools creates a few demo schools when the table is empty.
func SeedSchools(db *gorm.DB) error {
	log := ComponentLogger("seeding")

	var count int64
	if err := db.Model(&models.School{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count schools: %w", err)
	}
	if count > 0 {
		log.Infof("⏭️  %d schools already present, skipping seed", count)
		return nil
	}

	schools := []models.School{
		{
			Name:     "Riverside Early Learning",
			Location: "120 River Rd, Marietta, GA",
			Region:   "North",
			ClassroomConfig: datatypes.NewJSONType(models.ClassroomConfig{
				"infant_a": 1, "toddler": 2, "twos": 1, "threes": 1, "ga_prek": 1,
			}),
			DriveFolderID: "schools/riverside",
			Latitude:      ptr(33.9526),
			Longitude:     ptr(-84.5499),
		},
		{
			Name:     "Oak Hill Academy",
			Location: "45 Oak Hill Blvd, Alpharetta, GA",
			Region:   "North",
			ClassroomConfig: datatypes.NewJSONType(models.ClassroomConfig{
				"infant_a": 1, "infant_b": 1, "toddler": 1, "fours": 2, "school_age": 1,
			}),
			DriveFolderID: "schools/oak-hill",
			Latitude:      ptr(34.0754),
			Longitude:     ptr(-84.2941),
		},
		{
			Name:     "Lakeside Kids Campus",
			Location: "9 Lakeside Pkwy, Decatur, GA",
			Region:   "East",
			ClassroomConfig: datatypes.NewJSONType(models.ClassroomConfig{
				"toddler": 1, "threes": 2, "fours": 1,
			}),
			Latitude:  ptr(33.7748),
			Longitude: ptr(-84.2963),
		},
	}

	if err := db.Create(&schools).Error; err != nil {
		return fmt.Errorf("seed schools: %w", err)
	}
	log.Infof("✅ seeded %d schools", len(schools))
	return nil
}
