package config

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"p9e.in/qareports/models"
)

func Migrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "02092024_create_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.School{}, &models.Report{}, &models.Response{}, &models.Photo{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("photos", "responses", "reports", "schools")
			},
		},
		{
			ID: "18112024_add_ai_summaries",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.AISummary{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("ai_summaries")
			},
		},
		{
			ID: "06012025_add_report_transitions",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.ReportTransition{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("report_transitions")
			},
		},
		{
			ID: "21032025_add_photo_location_and_draft_key",
			Migrate: func(tx *gorm.DB) error {
				// thumbnail_ref, latitude/longitude on photos and client_draft_key on reports
				return tx.AutoMigrate(&models.Photo{}, &models.Report{})
			},
		},
		{
			ID: "14042025_add_photo_client_key",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Photo{})
			},
		},
	})

	return m.Migrate()
}
