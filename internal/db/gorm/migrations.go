package gorm

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// runMigrations applies all pending schema migrations.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202508180001_initial_schema",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&SessionRow{},
					&TurnRow{},
					&AnalysisRow{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("sessions", "turns", "analysis_records")
			},
		},
		{
			ID: "202508220001_capsules",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&CapsuleRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("capsules")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Debug().Msg("Database migrations applied")
	return nil
}
