package database

import (
	"errors"
	"time"

	"github.com/smhkhrmn/thelastpenguin/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillProfileDefaults = "2025-01-20_backfill_profile_defaults"
	migrationLowercaseFrequencies    = "2025-02-02_lowercase_signal_frequencies"

	unnamedVessel  = "Unidentified Vessel"
	driftingStatus = "Drifting"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

var migrations = []migrationDefinition{
	{name: migrationBackfillProfileDefaults, apply: backfillProfileDefaults},
	{name: migrationLowercaseFrequencies, apply: lowercaseSignalFrequencies},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillProfileDefaults gives profiles created before the setup form a
// vessel name and a status.
func backfillProfileDefaults(db *gorm.DB) error {
	if err := db.Model(&store.Profile{}).
		Where("vessel_name = ''").
		Update("vessel_name", unnamedVessel).Error; err != nil {
		return err
	}
	return db.Model(&store.Profile{}).
		Where("current_status = ''").
		Update("current_status", driftingStatus).Error
}

func lowercaseSignalFrequencies(db *gorm.DB) error {
	return db.Model(&store.Signal{}).
		Where("frequency <> LOWER(frequency)").
		Update("frequency", gorm.Expr("LOWER(frequency)")).Error
}
