package migrations

import (
	"gorm.io/gorm"

	"github.com/jmylchreest/autoclip/internal/models"
)

const requesterIndex = "idx_clip_jobs_requester_submitted"

// AllMigrations returns the schema history in order:
//   - 001: clip_jobs table
//   - 002: composite index for per-requester history listings
func AllMigrations() []Migration {
	return []Migration{
		migration001ClipJobs(),
		migration002RequesterIndex(),
	}
}

func migration001ClipJobs() Migration {
	return Migration{
		Version:     "001",
		Description: "Create clip_jobs table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.ClipJob{})
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&models.ClipJob{})
		},
	}
}

func migration002RequesterIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Index clip_jobs by requester and submission time",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.ClipJob{}, requesterIndex) {
				return nil
			}
			return tx.Exec("CREATE INDEX " + requesterIndex + " ON clip_jobs (requester_id, submitted_at)").Error
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropIndex(&models.ClipJob{}, requesterIndex)
		},
	}
}
