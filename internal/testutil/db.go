// Package testutil provides shared helpers for vef tests.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vefmedia/vef/internal/models"
)

// NewDB opens an in-memory SQLite database with all vef migrations applied.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Job{},
		&models.AuditLog{},
	))

	return db
}

// IntPtr returns a pointer to an int value.
func IntPtr(i int) *int { return &i }

// NewJob returns a valid queued job for tests. The params default to a CRF
// h264 encode; callers adjust fields as needed before persisting.
func NewJob() *models.Job {
	return &models.Job{
		InputPath:  "/media/in.mp4",
		OutputPath: "/media/out.mp4",
		Params: models.EncodeParams{
			Codec:       "h264",
			RateControl: models.RateControlCRF,
			CRF:         IntPtr(23),
		},
		Status: models.JobStatusQueued,
	}
}
