package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vefmedia/vef/internal/config"
	"github.com/vefmedia/vef/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	}
	db, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate())
	return db
}

func TestNewAndMigrate(t *testing.T) {
	db := newTestDB(t)

	assert.Equal(t, "sqlite", db.Driver())
	assert.NoError(t, db.Ping(context.Background()))

	assert.True(t, db.Migrator().HasTable(&models.Job{}))
	assert.True(t, db.Migrator().HasTable(&models.AuditLog{}))
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New(config.DatabaseConfig{Driver: "oracle", DSN: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestCreateAndReadJob(t *testing.T) {
	db := newTestDB(t)

	crf := 23
	job := &models.Job{
		InputPath:  "/media/in.mp4",
		OutputPath: "/media/out.mp4",
		Params: models.EncodeParams{
			Codec:       "h264",
			RateControl: models.RateControlCRF,
			CRF:         &crf,
		},
		Status: models.JobStatusQueued,
	}
	require.NoError(t, db.Create(job).Error)
	assert.False(t, job.ID.IsZero())

	var loaded models.Job
	require.NoError(t, db.First(&loaded, "id = ?", job.ID).Error)
	assert.Equal(t, job.InputPath, loaded.InputPath)
	assert.Equal(t, models.RateControlCRF, loaded.Params.RateControl)
	require.NotNil(t, loaded.Params.CRF)
	assert.Equal(t, 23, *loaded.Params.CRF)
}

func TestTransactionRollback(t *testing.T) {
	db := newTestDB(t)

	crf := 23
	err := db.Transaction(context.Background(), func(tx *gorm.DB) error {
		job := &models.Job{
			InputPath:  "/in.mp4",
			OutputPath: "/out.mp4",
			Params:     models.EncodeParams{Codec: "h264", RateControl: models.RateControlCRF, CRF: &crf},
		}
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Job{}).Count(&count).Error)
	assert.Zero(t, count)
}
