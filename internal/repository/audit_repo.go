package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vefmedia/vef/internal/models"
)

// auditRepo implements AuditRepository using GORM.
type auditRepo struct {
	db *gorm.DB
}

var _ AuditRepository = (*auditRepo)(nil)

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *gorm.DB) *auditRepo {
	return &auditRepo{db: db}
}

// Create creates a new audit entry.
func (r *auditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("creating audit entry: %w", err)
	}
	return nil
}

// GetByEntity retrieves entries for an entity, newest first.
func (r *auditRepo) GetByEntity(ctx context.Context, entityType string, entityID models.ULID) ([]*models.AuditLog, error) {
	var entries []*models.AuditLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("getting audit entries: %w", err)
	}
	return entries, nil
}

// Record builds and persists an entry in one call.
func (r *auditRepo) Record(ctx context.Context, action models.AuditAction, entityType string, entityID models.ULID, detail string) error {
	return r.Create(ctx, &models.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
	})
}
