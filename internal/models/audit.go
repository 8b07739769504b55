package models

import "gorm.io/gorm"

// AuditAction identifies the kind of change an audit entry records.
type AuditAction string

const (
	// AuditActionCreate records entity creation.
	AuditActionCreate AuditAction = "create"
	// AuditActionUpdate records entity mutation.
	AuditActionUpdate AuditAction = "update"
	// AuditActionDelete records entity removal.
	AuditActionDelete AuditAction = "delete"
	// AuditActionRecover records a crash-recovery state change at startup.
	AuditActionRecover AuditAction = "recover"
)

// AuditLog records a state change for later inspection.
type AuditLog struct {
	BaseModel

	// Action is what happened.
	Action AuditAction `gorm:"not null;size:20;index" json:"action"`

	// EntityType names the affected entity kind, e.g. "job".
	EntityType string `gorm:"not null;size:50;index" json:"entity_type"`

	// EntityID is the affected entity's ID.
	EntityID ULID `gorm:"type:varchar(26);index" json:"entity_id"`

	// Detail is free-form context, e.g. the progress a job had reached
	// before a system restart.
	Detail string `gorm:"size:4096" json:"detail,omitempty"`
}

// TableName returns the table name for AuditLog.
func (AuditLog) TableName() string {
	return "audit_logs"
}

// Validate performs basic validation on the audit entry.
func (a *AuditLog) Validate() error {
	if a.Action == "" {
		return ErrActionRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the entry and generates a ULID.
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if err := a.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return a.Validate()
}
