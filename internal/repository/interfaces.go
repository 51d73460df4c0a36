package repository

import (
	"faceenroll/internal/model"
)

// LabelKey is the settings key holding the identity label, as the web client stored it.
const LabelKey = "name"

// SettingsRepository defines the durable key-value store.
type SettingsRepository interface {
	// Get returns ok=false when the key is absent.
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
	GetAll() ([]model.Setting, error)
}

// SessionRepository defines the interface for the enrollment journal.
type SessionRepository interface {
	// Create operations
	Insert(s *model.Session) error

	// Update operations
	Update(s *model.Session) error

	// Read operations
	GetByID(id string) (*model.Session, error)
	GetAll(filter *model.SessionFilter) ([]model.Session, error)

	// Delete operations
	DeleteAll() error
}
