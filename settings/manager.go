package settings

import (
	"context"
	"errors"
	"fmt"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// record is the single persisted settings row
type record struct {
	ID                       int `gorm:"primaryKey"`
	GrantDurationDays        int
	WarningLeadMinutes       int
	ReconcileIntervalMinutes int
}

func (record) TableName() string {
	return "settings"
}

const recordID = 1

// ManagerOptions contains the configuration for the settings Manager
type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Manager is the database-backed Updater
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for settings
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&record{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize settings.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// Get returns the persisted Settings. A missing row or a read failure falls back to
// Default so a malformed configuration can never stall the reconciliation loop.
func (m *Manager) Get(ctx context.Context) Settings {
	var rec record
	result := m.DB.WithContext(ctx).First(&rec, "id = ?", recordID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return Default()
	}
	if result.Error != nil {
		m.Logger.Warn("Unable to read settings, falling back to defaults",
			zap.Error(result.Error),
		)
		return Default()
	}
	loaded := Settings{
		GrantDurationDays:        rec.GrantDurationDays,
		WarningLeadMinutes:       rec.WarningLeadMinutes,
		ReconcileIntervalMinutes: rec.ReconcileIntervalMinutes,
	}
	if loaded.GrantDurationDays <= 0 || loaded.WarningLeadMinutes < 0 || loaded.ReconcileIntervalMinutes <= 0 {
		m.Logger.Warn("Persisted settings are out of range, falling back to defaults",
			zap.Int("GrantDurationDays", loaded.GrantDurationDays),
			zap.Int("WarningLeadMinutes", loaded.WarningLeadMinutes),
			zap.Int("ReconcileIntervalMinutes", loaded.ReconcileIntervalMinutes),
		)
		return Default()
	}
	return loaded
}

// Update persists the given Settings as the single settings row
func (m *Manager) Update(ctx context.Context, s Settings) error {
	rec := record{
		ID:                       recordID,
		GrantDurationDays:        s.GrantDurationDays,
		WarningLeadMinutes:       s.WarningLeadMinutes,
		ReconcileIntervalMinutes: s.ReconcileIntervalMinutes,
	}
	result := m.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rec)
	if result.Error != nil {
		m.Logger.Error("Unable to persist settings",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot persist settings")
	}
	return nil
}
