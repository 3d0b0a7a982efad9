package grant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ManagerOptions contains the configuration for the grant Manager
type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Manager is the database-backed Store. Compound mutations run as serializable
// transactions with the affected rows locked FOR UPDATE, so the reconciliation
// loop and the webhook handler can never interleave on the same subscriber.
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for grants
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Grant{}, &ProcessedEvent{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize grant.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

func (m *Manager) Get(ctx context.Context, subscriberID int64) (*Grant, error) {
	g := Grant{}

	result := m.DB.WithContext(ctx).First(&g, "subscriber_id = ?", subscriberID)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get grant by subscriber id")
	}

	return &g, nil
}

func (m *Manager) Activate(ctx context.Context, opt ActivateOptions) (*Grant, bool, error) {
	var applied Grant
	var duplicate bool

	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seen ProcessedEvent
		seenRes := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&seen, "id = ?", opt.EventID)
		if seenRes.Error == nil {
			duplicate = true
			currentRes := tx.First(&applied, "subscriber_id = ?", opt.SubscriberID)
			if errors.Is(currentRes.Error, gorm.ErrRecordNotFound) {
				return nil
			}
			return currentRes.Error
		}
		if !errors.Is(seenRes.Error, gorm.ErrRecordNotFound) {
			return seenRes.Error
		}

		if err := tx.Create(&ProcessedEvent{
			ID:     opt.EventID,
			SeenAt: time.Now().UTC(),
		}).Error; err != nil {
			return err
		}

		var current Grant
		lookupRes := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&current, "subscriber_id = ?", opt.SubscriberID)
		if lookupRes.Error == nil {
			current.DisplayName = opt.DisplayName
			// the access window never shrinks, and a notice already sent stays
			// meaningful unless the window actually moved
			if opt.EndTime.After(current.EndTime) {
				current.EndTime = opt.EndTime
				current.Warned = false
			}
			applied = current
			return tx.Save(&current).Error
		}
		if errors.Is(lookupRes.Error, gorm.ErrRecordNotFound) {
			applied = Grant{
				SubscriberID: opt.SubscriberID,
				DisplayName:  opt.DisplayName,
				EndTime:      opt.EndTime,
				Warned:       false,
			}
			return tx.Create(&applied).Error
		}
		return lookupRes.Error
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})

	if err != nil {
		m.Logger.Error("Unable to apply payment event",
			zap.String("EventID", opt.EventID),
			zap.Int64("SubscriberID", opt.SubscriberID),
			zap.Error(err),
		)
		return nil, false, extErrors.Wrap(err, "Cannot apply payment event")
	}
	if duplicate && applied.SubscriberID == 0 {
		// event seen before but the grant has since been evicted
		return nil, true, nil
	}
	return &applied, duplicate, nil
}

func (m *Manager) MarkWarned(ctx context.Context, subscriberID int64, endTime time.Time) (bool, error) {
	var transitioned bool

	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Grant
		lookupRes := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&current, "subscriber_id = ?", subscriberID)
		if errors.Is(lookupRes.Error, gorm.ErrRecordNotFound) {
			return nil
		}
		if lookupRes.Error != nil {
			return lookupRes.Error
		}
		if current.Warned || !current.EndTime.Equal(endTime) {
			return nil
		}
		current.Warned = true
		transitioned = true
		return tx.Save(&current).Error
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})

	if err != nil {
		return false, extErrors.Wrap(err, "Cannot mark grant as warned")
	}
	return transitioned, nil
}

func (m *Manager) DeleteExpired(ctx context.Context, subscriberID int64, now time.Time) (bool, error) {
	var deleted bool

	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Grant
		lookupRes := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&current, "subscriber_id = ?", subscriberID)
		if errors.Is(lookupRes.Error, gorm.ErrRecordNotFound) {
			return nil
		}
		if lookupRes.Error != nil {
			return lookupRes.Error
		}
		if current.EndTime.After(now) {
			// renewed while the eviction was in flight
			return nil
		}
		deleted = true
		return tx.Delete(&current).Error
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})

	if err != nil {
		return false, extErrors.Wrap(err, "Cannot delete expired grant")
	}
	return deleted, nil
}

func (m *Manager) List(ctx context.Context) ([]Grant, error) {
	results := make([]Grant, 0, 16)

	result := m.DB.WithContext(ctx).Order("end_time asc").Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list grants")
	}
	return results, nil
}

func (m *Manager) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var row struct {
		Total  int64
		Active int64
	}

	// both counts come from the same statement, so a concurrent insert can never
	// make Active exceed Total
	result := m.DB.WithContext(ctx).Model(&Grant{}).
		Select("COUNT(*) AS total, COUNT(*) FILTER (WHERE end_time > ?) AS active", now).
		Scan(&row)
	if result.Error != nil {
		return Stats{}, extErrors.Wrap(result.Error, "Cannot compute grant stats")
	}

	return Stats{
		Total:   int(row.Total),
		Active:  int(row.Active),
		Expired: int(row.Total - row.Active),
	}, nil
}

func (m *Manager) PruneEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	result := m.DB.WithContext(ctx).Where("seen_at < ?", olderThan).Delete(&ProcessedEvent{})
	if result.Error != nil {
		return 0, extErrors.Wrap(result.Error, "Cannot prune processed events")
	}
	return result.RowsAffected, nil
}
