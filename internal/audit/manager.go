package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

// Manager writes the settings change log
type Manager struct {
	store  Store
	logger *logrus.Logger
}

// NewManager creates a new audit manager
func NewManager(store Store, logger *logrus.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
	}
}

// Record stores one change record. Incomplete records are dropped with a
// warning, not an error.
func (m *Manager) Record(ctx context.Context, rec *ChangeRecord) error {
	if rec == nil {
		m.logger.Warn("Attempted to record nil change")
		return nil
	}
	if rec.Event == "" {
		m.logger.Warn("Change record missing required Event field")
		return nil
	}
	if rec.Event != EventImported && rec.ModuleID == "" {
		m.logger.Warn("Change record missing required ModuleID field")
		return nil
	}

	if err := m.store.Record(ctx, rec); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"event":  rec.Event,
			"module": rec.ModuleID,
			"key":    rec.Key,
		}).Error("Failed to record settings change")
		return err
	}
	return nil
}

// Subscribe records every event published by the settings manager until
// the returned subscription is cancelled. Sensitive values never reach the
// change log.
func (m *Manager) Subscribe(settingsManager *settings.Manager) *settings.Subscription {
	return settingsManager.Subscribe(func(ev settings.Event) {
		_ = m.Record(context.Background(), recordFor(ev))
	})
}

func recordFor(ev settings.Event) *ChangeRecord {
	rec := &ChangeRecord{ModuleID: ev.Module, Key: ev.Key}
	switch ev.Kind {
	case settings.EventChanged:
		rec.Event = EventSettingChanged
		if ev.Sensitive {
			rec.Value = RedactedValue
			rec.Details = map[string]interface{}{"sensitive": true}
		} else {
			rec.ValueType = ev.Value.Type().String()
			rec.Value = ev.Value.Format()
		}
	case settings.EventReset:
		rec.Event = EventModuleReset
	case settings.EventImported:
		rec.Event = EventImported
		rec.Details = map[string]interface{}{"version": ev.Version}
	}
	return rec
}

// List retrieves change records, newest first
func (m *Manager) List(ctx context.Context, filters *Filters) ([]*ChangeRecord, int, error) {
	if filters == nil {
		filters = &Filters{}
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 50
	}
	if filters.PageSize > 500 {
		filters.PageSize = 500
	}

	records, total, err := m.store.List(ctx, filters)
	if err != nil {
		m.logger.WithError(err).Error("Failed to retrieve change records")
		return nil, 0, err
	}
	return records, total, nil
}

// Get retrieves a single record
func (m *Manager) Get(ctx context.Context, id string) (*ChangeRecord, error) {
	return m.store.Get(ctx, id)
}

// Purge deletes records older than olderThanDays
func (m *Manager) Purge(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		m.logger.Warn("Invalid retention days for purge operation")
		return 0, nil
	}

	count, err := m.store.Purge(ctx, olderThanDays)
	if err != nil {
		m.logger.WithError(err).WithField("retention_days", olderThanDays).Error("Failed to purge change records")
		return 0, err
	}
	if count > 0 {
		m.logger.WithFields(logrus.Fields{
			"deleted_count":  count,
			"retention_days": olderThanDays,
		}).Info("Purged old change records")
	}
	return count, nil
}

// StartRetentionJob purges old records now and then once a day until ctx
// is cancelled
func (m *Manager) StartRetentionJob(ctx context.Context, retentionDays int) {
	if retentionDays <= 0 {
		m.logger.Debug("Change log retention disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		_, _ = m.Purge(ctx, retentionDays)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = m.Purge(ctx, retentionDays)
			}
		}
	}()
}

// Close closes the underlying store
func (m *Manager) Close() error {
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}
