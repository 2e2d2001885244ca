// Package migration re-keys historical usage data when an anonymous,
// device-keyed identity becomes a real licensed email. The move is delegated
// to the remote authority and is strictly best-effort: a failure never blocks
// or rolls back the license activation, it only parks the migration for an
// independent retry.
package migration

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"mmcore/internal/store"
)

const pendingKey = "memory_monster_pending_migration"

// DataMover performs the actual server-side re-key. The authority client is
// the production implementation.
type DataMover interface {
	MigrateUserData(ctx context.Context, oldEmail, newEmail, deviceID string) error
}

type pendingMigration struct {
	OldEmail    string    `json:"old_email"`
	NewEmail    string    `json:"new_email"`
	RequestedAt time.Time `json:"requested_at"`
}

// Coordinator drives anonymous-to-licensed data migration.
type Coordinator struct {
	mover    DataMover
	kv       store.KeyValueStore
	deviceID func() string
	logger   *slog.Logger
}

// NewCoordinator creates the migration coordinator
func NewCoordinator(mover DataMover, kv store.KeyValueStore, deviceID func() string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		mover:    mover,
		kv:       kv,
		deviceID: deviceID,
		logger:   logger,
	}
}

// Migrate moves usage data from the anonymous email to the real one. The
// entitlement store invokes this exactly once per transition; on failure the
// request is persisted so Retry can pick it up later.
func (c *Coordinator) Migrate(ctx context.Context, oldEmail, newEmail string) {
	c.logger.Info("migrating anonymous usage data",
		slog.String("old_email", oldEmail),
		slog.String("new_email", newEmail),
	)

	if err := c.mover.MigrateUserData(ctx, oldEmail, newEmail, c.deviceID()); err != nil {
		c.logger.Warn("usage data migration failed, parking for retry",
			slog.String("error", err.Error()),
		)
		c.park(oldEmail, newEmail)
		return
	}

	c.clearPending()
	c.logger.Info("usage data migration completed")
}

// Retry re-attempts a parked migration, if any. Safe to call on a timer; a
// missing or corrupt pending record is a no-op.
func (c *Coordinator) Retry(ctx context.Context) {
	raw, ok := c.kv.Get(pendingKey)
	if !ok {
		return
	}

	var pending pendingMigration
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		c.logger.Warn("pending migration record corrupt, dropping",
			slog.String("error", err.Error()),
		)
		c.clearPending()
		return
	}

	c.logger.Info("retrying parked usage data migration",
		slog.String("new_email", pending.NewEmail),
		slog.Time("requested_at", pending.RequestedAt),
	)

	if err := c.mover.MigrateUserData(ctx, pending.OldEmail, pending.NewEmail, c.deviceID()); err != nil {
		c.logger.Warn("usage data migration retry failed",
			slog.String("error", err.Error()),
		)
		return
	}

	c.clearPending()
	c.logger.Info("parked usage data migration completed")
}

func (c *Coordinator) park(oldEmail, newEmail string) {
	data, err := json.Marshal(pendingMigration{
		OldEmail:    oldEmail,
		NewEmail:    newEmail,
		RequestedAt: time.Now(),
	})
	if err != nil {
		return
	}
	if err := c.kv.Set(pendingKey, string(data)); err != nil {
		c.logger.Warn("failed to park migration request",
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) clearPending() {
	if err := c.kv.Remove(pendingKey); err != nil {
		c.logger.Warn("failed to clear pending migration",
			slog.String("error", err.Error()),
		)
	}
}
