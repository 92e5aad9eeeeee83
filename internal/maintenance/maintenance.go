package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hostpay/internal/storage"
)

// Janitor purges file records whose upload never completed within the
// retention window. Purging is idempotent: a record disappears at most
// once, and its deposit address row stays behind so late payments can
// still be swept.
type Janitor struct {
	store     storage.FileStore
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// New constructs a Janitor.
func New(store storage.FileStore, retention time.Duration, logger zerolog.Logger) *Janitor {
	return &Janitor{
		store:     store,
		retention: retention,
		logger:    logger.With().Str("component", "maintenance").Logger(),
		now:       time.Now,
	}
}

// RunOnce deletes incomplete uploads older than the retention window.
func (j *Janitor) RunOnce(ctx context.Context) error {
	if j.retention <= 0 {
		return fmt.Errorf("maintenance: retention must be greater than zero")
	}

	cutoff := j.now().UTC().Add(-j.retention)
	purged, err := j.store.PurgeIncompleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge incomplete uploads: %w", err)
	}

	if purged > 0 {
		j.logger.Info().
			Int64("purged", purged).
			Time("cutoff", cutoff).
			Msg("stale incomplete uploads removed")
	} else {
		j.logger.Debug().Time("cutoff", cutoff).Msg("no stale uploads")
	}
	return nil
}
