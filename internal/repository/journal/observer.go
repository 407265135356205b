package journal

import (
	"context"
	"time"

	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
	"github.com/oshokin/stop-the-game/internal/logger"
)

// writeTimeout bounds a single journal write on the coordinator goroutine.
const writeTimeout = 2 * time.Second

// Observer writes every lifecycle event to a repository.
// Write failures are logged and never reach the coordinator.
type Observer struct {
	ctx  context.Context //nolint:containedctx // Observe has no context parameter.
	repo Repository
}

// NewObserver creates an observer writing to repo.
func NewObserver(ctx context.Context, repo Repository) *Observer {
	return &Observer{
		ctx:  logger.WithName(ctx, "journal"),
		repo: repo,
	}
}

// Observe implements domain.Observer.
func (o *Observer) Observe(ev domain.LifecycleEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), writeTimeout)
	defer cancel()

	if err := o.repo.Append(ctx, EntryFromEvent(ev)); err != nil {
		logger.WarnKV(ctx, "Failed to journal lifecycle event", "event", ev.String(), "error", err)
	}
}
