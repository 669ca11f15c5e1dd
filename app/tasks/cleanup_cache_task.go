package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maxsanz/keyword-universe/app/database"
)

// CleanupCacheTask removes cached universes older than the configured TTL,
// so the content-hash cache never serves stale clusterings.
type CleanupCacheTask struct {
	Task
	universeRepo database.UniverseRepository
	ttl          time.Duration
}

func NewCleanupCacheTask(universeRepo database.UniverseRepository, ttl time.Duration) *CleanupCacheTask {
	return &CleanupCacheTask{
		Task:         NewTask(TaskTypeCleanupCache, ""),
		universeRepo: universeRepo,
		ttl:          ttl,
	}
}

func (t *CleanupCacheTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if t.ttl <= 0 {
		return nil
	}

	cutoff := time.Now().UTC().Add(-t.ttl)
	deleted, err := t.universeRepo.DeleteOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up expired universes: %w", err)
	}

	if deleted > 0 {
		slog.Info("Task completed",
			"type", "CleanupCache",
			"duration", t.GetDuration(),
			"deleted", deleted)
	}

	return nil
}
