package storage

import (
	"context"
	"time"

	"github.com/dgellow/x-connect/internal/log"
)

// CleanupManager periodically prunes audit entries older than the retention
// window.
type CleanupManager struct {
	store     AuditLogStore
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(store AuditLogStore, interval, retention time.Duration) *CleanupManager {
	return &CleanupManager{
		store:     store,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting audit log cleanup manager", map[string]any{
		"interval":  cm.interval.String(),
		"retention": cm.retention.String(),
	})

	go cm.run(ctx)
}

// Stop gracefully stops the cleanup loop
func (cm *CleanupManager) Stop() {
	log.Logf("Stopping audit log cleanup manager...")
	close(cm.stopChan)
	<-cm.doneChan // Wait for cleanup loop to finish
	log.Logf("Audit log cleanup manager stopped")
}

// run is the main cleanup loop
func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanup performs the actual cleanup operation
func (cm *CleanupManager) cleanup(ctx context.Context) {
	cutoff := cm.now().Add(-cm.retention)
	count, err := cm.store.PruneAuditLogs(ctx, cutoff)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to prune audit logs", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Pruned expired audit logs", map[string]any{
			"count":  count,
			"cutoff": cutoff.Format(time.RFC3339),
		})
	}
}
