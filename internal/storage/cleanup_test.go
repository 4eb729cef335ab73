package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupManager_PrunesOnStart(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.InsertAuditLog(ctx, AuditLog{UserID: "u", Action: AuditXConnected, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.InsertAuditLog(ctx, AuditLog{UserID: "u", Action: AuditXDisconnected, CreatedAt: now.Add(-time.Hour)}))

	cm := NewCleanupManager(store, time.Hour, 24*time.Hour)
	cm.Start(ctx)

	assert.Eventually(t, func() bool {
		logs, err := store.ListAuditLogs(ctx, "u", 0)
		return err == nil && len(logs) == 1
	}, time.Second, 10*time.Millisecond)

	cm.Stop()

	logs, err := store.ListAuditLogs(ctx, "u", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, AuditXDisconnected, logs[0].Action)
}

func TestCleanupManager_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cm := NewCleanupManager(NewMemoryStorage(), 10*time.Millisecond, time.Hour)
	cm.Start(ctx)
	cancel()

	select {
	case <-cm.doneChan:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not exit after context cancel")
	}
}
