package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Ensure MemoryStorage implements required interfaces
var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage keeps everything in process memory. Data is lost on restart;
// intended for development and tests.
type MemoryStorage struct {
	xTokens      map[string]XToken // map[userID] = token
	xTokensMutex sync.RWMutex
	auditLogs    []AuditLog // append order
	auditMutex   sync.RWMutex
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		xTokens: make(map[string]XToken),
	}
}

// UpsertXToken stores or replaces a user's X connection
func (s *MemoryStorage) UpsertXToken(_ context.Context, token *XToken) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}
	if token.UserID == "" {
		return fmt.Errorf("token user ID cannot be empty")
	}

	s.xTokensMutex.Lock()
	defer s.xTokensMutex.Unlock()

	stored := *token
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}
	s.xTokens[token.UserID] = stored
	return nil
}

// GetXToken retrieves a user's X connection
func (s *MemoryStorage) GetXToken(_ context.Context, userID string) (*XToken, error) {
	s.xTokensMutex.RLock()
	defer s.xTokensMutex.RUnlock()

	token, exists := s.xTokens[userID]
	if !exists {
		return nil, ErrXTokenNotFound
	}
	return &token, nil
}

// DeleteXToken removes a user's X connection
func (s *MemoryStorage) DeleteXToken(_ context.Context, userID string) error {
	s.xTokensMutex.Lock()
	defer s.xTokensMutex.Unlock()

	delete(s.xTokens, userID)
	return nil
}

// InsertAuditLog appends an audit entry
func (s *MemoryStorage) InsertAuditLog(_ context.Context, entry AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	s.auditMutex.Lock()
	defer s.auditMutex.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

// ListAuditLogs returns a user's audit entries, newest first
func (s *MemoryStorage) ListAuditLogs(_ context.Context, userID string, limit int) ([]AuditLog, error) {
	s.auditMutex.RLock()
	defer s.auditMutex.RUnlock()

	var entries []AuditLog
	for _, entry := range slices.Backward(s.auditLogs) {
		if entry.UserID == userID {
			entries = append(entries, entry)
		}
	}

	// Stable so entries with equal timestamps keep newest-inserted first
	slices.SortStableFunc(entries, func(a, b AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// PruneAuditLogs removes audit entries created before cutoff
func (s *MemoryStorage) PruneAuditLogs(_ context.Context, cutoff time.Time) (int, error) {
	s.auditMutex.Lock()
	defer s.auditMutex.Unlock()

	before := len(s.auditLogs)
	s.auditLogs = slices.DeleteFunc(s.auditLogs, func(entry AuditLog) bool {
		return entry.CreatedAt.Before(cutoff)
	})
	return before - len(s.auditLogs), nil
}

// Close is a no-op for memory storage
func (s *MemoryStorage) Close() error {
	return nil
}
