package storage

import (
	"context"
	"errors"
	"time"
)

// ErrXTokenNotFound is returned when a user has no X connection.
var ErrXTokenNotFound = errors.New("x token not found")

// AuditAction names an event recorded in the audit log.
type AuditAction string

const (
	AuditXConnected      AuditAction = "x_connected"
	AuditXDisconnected   AuditAction = "x_disconnected"
	AuditXTokenRefreshed AuditAction = "x_token_refreshed"
)

// ResourceXToken is the resource type recorded for X connection events.
const ResourceXToken = "x_token"

// XToken is a user's X connection. Token fields hold encrypted envelopes,
// never plaintext.
type XToken struct {
	UserID                string    `json:"user_id"`
	XUserID               string    `json:"x_user_id"`
	XUsername             string    `json:"x_username"`
	AccessTokenEncrypted  string    `json:"access_token_encrypted"`
	RefreshTokenEncrypted string    `json:"refresh_token_encrypted,omitempty"`
	ExpiresAt             time.Time `json:"expires_at,omitzero"`
	Scope                 string    `json:"scope,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// AuditLog is a single audit entry.
type AuditLog struct {
	UserID       string      `json:"user_id"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	CreatedAt    time.Time   `json:"created_at"`
}

// XTokenStore persists X connections keyed by user ID.
type XTokenStore interface {
	// UpsertXToken replaces any existing record for token.UserID.
	UpsertXToken(ctx context.Context, token *XToken) error
	GetXToken(ctx context.Context, userID string) (*XToken, error)
	// DeleteXToken succeeds when no record exists.
	DeleteXToken(ctx context.Context, userID string) error
}

// AuditLogStore records connection events.
type AuditLogStore interface {
	InsertAuditLog(ctx context.Context, entry AuditLog) error
	// ListAuditLogs returns at most limit entries for userID, newest first.
	ListAuditLogs(ctx context.Context, userID string, limit int) ([]AuditLog, error)
	// PruneAuditLogs deletes entries created before cutoff and returns the
	// number removed.
	PruneAuditLogs(ctx context.Context, cutoff time.Time) (int, error)
}

// Storage combines all storage capabilities needed by x-connect
type Storage interface {
	XTokenStore
	AuditLogStore
	Close() error
}
