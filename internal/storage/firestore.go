package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/x-connect/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	DefaultTokenCollection = "x_tokens"
	DefaultAuditCollection = "audit_logs"

	maxBatchSize = 500 // Firestore batch write limit
)

// FirestoreStorage implements Storage using Google Cloud Firestore.
// X connections live in one document per user, keyed by user ID.
type FirestoreStorage struct {
	client          *firestore.Client
	projectID       string
	tokenCollection string
	auditCollection string
}

// Ensure FirestoreStorage implements Storage interface
var _ Storage = (*FirestoreStorage)(nil)

// XTokenDoc represents an X connection document in Firestore
type XTokenDoc struct {
	UserID                string    `firestore:"user_id"`
	XUserID               string    `firestore:"x_user_id"`
	XUsername             string    `firestore:"x_username"`
	AccessTokenEncrypted  string    `firestore:"access_token_encrypted"`
	RefreshTokenEncrypted string    `firestore:"refresh_token_encrypted,omitempty"`
	ExpiresAt             time.Time `firestore:"expires_at,omitempty"`
	Scope                 string    `firestore:"scope,omitempty"`
	UpdatedAt             time.Time `firestore:"updated_at"`
}

// AuditLogDoc represents an audit entry document in Firestore
type AuditLogDoc struct {
	UserID       string    `firestore:"user_id"`
	Action       string    `firestore:"action"`
	ResourceType string    `firestore:"resource_type"`
	CreatedAt    time.Time `firestore:"created_at"`
}

func toXTokenDoc(t *XToken) XTokenDoc {
	return XTokenDoc(*t)
}

func (d XTokenDoc) toXToken() *XToken {
	t := XToken(d)
	return &t
}

func toAuditLogDoc(e AuditLog) AuditLogDoc {
	return AuditLogDoc{
		UserID:       e.UserID,
		Action:       string(e.Action),
		ResourceType: e.ResourceType,
		CreatedAt:    e.CreatedAt,
	}
}

func (d AuditLogDoc) toAuditLog() AuditLog {
	return AuditLog{
		UserID:       d.UserID,
		Action:       AuditAction(d.Action),
		ResourceType: d.ResourceType,
		CreatedAt:    d.CreatedAt,
	}
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, tokenCollection, auditCollection string) (*FirestoreStorage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if tokenCollection == "" || auditCollection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("firestore", "Connected to Firestore", map[string]any{
		"project":          projectID,
		"database":         database,
		"token_collection": tokenCollection,
		"audit_collection": auditCollection,
	})

	return &FirestoreStorage{
		client:          client,
		projectID:       projectID,
		tokenCollection: tokenCollection,
		auditCollection: auditCollection,
	}, nil
}

// UpsertXToken stores or replaces a user's X connection
func (s *FirestoreStorage) UpsertXToken(ctx context.Context, token *XToken) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}
	if token.UserID == "" {
		return fmt.Errorf("token user ID cannot be empty")
	}

	doc := toXTokenDoc(token)
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}

	if _, err := s.client.Collection(s.tokenCollection).Doc(token.UserID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to store token in Firestore: %w", err)
	}
	return nil
}

// GetXToken retrieves a user's X connection
func (s *FirestoreStorage) GetXToken(ctx context.Context, userID string) (*XToken, error) {
	snap, err := s.client.Collection(s.tokenCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrXTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token from Firestore: %w", err)
	}

	var doc XTokenDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return doc.toXToken(), nil
}

// DeleteXToken removes a user's X connection. Firestore deletes of missing
// documents succeed.
func (s *FirestoreStorage) DeleteXToken(ctx context.Context, userID string) error {
	if _, err := s.client.Collection(s.tokenCollection).Doc(userID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete token from Firestore: %w", err)
	}
	return nil
}

// InsertAuditLog adds an audit entry with an auto-generated ID
func (s *FirestoreStorage) InsertAuditLog(ctx context.Context, entry AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if _, _, err := s.client.Collection(s.auditCollection).Add(ctx, toAuditLogDoc(entry)); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns a user's audit entries, newest first.
// Requires a composite index on (user_id, created_at desc).
func (s *FirestoreStorage) ListAuditLogs(ctx context.Context, userID string, limit int) ([]AuditLog, error) {
	query := s.client.Collection(s.auditCollection).
		Where("user_id", "==", userID).
		OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []AuditLog
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
		}

		var doc AuditLogDoc
		if err := snap.DataTo(&doc); err != nil {
			log.LogError("Failed to unmarshal audit log %s: %v", snap.Ref.ID, err)
			continue
		}
		entries = append(entries, doc.toAuditLog())
	}

	return entries, nil
}

// PruneAuditLogs deletes audit entries created before cutoff
func (s *FirestoreStorage) PruneAuditLogs(ctx context.Context, cutoff time.Time) (int, error) {
	iter := s.client.Collection(s.auditCollection).
		Where("created_at", "<", cutoff).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired audit logs: %w", err)
		}

		batch.Delete(snap.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count - batchSize, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count - batchSize, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}

	return count, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
