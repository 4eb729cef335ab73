package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFirestoreStorageConfig(t *testing.T) {
	t.Run("missing GCP project ID", func(t *testing.T) {
		ctx := context.Background()

		_, err := NewFirestoreStorage(ctx, "", "(default)", DefaultTokenCollection, DefaultAuditCollection)
		assert.Error(t, err, "Expected error when GCP project ID is missing for Firestore storage")
		assert.Contains(t, err.Error(), "projectID is required")
	})

	t.Run("missing collection", func(t *testing.T) {
		ctx := context.Background()

		_, err := NewFirestoreStorage(ctx, "test-project", "(default)", "", DefaultAuditCollection)
		assert.Error(t, err, "Expected error when collection is empty")
		assert.Contains(t, err.Error(), "collection is required")

		_, err = NewFirestoreStorage(ctx, "test-project", "(default)", DefaultTokenCollection, "")
		assert.Error(t, err)
	})
}

func TestFirestoreDocConversion(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	token := &XToken{
		UserID:                "user-1",
		XUserID:               "x-1",
		XUsername:             "someone",
		AccessTokenEncrypted:  "aa:bb:cc",
		RefreshTokenEncrypted: "dd:ee:ff",
		ExpiresAt:             now.Add(time.Hour),
		Scope:                 "tweet.read",
		UpdatedAt:             now,
	}
	assert.Equal(t, token, toXTokenDoc(token).toXToken())

	entry := AuditLog{UserID: "user-1", Action: AuditXConnected, ResourceType: ResourceXToken, CreatedAt: now}
	doc := toAuditLogDoc(entry)
	assert.Equal(t, "x_connected", doc.Action)
	assert.Equal(t, entry, doc.toAuditLog())
}
