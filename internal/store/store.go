package store

import (
	"context"
	"errors"
	"time"

	"github.com/akhtararif14-hash/campusly/internal/crypto"
	"github.com/akhtararif14-hash/campusly/internal/models"
)

// ErrEmptyMessage is returned when a message without text is persisted.
var ErrEmptyMessage = errors.New("message text is required")

// DataStore defines the interface for persistent storage of users and messages.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, name, username, profileImage string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, excludeID, query string, limit int) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Message operations
	MessageStore
	GetMessagesBetween(ctx context.Context, a, b string, limit int, before int64) ([]models.Message, error)
	ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	CountMessages(ctx context.Context) (int64, error)
}

// MessageStore persists a message, assigning its ID and CreatedAt when unset.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
}

// UnreadTracker records which counterparts have unread messages for a user.
// RedisStore implements it.
type UnreadTracker interface {
	MarkUnread(ctx context.Context, userID, fromID string) error
	ClearUnread(ctx context.Context, userID, fromID string) error
	UnreadFrom(ctx context.Context, userID string) (map[string]bool, error)
}

// prepareMessage validates a message and fills the server-assigned fields.
func prepareMessage(msg *models.Message) error {
	if msg.Text == "" {
		return ErrEmptyMessage
	}
	if msg.ID == "" {
		msg.ID = crypto.NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	return nil
}

// reverseMessages flips newest-first query results into chronological order.
func reverseMessages(messages []models.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
