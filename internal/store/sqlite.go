package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/akhtararif14-hash/campusly/internal/crypto"
	"github.com/akhtararif14-hash/campusly/internal/models"
)

// SQLiteStore handles SQLite database operations.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/campusly.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/campusly.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		profile_image TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		text TEXT NOT NULL,
		client_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_name ON users(name);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new roster entry.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, username, profileImage string) (*models.User, error) {
	user := &models.User{
		ID:           crypto.NewUUIDv7().String(),
		Name:         name,
		Username:     username,
		ProfileImage: profileImage,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, username, profile_image, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.Name, user.Username, user.ProfileImage, user.CreatedAt.UnixMilli())
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, username, profile_image, created_at
		FROM users WHERE id = ?
	`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.ProfileImage,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return user, nil
}

// ListUsers returns the roster ordered by name, optionally excluding one user
// and filtering by a case-insensitive name substring.
func (s *SQLiteStore) ListUsers(ctx context.Context, excludeID, query string, limit int) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, username, profile_image, created_at
		FROM users
		WHERE id != ? AND (? = '' OR name LIKE '%' || ? || '%')
		ORDER BY name, id
		LIMIT ?
	`, excludeID, query, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		var createdAt int64
		if err := rows.Scan(&user.ID, &user.Name, &user.Username, &user.ProfileImage, &createdAt); err != nil {
			return nil, err
		}
		user.CreatedAt = time.UnixMilli(createdAt).UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of roster entries.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CreateMessage persists a direct message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := prepareMessage(msg); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, text, client_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Text, msg.ClientID, msg.CreatedAt.UnixMilli())
	return err
}

// GetMessagesBetween returns up to limit messages exchanged by a and b, in
// chronological order. When before > 0 only messages strictly older than that
// unix-ms timestamp are returned.
func (s *SQLiteStore) GetMessagesBetween(ctx context.Context, a, b string, limit int, before int64) ([]models.Message, error) {
	if before <= 0 {
		before = math.MaxInt64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, text, client_id, created_at
		FROM messages
		WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
			AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, a, b, b, a, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Text, &msg.ClientID, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverseMessages(messages)
	return messages, nil
}

// ListConversations returns one summary per counterpart of userID, most recent first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH pairs AS (
			SELECT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS other_id,
				id, sender_id, text, created_at
			FROM messages
			WHERE sender_id = ? OR receiver_id = ?
		), ranked AS (
			SELECT other_id, sender_id, text, created_at,
				ROW_NUMBER() OVER (PARTITION BY other_id ORDER BY created_at DESC, id DESC) AS rn
			FROM pairs
		)
		SELECT u.id, u.name, u.username, u.profile_image, u.created_at,
			r.sender_id, r.text, r.created_at
		FROM ranked r
		JOIN users u ON u.id = r.other_id
		WHERE r.rn = 1
		ORDER BY r.created_at DESC
	`, userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []models.ConversationSummary{}
	for rows.Next() {
		var conv models.ConversationSummary
		var userCreated, lastActive int64
		err := rows.Scan(
			&conv.Other.ID,
			&conv.Other.Name,
			&conv.Other.Username,
			&conv.Other.ProfileImage,
			&userCreated,
			&conv.LastSenderID,
			&conv.LastMessage,
			&lastActive,
		)
		if err != nil {
			return nil, err
		}
		conv.Other.CreatedAt = time.UnixMilli(userCreated).UTC()
		conv.LastActiveAt = time.UnixMilli(lastActive).UTC()
		conv.ConversationID = models.ConversationID(userID, conv.Other.ID)
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// CountMessages returns the total number of persisted messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
