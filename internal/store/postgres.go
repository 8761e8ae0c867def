package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akhtararif14-hash/campusly/internal/crypto"
	"github.com/akhtararif14-hash/campusly/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new roster entry.
func (s *PostgresStore) CreateUser(ctx context.Context, name, username, profileImage string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, username, profile_image)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, username, profile_image, created_at
	`, crypto.NewUUIDv7().String(), name, username, profileImage).Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.ProfileImage,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, username, profile_image, created_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.ProfileImage,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// ListUsers returns the roster ordered by name.
func (s *PostgresStore) ListUsers(ctx context.Context, excludeID, query string, limit int) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, username, profile_image, created_at
		FROM users
		WHERE id <> $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY name, id
		LIMIT $3
	`, excludeID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Username, &user.ProfileImage, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of roster entries.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CreateMessage persists a direct message.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := prepareMessage(msg); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, text, client_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Text, msg.ClientID, msg.CreatedAt)
	return err
}

// GetMessagesBetween returns up to limit messages exchanged by a and b, in
// chronological order, optionally only those older than before (unix ms).
func (s *PostgresStore) GetMessagesBetween(ctx context.Context, a, b string, limit int, before int64) ([]models.Message, error) {
	var beforeTS *time.Time
	if before > 0 {
		t := time.UnixMilli(before).UTC()
		beforeTS = &t
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, receiver_id, text, client_id, created_at
		FROM messages
		WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
			AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, a, b, beforeTS, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Text, &msg.ClientID, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverseMessages(messages)
	return messages, nil
}

// ListConversations returns one summary per counterpart of userID, most recent first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.name, u.username, u.profile_image, u.created_at,
			latest.sender_id, latest.text, latest.created_at
		FROM (
			SELECT DISTINCT ON (other_id) other_id, sender_id, text, created_at
			FROM (
				SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS other_id,
					id, sender_id, text, created_at
				FROM messages
				WHERE sender_id = $1 OR receiver_id = $1
			) pairs
			ORDER BY other_id, created_at DESC, id DESC
		) latest
		JOIN users u ON u.id = latest.other_id
		ORDER BY latest.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []models.ConversationSummary{}
	for rows.Next() {
		var conv models.ConversationSummary
		err := rows.Scan(
			&conv.Other.ID,
			&conv.Other.Name,
			&conv.Other.Username,
			&conv.Other.ProfileImage,
			&conv.Other.CreatedAt,
			&conv.LastSenderID,
			&conv.LastMessage,
			&conv.LastActiveAt,
		)
		if err != nil {
			return nil, err
		}
		conv.ConversationID = models.ConversationID(userID, conv.Other.ID)
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// CountMessages returns the total number of persisted messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
