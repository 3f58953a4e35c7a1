package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/leasehold/internal/db"
	"github.com/example/leasehold/internal/ports/secondary"
)

// NotificationRepository implements secondary.NotificationRepository.
type NotificationRepository struct {
	db   *sql.DB
	bind func(string) string
}

// NewNotificationRepository creates a new in-app notification repository.
func NewNotificationRepository(database *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: database, bind: db.BindFor(database)}
}

// Create persists a new in-app notification. Metadata is stored as JSON.
func (r *NotificationRepository) Create(ctx context.Context, n *secondary.NotificationRecord) error {
	if n.ID == "" {
		n.ID = "NTF-" + uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	var metadata sql.NullString
	if len(n.Metadata) > 0 {
		raw, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode notification metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.bind(`
		INSERT INTO notifications (id, user_id, title, message, metadata, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		n.ID, n.UserID, n.Title, n.Message, metadata, n.Read, n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*secondary.NotificationRecord, error) {
	query := "SELECT id, user_id, title, message, metadata, read, created_at FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*secondary.NotificationRecord
	for rows.Next() {
		var metadata sql.NullString
		n := &secondary.NotificationRecord{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &metadata, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &n.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode notification metadata: %w", err)
			}
		}
		n.CreatedAt = n.CreatedAt.UTC()
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	return notifications, nil
}

// Ensure NotificationRepository implements the interface
var _ secondary.NotificationRepository = (*NotificationRepository)(nil)
