package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/leasehold/internal/ports/secondary"
)

// DefaultInboxLength is the number of notifications kept per user.
const DefaultInboxLength = 100

// listClient is the subset of *redis.Client used by RedisInboxChannel.
type listClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// RedisInboxChannel pushes notifications onto a capped per-user Redis list
// that realtime clients read from.
type RedisInboxChannel struct {
	client    listClient
	keyPrefix string
	maxLen    int64
}

// NewRedisInboxChannel creates a Redis inbox channel. client is usually a *redis.Client.
func NewRedisInboxChannel(client listClient, keyPrefix string, maxLen int) *RedisInboxChannel {
	if keyPrefix == "" {
		keyPrefix = "notifications"
	}
	if maxLen <= 0 {
		maxLen = DefaultInboxLength
	}
	return &RedisInboxChannel{client: client, keyPrefix: keyPrefix, maxLen: int64(maxLen)}
}

// Name implements secondary.NotificationChannel.
func (c *RedisInboxChannel) Name() string { return "redis" }

type redisNotification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
}

// Deliver implements secondary.NotificationChannel.
func (c *RedisInboxChannel) Deliver(ctx context.Context, recipient *secondary.UserRecord, n *secondary.Notification) error {
	payload, err := json.Marshal(redisNotification{
		ID:        n.ID,
		UserID:    recipient.ID,
		Type:      "ticket_escalation",
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Metadata,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	key := c.Key(recipient.ID)
	if err := c.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if err := c.client.LTrim(ctx, key, 0, c.maxLen-1).Err(); err != nil {
		return fmt.Errorf("failed to trim inbox: %w", err)
	}
	return nil
}

// Key returns the Redis list key for a user's inbox.
func (c *RedisInboxChannel) Key(userID string) string {
	return fmt.Sprintf("%s:%s", c.keyPrefix, userID)
}

// Ensure RedisInboxChannel implements the interface
var _ secondary.NotificationChannel = (*RedisInboxChannel)(nil)
