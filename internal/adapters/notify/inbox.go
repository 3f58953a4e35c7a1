package notify

import (
	"context"

	"github.com/example/leasehold/internal/ports/secondary"
)

// InboxChannel writes in-app notification rows. It is always enabled.
type InboxChannel struct {
	repo secondary.NotificationRepository
}

// NewInboxChannel creates an in-app notification channel.
func NewInboxChannel(repo secondary.NotificationRepository) *InboxChannel {
	return &InboxChannel{repo: repo}
}

// Name implements secondary.NotificationChannel.
func (c *InboxChannel) Name() string { return "inbox" }

// Deliver implements secondary.NotificationChannel.
func (c *InboxChannel) Deliver(ctx context.Context, recipient *secondary.UserRecord, n *secondary.Notification) error {
	return c.repo.Create(ctx, &secondary.NotificationRecord{
		ID:        n.ID,
		UserID:    recipient.ID,
		Title:     n.Title,
		Message:   n.Message,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
	})
}

// Ensure InboxChannel implements the interface
var _ secondary.NotificationChannel = (*InboxChannel)(nil)
