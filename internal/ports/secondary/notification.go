package secondary

import (
	"context"
	"time"
)

// NotificationGateway delivers a notification to every holder of a role.
// Delivery is best-effort per recipient: a failure for one recipient never
// prevents delivery to the others and is reported, not returned.
type NotificationGateway interface {
	NotifyRole(ctx context.Context, req RoleNotification) (*DeliveryReport, error)
}

// RoleNotification is a notification addressed to a role.
type RoleNotification struct {
	Role     string
	OrgID    string // Empty string means every organization
	Title    string
	Message  string
	Metadata map[string]string
}

// DeliveryReport summarizes a role fan-out.
type DeliveryReport struct {
	Recipients int
	Delivered  int
	Failed     int
	Errors     []error
}

// NotificationChannel is one transport used by the gateway (in-app, email, push).
type NotificationChannel interface {
	// Name identifies the channel in logs and metrics.
	Name() string

	// Deliver sends one notification to one recipient.
	Deliver(ctx context.Context, recipient *UserRecord, notification *Notification) error
}

// Notification is the per-recipient payload handed to channels.
type Notification struct {
	ID        string
	Title     string
	Message   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// EventPublisher streams newly applied escalation events to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, event *EscalationEventRecord) error
	Close() error
}

// RunLock is a cross-process lease guarding a whole escalation run.
type RunLock interface {
	// Acquire tries to take the lease. When acquired is false another holder
	// owns it and release is nil.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}
