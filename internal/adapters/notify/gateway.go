// Package notify delivers role notifications to users over one or more channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/leasehold/internal/core/escalation"
	"github.com/example/leasehold/internal/metrics"
	"github.com/example/leasehold/internal/ports/secondary"
)

// ErrNotApplicable is returned by a channel that cannot reach a recipient,
// e.g. email for a user without an address. It is neither a success nor a failure.
var ErrNotApplicable = errors.New("channel not applicable to recipient")

// BreakerSettings tunes the per-channel circuit breaker.
type BreakerSettings struct {
	MaxRequests uint32        // probes allowed while half-open
	Interval    time.Duration // closed-state counter reset period
	Timeout     time.Duration // open-state duration before probing
	MinRequests uint32        // requests observed before the breaker may trip
	FailRatio   float64       // failure ratio that trips the breaker
}

// DefaultBreakerSettings returns the breaker defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		MinRequests: 5,
		FailRatio:   0.6,
	}
}

type guardedChannel struct {
	channel secondary.NotificationChannel
	breaker *gobreaker.CircuitBreaker
}

// Gateway implements secondary.NotificationGateway by fanning a role
// notification out to every active holder of the role on every channel.
// Each channel sits behind its own circuit breaker so a dead SMTP relay
// fails fast instead of stalling every escalation in the run.
type Gateway struct {
	users    secondary.UserRepository
	channels []guardedChannel
	logger   *zap.Logger
	clock    func() time.Time
}

// NewGateway creates a gateway over the given channels.
func NewGateway(users secondary.UserRepository, settings BreakerSettings, logger *zap.Logger, channels ...secondary.NotificationChannel) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		users:  users,
		logger: logger.Named("notify"),
		clock:  time.Now,
	}
	for _, ch := range channels {
		g.channels = append(g.channels, guardedChannel{
			channel: ch,
			breaker: newBreaker(ch.Name(), settings, g.logger),
		})
	}
	return g
}

func newBreaker(name string, settings BreakerSettings, logger *zap.Logger) *gobreaker.CircuitBreaker {
	metrics.NotificationBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.NotificationBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("notification channel breaker changed state",
				zap.String("channel", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotApplicable)
		},
	})
}

// NotifyRole delivers req to every active user holding req.Role. Only a
// failure to list recipients is returned; per-recipient failures are
// collected in the report.
func (g *Gateway) NotifyRole(ctx context.Context, req secondary.RoleNotification) (*secondary.DeliveryReport, error) {
	recipients, err := g.users.ListByRole(ctx, req.Role, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s recipients: %w", req.Role, err)
	}

	report := &secondary.DeliveryReport{Recipients: len(recipients)}
	for _, user := range recipients {
		n := &secondary.Notification{
			ID:        "NTF-" + uuid.NewString(),
			Title:     req.Title,
			Message:   req.Message,
			Metadata:  req.Metadata,
			CreatedAt: g.clock().UTC(),
		}
		for _, gc := range g.channels {
			g.deliver(ctx, gc, user, n, report)
		}
	}

	g.logger.Debug("role notified",
		zap.String("role", req.Role),
		zap.String("org_id", req.OrgID),
		zap.Int("recipients", report.Recipients),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed))

	return report, nil
}

func (g *Gateway) deliver(ctx context.Context, gc guardedChannel, user *secondary.UserRecord, n *secondary.Notification, report *secondary.DeliveryReport) {
	name := gc.channel.Name()
	_, err := gc.breaker.Execute(func() (interface{}, error) {
		return nil, gc.channel.Deliver(ctx, user, n)
	})

	switch {
	case err == nil:
		report.Delivered++
		metrics.NotificationDeliveries.WithLabelValues(name, "delivered").Inc()
	case errors.Is(err, ErrNotApplicable):
		metrics.NotificationDeliveries.WithLabelValues(name, "skipped").Inc()
	default:
		outcome := "failed"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		report.Failed++
		report.Errors = append(report.Errors, &escalation.DeliveryError{Channel: name, RecipientID: user.ID, Err: err})
		metrics.NotificationDeliveries.WithLabelValues(name, outcome).Inc()
	}
}

// Ensure Gateway implements the interface
var _ secondary.NotificationGateway = (*Gateway)(nil)
