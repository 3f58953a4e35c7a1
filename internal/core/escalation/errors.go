package escalation

import (
	"context"
	"errors"
	"fmt"
)

// ErrAlreadyApplied reports that a ledger entry for (ticket, level) already
// exists. It is the expected outcome of overlapping runs, not a failure.
var ErrAlreadyApplied = errors.New("escalation tier already applied")

// TransientLookupError wraps a failed read of org, plan or policy data.
// The ticket is skipped for this run and retried on the next one.
type TransientLookupError struct {
	Op  string
	Key string
	Err error
}

func (e *TransientLookupError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *TransientLookupError) Unwrap() error { return e.Err }

// ConfigurationError marks a stored policy that violates tier invariants.
type ConfigurationError struct {
	Scope  Scope
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("malformed escalation policy for %s: %s", e.Scope, e.Reason)
}

// DeliveryError records a failed notification to one recipient on one channel.
type DeliveryError struct {
	Channel     string
	RecipientID string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s to %s: %v", e.Channel, e.RecipientID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// FailureKind classifies a per-ticket error for logging and metrics.
func FailureKind(err error) string {
	var lookupErr *TransientLookupError
	var cfgErr *ConfigurationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &lookupErr):
		return "lookup"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "ledger"
	}
}
