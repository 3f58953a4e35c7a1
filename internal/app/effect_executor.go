// Package app contains the application layer - service implementations and effect execution.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/example/leasehold/internal/core/effects"
	"github.com/example/leasehold/internal/core/escalation"
	"github.com/example/leasehold/internal/metrics"
	"github.com/example/leasehold/internal/ports/secondary"
)

// EffectExecutor interprets and executes effects.
// This is the "Imperative Shell" - the only place escalation I/O happens.
type EffectExecutor interface {
	Execute(ctx context.Context, effs []effects.Effect) (*ExecutionResult, error)
}

// ExecutionResult records which escalation steps were written by this call.
type ExecutionResult struct {
	Applied        []int // levels newly written to the ledger
	AlreadyApplied []int // levels another run had already written
}

// DefaultEffectExecutor implements EffectExecutor against the ledger,
// the ticket store, the notification gateway and the event publisher.
type DefaultEffectExecutor struct {
	ledger    secondary.EscalationEventRepository
	tickets   secondary.TicketRepository
	notifier  secondary.NotificationGateway
	publisher secondary.EventPublisher
	logger    *zap.Logger
}

// NewEffectExecutor creates a new DefaultEffectExecutor. publisher may be nil.
func NewEffectExecutor(
	ledger secondary.EscalationEventRepository,
	tickets secondary.TicketRepository,
	notifier secondary.NotificationGateway,
	publisher secondary.EventPublisher,
	logger *zap.Logger,
) *DefaultEffectExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultEffectExecutor{
		ledger:    ledger,
		tickets:   tickets,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
	}
}

// Execute processes effects in order. A ledger failure stops execution so a
// higher level is never written before a lower one; follow-up failures are
// logged and never returned.
func (e *DefaultEffectExecutor) Execute(ctx context.Context, effs []effects.Effect) (*ExecutionResult, error) {
	result := &ExecutionResult{}
	if err := e.execute(ctx, effs, result); err != nil {
		return result, err
	}
	return result, nil
}

func (e *DefaultEffectExecutor) execute(ctx context.Context, effs []effects.Effect, result *ExecutionResult) error {
	for _, eff := range effs {
		if err := e.executeOne(ctx, eff, result); err != nil {
			return fmt.Errorf("failed to execute %s effect: %w", eff.EffectType(), err)
		}
	}
	return nil
}

func (e *DefaultEffectExecutor) executeOne(ctx context.Context, eff effects.Effect, result *ExecutionResult) error {
	switch typed := eff.(type) {
	case effects.EscalationStepEffect:
		return e.executeStep(ctx, typed, result)
	case effects.SummaryUpdateEffect:
		e.executeSummary(ctx, typed)
		return nil
	case effects.PublishEventEffect:
		e.executePublish(ctx, ledgerRecord(typed.Event))
		return nil
	case effects.NotifyRoleEffect:
		e.executeNotify(ctx, typed)
		return nil
	case effects.LogEffect:
		e.executeLog(typed)
		return nil
	default:
		return fmt.Errorf("unknown effect type: %T", eff)
	}
}

// executeStep writes the ledger entry and, only if it is new, runs the
// follow-ups. Once the ledger insert starts, the step runs detached from
// cancellation: a written ledger entry always gets its summary update and
// notification even if the run budget expires meanwhile.
func (e *DefaultEffectExecutor) executeStep(ctx context.Context, step effects.EscalationStepEffect, result *ExecutionResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	durable := context.WithoutCancel(ctx)

	record := ledgerRecord(step.Ledger)
	if err := e.insertLedger(durable, record); err != nil {
		if errors.Is(err, escalation.ErrAlreadyApplied) {
			metrics.EscalationsAlreadyApplied.Inc()
			result.AlreadyApplied = append(result.AlreadyApplied, step.Ledger.Level)
			e.logger.Debug("escalation step skipped", zap.Error(err))
			return nil
		}
		return err
	}

	metrics.EscalationsApplied.WithLabelValues(strconv.Itoa(step.Ledger.Level)).Inc()
	result.Applied = append(result.Applied, step.Ledger.Level)

	e.logger.Info("escalation applied",
		zap.String("ticket_id", step.Ledger.TicketID),
		zap.String("org_id", step.Ledger.OrgID),
		zap.Int("level", step.Ledger.Level),
		zap.String("role", step.Ledger.Role),
		zap.String("event_id", record.ID))

	for _, followUp := range step.FollowUps {
		// Publish the stored record so consumers see the ledger's event ID.
		if _, ok := followUp.(effects.PublishEventEffect); ok {
			e.executePublish(durable, record)
			continue
		}
		if err := e.executeOne(durable, followUp, result); err != nil {
			return fmt.Errorf("failed to execute %s effect: %w", followUp.EffectType(), err)
		}
	}
	return nil
}

// insertLedger writes record, returning ErrAlreadyApplied when the ledger
// already holds its (ticket, level).
func (e *DefaultEffectExecutor) insertLedger(ctx context.Context, record *secondary.EscalationEventRecord) error {
	applied, err := e.ledger.InsertIfAbsent(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to record level %d for ticket %s: %w", record.Level, record.TicketID, err)
	}
	if !applied {
		return fmt.Errorf("level %d for ticket %s: %w", record.Level, record.TicketID, escalation.ErrAlreadyApplied)
	}
	return nil
}

func (e *DefaultEffectExecutor) executeSummary(ctx context.Context, eff effects.SummaryUpdateEffect) {
	if err := e.tickets.UpdateEscalationSummary(ctx, eff.TicketID, eff.Level, eff.TriggeredAt); err != nil {
		// The ledger is authoritative; the summary is re-derived on the next update.
		metrics.SummaryUpdateFailures.Inc()
		e.logger.Error("failed to update escalation summary",
			zap.String("ticket_id", eff.TicketID),
			zap.Int("level", eff.Level),
			zap.Error(err))
	}
}

func (e *DefaultEffectExecutor) executePublish(ctx context.Context, record *secondary.EscalationEventRecord) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, record); err != nil {
		metrics.EventsPublished.WithLabelValues("failed").Inc()
		e.logger.Warn("failed to publish escalation event",
			zap.String("ticket_id", record.TicketID),
			zap.Int("level", record.Level),
			zap.Error(err))
		return
	}
	metrics.EventsPublished.WithLabelValues("published").Inc()
}

func (e *DefaultEffectExecutor) executeNotify(ctx context.Context, eff effects.NotifyRoleEffect) {
	if e.notifier == nil {
		return
	}
	report, err := e.notifier.NotifyRole(ctx, secondary.RoleNotification{
		Role:     eff.Role,
		OrgID:    eff.OrgID,
		Title:    eff.Title,
		Message:  eff.Message,
		Metadata: eff.Metadata,
	})
	if err != nil {
		e.logger.Error("failed to notify role",
			zap.String("role", eff.Role),
			zap.String("org_id", eff.OrgID),
			zap.String("ticket_id", eff.Metadata["ticket_id"]),
			zap.Error(err))
		return
	}
	if report.Recipients == 0 {
		e.logger.Warn("no recipients hold escalation role",
			zap.String("role", eff.Role),
			zap.String("org_id", eff.OrgID),
			zap.String("ticket_id", eff.Metadata["ticket_id"]))
	}
	for _, deliveryErr := range report.Errors {
		e.logger.Warn("notification delivery failed",
			zap.String("role", eff.Role),
			zap.String("ticket_id", eff.Metadata["ticket_id"]),
			zap.Error(deliveryErr))
	}
}

func (e *DefaultEffectExecutor) executeLog(eff effects.LogEffect) {
	fields := make([]zap.Field, 0, len(eff.Fields))
	for k, v := range eff.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch eff.Level {
	case "debug":
		e.logger.Debug(eff.Message, fields...)
	case "warn":
		e.logger.Warn(eff.Message, fields...)
	case "error":
		e.logger.Error(eff.Message, fields...)
	default:
		e.logger.Info(eff.Message, fields...)
	}
}

func ledgerRecord(eff effects.LedgerInsertEffect) *secondary.EscalationEventRecord {
	return &secondary.EscalationEventRecord{
		TicketID:    eff.TicketID,
		OrgID:       eff.OrgID,
		PropertyID:  eff.PropertyID,
		Level:       eff.Level,
		Role:        eff.Role,
		TriggeredAt: eff.TriggeredAt,
	}
}
