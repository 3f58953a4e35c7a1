package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/leasehold/internal/core/escalation"
	"github.com/example/leasehold/internal/ctxutil"
	"github.com/example/leasehold/internal/metrics"
	"github.com/example/leasehold/internal/ports/primary"
	"github.com/example/leasehold/internal/ports/secondary"
)

// DefaultRunLockKey is the lease key shared by every replica.
const DefaultRunLockKey = "leasehold:escalation:run"

// EngineConfig tunes a single escalation run.
type EngineConfig struct {
	BatchSize               int           // max tickets per run
	Concurrency             int           // tickets evaluated in parallel; 1 is sequential
	RunTimeout              time.Duration // stop admitting tickets after this; 0 disables
	ScopeNotificationsToOrg bool          // notify only role holders in the ticket's org
	LockKey                 string
	LockTTL                 time.Duration
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BatchSize:               500,
		Concurrency:             1,
		RunTimeout:              5 * time.Minute,
		ScopeNotificationsToOrg: true,
		LockKey:                 DefaultRunLockKey,
		LockTTL:                 10 * time.Minute,
	}
}

// EscalationEngine advances overdue tickets through their escalation ladders.
// Each run is a reconciliation: it writes whatever ledger entries are missing
// as of now, so a skipped or failed run is caught up by the next one.
type EscalationEngine struct {
	tickets  secondary.TicketRepository
	resolver *PolicyResolver
	executor EffectExecutor
	lock     secondary.RunLock
	config   EngineConfig
	logger   *zap.Logger

	// Serializes a ticket's tier loop across overlapping runs in this process.
	ticketLocks *keyedMutex
}

// NewEscalationEngine creates a new EscalationEngine. lock may be nil.
func NewEscalationEngine(
	tickets secondary.TicketRepository,
	resolver *PolicyResolver,
	executor EffectExecutor,
	lock secondary.RunLock,
	config EngineConfig,
	logger *zap.Logger,
) *EscalationEngine {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.LockKey == "" {
		config.LockKey = DefaultRunLockKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationEngine{
		tickets:     tickets,
		resolver:    resolver,
		executor:    executor,
		lock:        lock,
		config:      config,
		logger:      logger,
		ticketLocks: newKeyedMutex(),
	}
}

// ticketOutcome is the result of evaluating one ticket.
type ticketOutcome struct {
	applied int
	err     error
}

// Run performs one pass over open tickets as of now. limit overrides the
// configured batch size when positive. An error is returned only when the run
// could not start; per-ticket failures are counted in the summary.
func (e *EscalationEngine) Run(ctx context.Context, now time.Time, limit int) (*primary.RunSummary, error) {
	start := time.Now()
	now = now.UTC()
	summary := &primary.RunSummary{RunID: uuid.NewString()}
	ctx = ctxutil.WithRunID(ctx, summary.RunID)
	logger := e.logger.With(zap.String("run_id", summary.RunID))
	if actor := ctxutil.ActorFromContext(ctx); actor != "" {
		logger = logger.With(zap.String("actor", actor))
	}

	// The budget covers the whole run, including the batch fetch.
	runCtx := ctx
	if e.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.config.RunTimeout)
		defer cancel()
	}

	if e.lock != nil {
		release, acquired, err := e.lock.Acquire(runCtx, e.config.LockKey, e.config.LockTTL)
		if err != nil {
			metrics.RunsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		if !acquired {
			logger.Info("escalation run skipped, lease held elsewhere", zap.String("key", e.config.LockKey))
			metrics.RunsTotal.WithLabelValues("contended").Inc()
			summary.Contended = true
			summary.Duration = time.Since(start)
			return summary, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release run lock", zap.Error(err))
			}
		}()
	}

	if limit <= 0 {
		limit = e.config.BatchSize
	}
	candidates, err := e.tickets.FetchOpenWithDeadline(runCtx, secondary.TicketFilters{
		Limit:     limit,
		DueBefore: &now,
	})
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to fetch open tickets: %w", err)
	}
	summary.Truncated = limit > 0 && len(candidates) >= limit

	cache := NewResolutionCache()
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.config.Concurrency)

	for _, ticket := range candidates {
		if runCtx.Err() != nil {
			summary.TimedOut = true
			break
		}
		ticket := ticket
		g.Go(func() error {
			// The budget may expire while waiting for a worker slot.
			if runCtx.Err() != nil {
				mu.Lock()
				summary.TimedOut = true
				mu.Unlock()
				return nil
			}
			outcome := e.processTicket(runCtx, logger, cache, now, ticket)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			summary.Escalated += outcome.applied
			if outcome.applied > 0 {
				summary.Tickets++
			}
			if outcome.err != nil {
				summary.Failed++
			}
			return nil
		})
	}
	// Workers never return errors; failures are isolated per ticket.
	_ = g.Wait()

	summary.Duration = time.Since(start)
	metrics.TicketsProcessed.Add(float64(summary.Processed))
	metrics.RunDuration.Observe(summary.Duration.Seconds())
	switch {
	case summary.TimedOut:
		metrics.RunsTotal.WithLabelValues("timed_out").Inc()
	case summary.Failed > 0:
		metrics.RunsTotal.WithLabelValues("partial").Inc()
	default:
		metrics.RunsTotal.WithLabelValues("success").Inc()
	}

	logger.Info("escalation run complete",
		zap.Time("now", now),
		zap.Int("processed", summary.Processed),
		zap.Int("escalated", summary.Escalated),
		zap.Int("tickets", summary.Tickets),
		zap.Int("failed", summary.Failed),
		zap.Bool("truncated", summary.Truncated),
		zap.Bool("timed_out", summary.TimedOut),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

// processTicket evaluates one ticket. Every error is logged here and reported
// in the outcome; nothing escapes to the rest of the batch.
func (e *EscalationEngine) processTicket(ctx context.Context, logger *zap.Logger, cache *ResolutionCache, now time.Time, ticket *secondary.TicketRecord) ticketOutcome {
	logger = logger.With(
		zap.String("ticket_id", ticket.ID),
		zap.String("org_id", ticket.OrgID),
		zap.String("property_id", ticket.PropertyID))

	guard := escalation.CanEscalate(escalation.EligibilityContext{
		TicketID: ticket.ID,
		Status:   ticket.Status,
		Deadline: ticket.Deadline,
		Now:      now,
	})
	if !guard.Allowed {
		logger.Debug("ticket not eligible", zap.Error(guard.Error()))
		return ticketOutcome{}
	}

	resolved, err := e.resolveTiers(ctx, cache, ticket)
	if err != nil {
		return e.fail(logger, err)
	}

	plan := escalation.PlanTicketEscalation(escalation.TicketPlanInput{
		TicketID:   ticket.ID,
		OrgID:      ticket.OrgID,
		PropertyID: ticket.PropertyID,
		Deadline:   *ticket.Deadline,
		Now:        now,
		Tiers:      resolved.Tiers,
		ScopeToOrg: e.config.ScopeNotificationsToOrg,
	})
	if len(plan.Steps) == 0 {
		return ticketOutcome{}
	}

	unlock := e.ticketLocks.Lock(ticket.ID)
	defer unlock()

	result, err := e.executor.Execute(ctx, plan.Effects())
	outcome := ticketOutcome{}
	if result != nil {
		outcome.applied = len(result.Applied)
	}
	if err != nil {
		failed := e.fail(logger.With(zap.String("policy_scope", resolved.Scope.String())), err)
		outcome.err = failed.err
	}
	return outcome
}

func (e *EscalationEngine) resolveTiers(ctx context.Context, cache *ResolutionCache, ticket *secondary.TicketRecord) (*ResolvedTiers, error) {
	planID, err := e.resolver.PlanIDForOrg(ctx, cache, ticket.OrgID)
	if err != nil {
		return nil, err
	}
	return e.resolver.Resolve(ctx, cache, ticket.PropertyID, planID)
}

func (e *EscalationEngine) fail(logger *zap.Logger, err error) ticketOutcome {
	kind := escalation.FailureKind(err)
	metrics.TicketFailures.WithLabelValues(kind).Inc()

	var cfgErr *escalation.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		logger.Error("malformed escalation policy, ticket skipped", zap.String("kind", kind), zap.Error(err))
	default:
		logger.Warn("ticket escalation failed, will retry next run", zap.String("kind", kind), zap.Error(err))
	}
	return ticketOutcome{err: err}
}
