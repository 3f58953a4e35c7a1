package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/leasehold/internal/db"
	"github.com/example/leasehold/internal/ports/secondary"
)

// EscalationEventRepository implements secondary.EscalationEventRepository.
type EscalationEventRepository struct {
	db   *sql.DB
	bind func(string) string
}

// NewEscalationEventRepository creates a new escalation ledger repository.
func NewEscalationEventRepository(database *sql.DB) *EscalationEventRepository {
	return &EscalationEventRepository{db: database, bind: db.BindFor(database)}
}

// InsertIfAbsent records the event unless (ticket_id, level) already exists.
// The unique index makes this a single atomic statement; the second of two
// concurrent writers affects zero rows and reports applied=false.
func (r *EscalationEventRepository) InsertIfAbsent(ctx context.Context, event *secondary.EscalationEventRecord) (bool, error) {
	if event.ID == "" {
		event.ID = "ESC-" + uuid.NewString()
	}

	result, err := r.db.ExecContext(ctx, r.bind(`
		INSERT INTO escalation_events (id, ticket_id, org_id, property_id, level, role, triggered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticket_id, level) DO NOTHING`),
		event.ID, event.TicketID, event.OrgID, event.PropertyID, event.Level, event.Role, event.TriggeredAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert escalation event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return rowsAffected > 0, nil
}

// Exists reports whether a ledger entry exists for (ticketID, level).
func (r *EscalationEventRepository) Exists(ctx context.Context, ticketID string, level int) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		r.bind("SELECT COUNT(*) FROM escalation_events WHERE ticket_id = ? AND level = ?"),
		ticketID, level,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check escalation event: %w", err)
	}
	return count > 0, nil
}

// ListByTicket returns a ticket's ledger entries ascending by level.
func (r *EscalationEventRepository) ListByTicket(ctx context.Context, ticketID string) ([]*secondary.EscalationEventRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.bind(`
		SELECT id, ticket_id, org_id, property_id, level, role, triggered_at
		FROM escalation_events WHERE ticket_id = ? ORDER BY level ASC`), ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalation events: %w", err)
	}
	defer rows.Close()

	var events []*secondary.EscalationEventRecord
	for rows.Next() {
		e := &secondary.EscalationEventRecord{}
		if err := rows.Scan(&e.ID, &e.TicketID, &e.OrgID, &e.PropertyID, &e.Level, &e.Role, &e.TriggeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan escalation event: %w", err)
		}
		e.TriggeredAt = e.TriggeredAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate escalation events: %w", err)
	}

	return events, nil
}

// MaxLevel returns the highest recorded level for a ticket, or 0.
func (r *EscalationEventRepository) MaxLevel(ctx context.Context, ticketID string) (int, error) {
	var level int
	err := r.db.QueryRowContext(ctx,
		r.bind("SELECT COALESCE(MAX(level), 0) FROM escalation_events WHERE ticket_id = ?"),
		ticketID,
	).Scan(&level)
	if err != nil {
		return 0, fmt.Errorf("failed to get max escalation level: %w", err)
	}
	return level, nil
}

// Ensure EscalationEventRepository implements the interface
var _ secondary.EscalationEventRepository = (*EscalationEventRepository)(nil)
