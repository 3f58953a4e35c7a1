// Package sqlite contains database/sql implementations of repository interfaces.
// The SQL is shared by SQLite and PostgreSQL; placeholders are rebound per driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/leasehold/internal/core/escalation"
	"github.com/example/leasehold/internal/db"
	"github.com/example/leasehold/internal/ports/secondary"
)

// TicketRepository implements secondary.TicketRepository.
type TicketRepository struct {
	db       *sql.DB
	bind     func(string) string
	postgres bool
}

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(database *sql.DB) *TicketRepository {
	return &TicketRepository{db: database, bind: db.BindFor(database), postgres: db.IsPostgres(database)}
}

// deadlineExpr is the deadline as a comparable instant. SQLite keeps
// TIMESTAMP as text, and external writers may store any offset or the ISO
// 'T' form, so text order is not time order there.
func (r *TicketRepository) deadlineExpr() string {
	if r.postgres {
		return "deadline"
	}
	return "julianday(deadline)"
}

const ticketColumns = `id, property_id, org_id, title, status, deadline, current_escalation_level, escalated_at`

// FetchOpenWithDeadline returns open tickets with a deadline, earliest deadline first.
func (r *TicketRepository) FetchOpenWithDeadline(ctx context.Context, filters secondary.TicketFilters) ([]*secondary.TicketRecord, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE deadline IS NOT NULL AND LOWER(status) NOT IN (?, ?)`
	args := []any{escalation.StatusCompleted, escalation.StatusClosed}

	if filters.DueBefore != nil {
		if r.postgres {
			query += " AND deadline <= ?"
			args = append(args, filters.DueBefore.UTC())
		} else {
			query += " AND julianday(deadline) <= julianday(?)"
			args = append(args, filters.DueBefore.UTC().Format(sqliteTimeFormat))
		}
	}

	query += " ORDER BY " + r.deadlineExpr() + " ASC, id ASC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*secondary.TicketRecord
	for rows.Next() {
		record, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tickets: %w", err)
	}

	return tickets, nil
}

// GetByID retrieves a ticket by its ID.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*secondary.TicketRecord, error) {
	row := r.db.QueryRowContext(ctx, r.bind(`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`), id)
	record, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ticket %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return record, nil
}

// UpdateEscalationSummary sets escalated_at and re-derives the level from the
// ledger, so concurrent writers converge on MAX(level) rather than racing.
// level is only used when the ledger holds nothing for the ticket.
func (r *TicketRepository) UpdateEscalationSummary(ctx context.Context, ticketID string, level int, triggeredAt time.Time) error {
	result, err := r.db.ExecContext(ctx, r.bind(`
		UPDATE tickets SET
			current_escalation_level = (SELECT COALESCE(MAX(level), ?) FROM escalation_events WHERE ticket_id = ?),
			escalated_at = ?
		WHERE id = ?`),
		level, ticketID, triggeredAt.UTC(), ticketID,
	)
	if err != nil {
		return fmt.Errorf("failed to update escalation summary: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("ticket %s not found", ticketID)
	}

	return nil
}

// ResyncEscalationSummary recomputes every ticket's level from the ledger.
func (r *TicketRepository) ResyncEscalationSummary(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tickets SET current_escalation_level = COALESCE(
			(SELECT MAX(level) FROM escalation_events WHERE escalation_events.ticket_id = tickets.id), 0)
		WHERE current_escalation_level <> COALESCE(
			(SELECT MAX(level) FROM escalation_events WHERE escalation_events.ticket_id = tickets.id), 0)`)
	if err != nil {
		return 0, fmt.Errorf("failed to resync escalation summaries: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// sqliteTimeFormat is a layout julianday() parses; it has no zone suffix, so
// callers pass UTC.
const sqliteTimeFormat = "2006-01-02 15:04:05.000"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(s rowScanner) (*secondary.TicketRecord, error) {
	var (
		deadline    sql.NullTime
		escalatedAt sql.NullTime
	)
	record := &secondary.TicketRecord{}
	err := s.Scan(&record.ID, &record.PropertyID, &record.OrgID, &record.Title, &record.Status, &deadline, &record.CurrentEscalationLevel, &escalatedAt)
	if err != nil {
		return nil, err
	}
	if deadline.Valid {
		t := deadline.Time.UTC()
		record.Deadline = &t
	}
	if escalatedAt.Valid {
		t := escalatedAt.Time.UTC()
		record.EscalatedAt = &t
	}
	return record, nil
}

// Ensure TicketRepository implements the interface
var _ secondary.TicketRepository = (*TicketRepository)(nil)
