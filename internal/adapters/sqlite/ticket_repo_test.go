package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/example/leasehold/internal/adapters/sqlite"
	"github.com/example/leasehold/internal/ports/secondary"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestTicketRepository_FetchOpenWithDeadline(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewTicketRepository(db)
	ctx := context.Background()

	seedTicket(t, db, "TKT-LATE", "open", timePtr(baseTime.Add(-2*time.Hour)))
	seedTicket(t, db, "TKT-LATEST", "in_progress", timePtr(baseTime.Add(-50*time.Hour)))
	seedTicket(t, db, "TKT-FUTURE", "open", timePtr(baseTime.Add(5*time.Hour)))
	seedTicket(t, db, "TKT-DONE", "Completed", timePtr(baseTime.Add(-90*time.Hour)))
	seedTicket(t, db, "TKT-CLOSED", "closed", timePtr(baseTime.Add(-90*time.Hour)))
	seedTicket(t, db, "TKT-NODEADLINE", "open", nil)

	tickets, err := repo.FetchOpenWithDeadline(ctx, secondary.TicketFilters{})
	if err != nil {
		t.Fatalf("FetchOpenWithDeadline failed: %v", err)
	}

	want := []string{"TKT-LATEST", "TKT-LATE", "TKT-FUTURE"}
	if len(tickets) != len(want) {
		t.Fatalf("expected %d tickets, got %d", len(want), len(tickets))
	}
	for i, id := range want {
		if tickets[i].ID != id {
			t.Errorf("tickets[%d] = %s, want %s", i, tickets[i].ID, id)
		}
	}
	if tickets[0].Deadline == nil || !tickets[0].Deadline.Equal(baseTime.Add(-50*time.Hour)) {
		t.Errorf("unexpected deadline %v", tickets[0].Deadline)
	}
}

func TestTicketRepository_FetchOpenWithDeadline_Filters(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewTicketRepository(db)
	ctx := context.Background()

	seedTicket(t, db, "TKT-A", "open", timePtr(baseTime.Add(-3*time.Hour)))
	seedTicket(t, db, "TKT-B", "open", timePtr(baseTime.Add(-2*time.Hour)))
	seedTicket(t, db, "TKT-C", "open", timePtr(baseTime.Add(-1*time.Hour)))
	seedTicket(t, db, "TKT-D", "open", timePtr(baseTime.Add(1*time.Hour)))

	t.Run("limit keeps the most overdue", func(t *testing.T) {
		tickets, err := repo.FetchOpenWithDeadline(ctx, secondary.TicketFilters{Limit: 2})
		if err != nil {
			t.Fatalf("FetchOpenWithDeadline failed: %v", err)
		}
		if len(tickets) != 2 || tickets[0].ID != "TKT-A" || tickets[1].ID != "TKT-B" {
			t.Errorf("unexpected tickets: %v", ticketIDs(tickets))
		}
	})

	t.Run("due before excludes future deadlines", func(t *testing.T) {
		tickets, err := repo.FetchOpenWithDeadline(ctx, secondary.TicketFilters{DueBefore: timePtr(baseTime)})
		if err != nil {
			t.Fatalf("FetchOpenWithDeadline failed: %v", err)
		}
		if len(tickets) != 3 {
			t.Errorf("expected 3 tickets, got %v", ticketIDs(tickets))
		}
	})
}

func TestTicketRepository_FetchOpenWithDeadline_MixedTimestampFormats(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewTicketRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	plusFive := time.FixedZone("UTC+5", 5*60*60)

	// Written by other platform services: an offset time and ISO text.
	seedTicketDeadline(t, db, "TKT-OFFSET", now.Add(-3*time.Hour).In(plusFive))
	seedTicketDeadline(t, db, "TKT-ISO", "2026-01-10T11:00:00Z")
	seedTicketDeadline(t, db, "TKT-ISO-FUTURE", "2026-01-10T13:00:00Z")
	seedTicket(t, db, "TKT-UTC", "open", timePtr(now.Add(-2*time.Hour)))

	tickets, err := repo.FetchOpenWithDeadline(ctx, secondary.TicketFilters{DueBefore: &now})
	if err != nil {
		t.Fatalf("FetchOpenWithDeadline failed: %v", err)
	}

	want := []string{"TKT-OFFSET", "TKT-UTC", "TKT-ISO"}
	got := ticketIDs(tickets)
	if len(got) != len(want) {
		t.Fatalf("fetched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tickets[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if !tickets[0].Deadline.Equal(now.Add(-3 * time.Hour)) {
		t.Errorf("offset deadline = %v, want %v", tickets[0].Deadline, now.Add(-3*time.Hour))
	}
}

func TestTicketRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewTicketRepository(db)
	ctx := context.Background()

	seedTicket(t, db, "TKT-001", "open", nil)

	ticket, err := repo.GetByID(ctx, "TKT-001")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if ticket.Deadline != nil {
		t.Errorf("expected nil deadline, got %v", ticket.Deadline)
	}
	if ticket.CurrentEscalationLevel != 0 {
		t.Errorf("expected level 0, got %d", ticket.CurrentEscalationLevel)
	}

	if _, err := repo.GetByID(ctx, "TKT-999"); err == nil {
		t.Error("expected error for non-existent ticket")
	}
}

func TestTicketRepository_UpdateEscalationSummary(t *testing.T) {
	db := setupTestDB(t)
	tickets := sqlite.NewTicketRepository(db)
	events := sqlite.NewEscalationEventRepository(db)
	ctx := context.Background()

	seedTicket(t, db, "TKT-001", "open", timePtr(baseTime.Add(-30*time.Hour)))

	for _, level := range []int{1, 2} {
		if _, err := events.InsertIfAbsent(ctx, &secondary.EscalationEventRecord{
			TicketID: "TKT-001", Level: level, Role: "ADMIN", TriggeredAt: baseTime,
		}); err != nil {
			t.Fatalf("InsertIfAbsent failed: %v", err)
		}
	}

	// A writer that applied level 1 last must not regress the summary below
	// the ledger's maximum.
	if err := tickets.UpdateEscalationSummary(ctx, "TKT-001", 1, baseTime); err != nil {
		t.Fatalf("UpdateEscalationSummary failed: %v", err)
	}

	ticket, err := tickets.GetByID(ctx, "TKT-001")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if ticket.CurrentEscalationLevel != 2 {
		t.Errorf("expected level 2, got %d", ticket.CurrentEscalationLevel)
	}
	if ticket.EscalatedAt == nil || !ticket.EscalatedAt.Equal(baseTime) {
		t.Errorf("expected escalated_at %v, got %v", baseTime, ticket.EscalatedAt)
	}

	if err := tickets.UpdateEscalationSummary(ctx, "TKT-999", 1, baseTime); err == nil {
		t.Error("expected error for non-existent ticket")
	}
}

func TestTicketRepository_ResyncEscalationSummary(t *testing.T) {
	db := setupTestDB(t)
	tickets := sqlite.NewTicketRepository(db)
	events := sqlite.NewEscalationEventRepository(db)
	ctx := context.Background()

	seedTicket(t, db, "TKT-001", "open", timePtr(baseTime))
	seedTicket(t, db, "TKT-002", "open", timePtr(baseTime))
	if _, err := db.Exec("UPDATE tickets SET current_escalation_level = 7 WHERE id = 'TKT-002'"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, err := events.InsertIfAbsent(ctx, &secondary.EscalationEventRecord{
		TicketID: "TKT-001", Level: 3, Role: "SUPER_ADMIN", TriggeredAt: baseTime,
	}); err != nil {
		t.Fatalf("InsertIfAbsent failed: %v", err)
	}

	changed, err := tickets.ResyncEscalationSummary(ctx)
	if err != nil {
		t.Fatalf("ResyncEscalationSummary failed: %v", err)
	}
	if changed != 2 {
		t.Errorf("expected 2 rows changed, got %d", changed)
	}

	t1, _ := tickets.GetByID(ctx, "TKT-001")
	t2, _ := tickets.GetByID(ctx, "TKT-002")
	if t1.CurrentEscalationLevel != 3 || t2.CurrentEscalationLevel != 0 {
		t.Errorf("levels = %d, %d; want 3, 0", t1.CurrentEscalationLevel, t2.CurrentEscalationLevel)
	}
}

func ticketIDs(tickets []*secondary.TicketRecord) []string {
	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	return ids
}
