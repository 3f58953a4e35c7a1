// Package sqlite_test contains integration tests for the SQL repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() to ensure tests run against
// the authoritative schema, preventing drift between test and production.
//
// DO NOT hardcode CREATE TABLE statements in test files. Use setupTestDB()
// and the seed* helpers instead.
package sqlite_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/example/leasehold/internal/db"
)

// setupTestDB creates an in-memory database with the authoritative schema.
// db.Open pins SQLite to a single connection, so every goroutine in a test
// sees the same in-memory database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := db.Open(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	// Use the authoritative schema from schema.go
	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// seedTicket inserts a test ticket and returns its ID. A nil deadline stores NULL.
func seedTicket(t *testing.T, db *sql.DB, id, status string, deadline *time.Time) string {
	t.Helper()
	if id == "" {
		id = "TKT-001"
	}
	if status == "" {
		status = "open"
	}
	var d sql.NullTime
	if deadline != nil {
		d = sql.NullTime{Time: deadline.UTC(), Valid: true}
	}
	_, err := db.Exec(
		"INSERT INTO tickets (id, property_id, org_id, title, status, deadline) VALUES (?, 'PROP-001', 'ORG-001', 'Test Ticket', ?, ?)",
		id, status, d,
	)
	if err != nil {
		t.Fatalf("failed to seed ticket: %v", err)
	}
	return id
}

// seedTicketDeadline inserts an open ticket with deadline stored exactly as
// given, without normalizing it to UTC.
func seedTicketDeadline(t *testing.T, db *sql.DB, id string, deadline any) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO tickets (id, property_id, org_id, title, status, deadline) VALUES (?, 'PROP-001', 'ORG-001', 'Test Ticket', 'open', ?)",
		id, deadline,
	)
	if err != nil {
		t.Fatalf("failed to seed ticket: %v", err)
	}
}

// seedTier inserts a policy tier. Empty propertyID/planID store NULL.
func seedTier(t *testing.T, db *sql.DB, id, propertyID, planID string, level int, role string, hours float64) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO escalation_policies (id, property_id, plan_id, level, role, hours_after_deadline) VALUES (?, ?, ?, ?, ?, ?)",
		id, nullString(propertyID), nullString(planID), level, role, hours,
	)
	if err != nil {
		t.Fatalf("failed to seed tier: %v", err)
	}
}

// seedUser inserts an active user.
func seedUser(t *testing.T, db *sql.DB, id, orgID, role, email string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO users (id, org_id, name, email, role) VALUES (?, ?, ?, ?, ?)",
		id, orgID, "User "+id, nullString(email), role,
	)
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
