package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// SchemaSQL is the complete schema for fresh installs.
// This schema reflects the current state after all migrations.
//
// # Schema Drift Protection
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. All tests use
// this schema via GetSchemaSQL(); repository code that references a column
// missing here fails tests immediately with "no such column".
//
// The SQL is the common subset of SQLite and PostgreSQL: TEXT ids,
// TIMESTAMP columns, DOUBLE PRECISION hours and ON CONFLICT targets backed
// by unique indexes.
//
// When adding new columns or tables:
//  1. Add a migration in migrations.go
//  2. Update SchemaSQL here
//  3. Bump the version list so fresh installs skip the new migration
const SchemaSQL = `
-- Subscription plans
CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Organizations (landlords / property managers) and their plan
CREATE TABLE IF NOT EXISTS organizations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	plan_name TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Properties
CREATE TABLE IF NOT EXISTS properties (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Service tickets. current_escalation_level/escalated_at are a cache of the ledger.
CREATE TABLE IF NOT EXISTS tickets (
	id TEXT PRIMARY KEY,
	property_id TEXT NOT NULL,
	org_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	deadline TIMESTAMP,
	current_escalation_level INTEGER NOT NULL DEFAULT 0,
	escalated_at TIMESTAMP,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tickets_status_deadline ON tickets(status, deadline);

-- Escalation policy tiers. Both scope columns null means the global policy.
CREATE TABLE IF NOT EXISTS escalation_policies (
	id TEXT PRIMARY KEY,
	property_id TEXT,
	plan_id TEXT,
	level INTEGER NOT NULL,
	role TEXT NOT NULL,
	hours_after_deadline DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_escalation_policies_property ON escalation_policies(property_id);
CREATE INDEX IF NOT EXISTS idx_escalation_policies_plan ON escalation_policies(plan_id);

-- Escalation ledger (append-only)
CREATE TABLE IF NOT EXISTS escalation_events (
	id TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL,
	org_id TEXT NOT NULL DEFAULT '',
	property_id TEXT NOT NULL DEFAULT '',
	level INTEGER NOT NULL,
	role TEXT NOT NULL,
	triggered_at TIMESTAMP NOT NULL,
	FOREIGN KEY (ticket_id) REFERENCES tickets(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_escalation_events_ticket_level ON escalation_events(ticket_id, level);

-- Users (notification recipients)
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	name TEXT NOT NULL,
	email TEXT,
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_users_role_org ON users(role, org_id);

-- In-app notifications
CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	metadata TEXT,
	read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL,
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
`

// InitSchema brings database up to the current schema.
// Fresh databases get SchemaSQL directly; databases that already carry
// platform tables without version tracking are upgraded through migrations.
func InitSchema(database *sql.DB) error {
	exists, err := tableExists(database, "schema_version")
	if err != nil {
		return err
	}
	if exists {
		return RunMigrations(database)
	}

	legacy, err := tableExists(database, "tickets")
	if err != nil {
		return err
	}
	if legacy {
		// Platform tables exist from before version tracking - upgrade them
		return RunMigrations(database)
	}

	// Completely fresh install - create modern schema directly and mark
	// every migration as applied
	if err := execStatements(database, SchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := createVersionTable(database); err != nil {
		return err
	}
	bind := BindFor(database)
	for _, m := range migrations {
		if _, err := database.Exec(bind("INSERT INTO schema_version (version) VALUES (?)"), m.Version); err != nil {
			return fmt.Errorf("failed to record schema version %d: %w", m.Version, err)
		}
	}
	return nil
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}

func tableExists(database *sql.DB, name string) (bool, error) {
	var query string
	if IsPostgres(database) {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1"
	} else {
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ?"
	}
	var count int
	if err := database.QueryRow(query, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return count > 0, nil
}

// execStatements runs a multi-statement script one statement at a time;
// lib/pq rejects multiple statements with arguments and SQLite only reports
// the first error position.
func execStatements(database *sql.DB, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stripComments(stmt)) == "" {
			continue
		}
		if _, err := database.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func stripComments(stmt string) string {
	var b strings.Builder
	for _, line := range strings.Split(stmt, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
