package db

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.DB) error
}

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_escalation_tables",
		Up:      migrationV1,
	},
	{
		Version: 2,
		Name:    "dedupe_escalation_events_and_add_unique_index",
		Up:      migrationV2,
	},
	{
		Version: 3,
		Name:    "rederive_ticket_escalation_level_from_ledger",
		Up:      migrationV3,
	},
}

// RunMigrations applies every migration newer than the recorded schema version.
func RunMigrations(database *sql.DB) error {
	if err := createVersionTable(database); err != nil {
		return err
	}

	var currentVersion int
	err := database.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	bind := BindFor(database)
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		zap.L().Info("running migration",
			zap.Int("version", migration.Version),
			zap.String("name", migration.Name))

		if err := migration.Up(database); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		if _, err := database.Exec(bind("INSERT INTO schema_version (version) VALUES (?)"), migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func createVersionTable(database *sql.DB) error {
	_, err := database.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	return nil
}

// migrationV1 creates every table. Legacy platform databases already have
// tickets and escalation_events; CREATE IF NOT EXISTS leaves them alone.
// The ledger's unique index is left to V2, which first removes
// duplicates that older check-then-insert writers could produce.
func migrationV1(database *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS organizations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			plan_name TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS properties (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			property_id TEXT NOT NULL,
			org_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'open',
			deadline TIMESTAMP,
			current_escalation_level INTEGER NOT NULL DEFAULT 0,
			escalated_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_status_deadline ON tickets(status, deadline)`,
		`CREATE TABLE IF NOT EXISTS escalation_policies (
			id TEXT PRIMARY KEY,
			property_id TEXT,
			plan_id TEXT,
			level INTEGER NOT NULL,
			role TEXT NOT NULL,
			hours_after_deadline DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_escalation_policies_property ON escalation_policies(property_id)`,
		`CREATE INDEX IF NOT EXISTS idx_escalation_policies_plan ON escalation_policies(plan_id)`,
		`CREATE TABLE IF NOT EXISTS escalation_events (
			id TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL,
			org_id TEXT NOT NULL DEFAULT '',
			property_id TEXT NOT NULL DEFAULT '',
			level INTEGER NOT NULL,
			role TEXT NOT NULL,
			triggered_at TIMESTAMP NOT NULL,
			FOREIGN KEY (ticket_id) REFERENCES tickets(id)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role_org ON users(role, org_id)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata TEXT,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := database.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrationV2 keeps the earliest entry per (ticket_id, level) and then makes
// the pair unique so the ledger can use insert-if-absent.
func migrationV2(database *sql.DB) error {
	_, err := database.Exec(`
		DELETE FROM escalation_events
		WHERE EXISTS (
			SELECT 1 FROM escalation_events older
			WHERE older.ticket_id = escalation_events.ticket_id
			  AND older.level = escalation_events.level
			  AND (older.triggered_at < escalation_events.triggered_at
			       OR (older.triggered_at = escalation_events.triggered_at AND older.id < escalation_events.id))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to remove duplicate escalation events: %w", err)
	}

	_, err = database.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_escalation_events_ticket_level ON escalation_events(ticket_id, level)`)
	if err != nil {
		return fmt.Errorf("failed to create escalation event unique index: %w", err)
	}
	return nil
}

// migrationV3 recomputes the denormalized level from the ledger; older
// writers bumped it independently and it may disagree.
func migrationV3(database *sql.DB) error {
	_, err := database.Exec(`
		UPDATE tickets SET current_escalation_level = COALESCE(
			(SELECT MAX(level) FROM escalation_events WHERE escalation_events.ticket_id = tickets.id), 0)
	`)
	return err
}
