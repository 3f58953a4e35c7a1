package db

import (
	"database/sql"
	"fmt"
	"time"
)

// SeedFixtures populates the database with development fixtures.
// Deadlines are relative to now so a fresh seed always has tickets at
// several escalation stages.
func SeedFixtures(database *sql.DB, now time.Time) error {
	bind := BindFor(database)
	now = now.UTC()

	// Plans
	plans := []struct{ id, name string }{
		{"PLAN-STARTER", "starter"},
		{"PLAN-PRO", "pro"},
	}
	for _, p := range plans {
		if _, err := database.Exec(bind("INSERT INTO plans (id, name) VALUES (?, ?)"), p.id, p.name); err != nil {
			return fmt.Errorf("seed plans: %w", err)
		}
	}

	// Organizations
	orgs := []struct{ id, name, plan string }{
		{"ORG-001", "Harbour Lettings", "pro"},
		{"ORG-002", "Maple Residential", "starter"},
		{"ORG-003", "Solo Landlord", ""},
	}
	for _, o := range orgs {
		var plan sql.NullString
		if o.plan != "" {
			plan = sql.NullString{String: o.plan, Valid: true}
		}
		if _, err := database.Exec(bind("INSERT INTO organizations (id, name, plan_name) VALUES (?, ?, ?)"), o.id, o.name, plan); err != nil {
			return fmt.Errorf("seed organizations: %w", err)
		}
	}

	// Properties
	properties := []struct{ id, orgID, name string }{
		{"PROP-001", "ORG-001", "12 Quay Street"},
		{"PROP-002", "ORG-001", "The Old Mill"},
		{"PROP-003", "ORG-002", "4 Maple Court"},
		{"PROP-004", "ORG-003", "Garden Flat"},
	}
	for _, p := range properties {
		if _, err := database.Exec(bind("INSERT INTO properties (id, org_id, name) VALUES (?, ?, ?)"), p.id, p.orgID, p.name); err != nil {
			return fmt.Errorf("seed properties: %w", err)
		}
	}

	// Policies: a property override, a plan policy and the global policy
	tiers := []struct {
		id, propertyID, planID string
		level                  int
		role                   string
		hours                  float64
	}{
		{"TIER-001", "PROP-002", "", 1, "MANAGER", 0},
		{"TIER-002", "", "PLAN-PRO", 1, "ADMIN", 0},
		{"TIER-003", "", "PLAN-PRO", 2, "MANAGER", 12},
		{"TIER-004", "", "PLAN-PRO", 3, "SUPER_ADMIN", 36},
		{"TIER-005", "", "", 1, "ADMIN", 4},
		{"TIER-006", "", "", 2, "SUPER_ADMIN", 72},
	}
	for _, t := range tiers {
		if _, err := database.Exec(
			bind("INSERT INTO escalation_policies (id, property_id, plan_id, level, role, hours_after_deadline) VALUES (?, ?, ?, ?, ?, ?)"),
			t.id, nullable(t.propertyID), nullable(t.planID), t.level, t.role, t.hours,
		); err != nil {
			return fmt.Errorf("seed escalation policies: %w", err)
		}
	}

	// Users
	users := []struct{ id, orgID, name, email, role string }{
		{"USR-001", "ORG-001", "Ada Admin", "ada@harbour.example", "ADMIN"},
		{"USR-002", "ORG-001", "Max Manager", "max@harbour.example", "MANAGER"},
		{"USR-003", "ORG-001", "Sam Super", "sam@harbour.example", "SUPER_ADMIN"},
		{"USR-004", "ORG-002", "Bea Admin", "bea@maple.example", "ADMIN"},
		{"USR-005", "ORG-002", "Kit Super", "", "SUPER_ADMIN"},
		{"USR-006", "ORG-003", "Lou Landlord", "lou@solo.example", "ADMIN"},
	}
	for _, u := range users {
		if _, err := database.Exec(
			bind("INSERT INTO users (id, org_id, name, email, role) VALUES (?, ?, ?, ?, ?)"),
			u.id, u.orgID, u.name, nullable(u.email), u.role,
		); err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
	}

	// Tickets
	tickets := []struct {
		id, propertyID, orgID, title, status string
		overdue                              time.Duration
		hasDeadline                          bool
	}{
		{"TKT-001", "PROP-001", "ORG-001", "Boiler not heating", "open", 50 * time.Hour, true},
		{"TKT-002", "PROP-002", "ORG-001", "Broken window latch", "in_progress", 30 * time.Hour, true},
		{"TKT-003", "PROP-003", "ORG-002", "Leaking tap", "open", 5 * time.Hour, true},
		{"TKT-004", "PROP-004", "ORG-003", "Mould in bathroom", "open", -6 * time.Hour, true},
		{"TKT-005", "PROP-001", "ORG-001", "Door intercom", "completed", 90 * time.Hour, true},
		{"TKT-006", "PROP-003", "ORG-002", "Repaint hallway", "open", 0, false},
	}
	for _, t := range tickets {
		var deadline sql.NullTime
		if t.hasDeadline {
			deadline = sql.NullTime{Time: now.Add(-t.overdue), Valid: true}
		}
		if _, err := database.Exec(
			bind("INSERT INTO tickets (id, property_id, org_id, title, status, deadline) VALUES (?, ?, ?, ?, ?, ?)"),
			t.id, t.propertyID, t.orgID, t.title, t.status, deadline,
		); err != nil {
			return fmt.Errorf("seed tickets: %w", err)
		}
	}

	return nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
