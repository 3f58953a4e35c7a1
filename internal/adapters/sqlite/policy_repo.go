package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/leasehold/internal/db"
	"github.com/example/leasehold/internal/ports/secondary"
)

// PolicyRepository implements secondary.PolicyRepository.
type PolicyRepository struct {
	db   *sql.DB
	bind func(string) string
}

// NewPolicyRepository creates a new escalation policy repository.
func NewPolicyRepository(database *sql.DB) *PolicyRepository {
	return &PolicyRepository{db: database, bind: db.BindFor(database)}
}

// FindTiers returns the tiers stored for exactly one scope, ascending by level.
// A property scope matches rows with that property; a plan scope matches rows
// with that plan and no property; the global scope matches rows with neither.
func (r *PolicyRepository) FindTiers(ctx context.Context, scope secondary.PolicyScope) ([]*secondary.TierRecord, error) {
	query := `SELECT id, property_id, plan_id, level, role, hours_after_deadline FROM escalation_policies WHERE `
	var args []any

	switch {
	case scope.PropertyID != "":
		query += "property_id = ?"
		args = append(args, scope.PropertyID)
	case scope.PlanID != "":
		query += "property_id IS NULL AND plan_id = ?"
		args = append(args, scope.PlanID)
	default:
		query += "property_id IS NULL AND plan_id IS NULL"
	}

	query += " ORDER BY level ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, r.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find escalation tiers: %w", err)
	}
	defer rows.Close()

	var tiers []*secondary.TierRecord
	for rows.Next() {
		var propertyID, planID sql.NullString
		record := &secondary.TierRecord{}
		if err := rows.Scan(&record.ID, &propertyID, &planID, &record.Level, &record.Role, &record.HoursAfterDeadline); err != nil {
			return nil, fmt.Errorf("failed to scan escalation tier: %w", err)
		}
		record.PropertyID = propertyID.String
		record.PlanID = planID.String
		tiers = append(tiers, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate escalation tiers: %w", err)
	}

	return tiers, nil
}

// Ensure PolicyRepository implements the interface
var _ secondary.PolicyRepository = (*PolicyRepository)(nil)
