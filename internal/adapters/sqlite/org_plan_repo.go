package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/leasehold/internal/db"
	"github.com/example/leasehold/internal/ports/secondary"
)

// OrgPlanRepository implements secondary.OrgPlanRepository.
type OrgPlanRepository struct {
	db   *sql.DB
	bind func(string) string
}

// NewOrgPlanRepository creates a new organization plan repository.
func NewOrgPlanRepository(database *sql.DB) *OrgPlanRepository {
	return &OrgPlanRepository{db: database, bind: db.BindFor(database)}
}

// PlanNameForOrg returns the subscription plan name of an organization.
func (r *OrgPlanRepository) PlanNameForOrg(ctx context.Context, orgID string) (string, bool, error) {
	var name sql.NullString
	err := r.db.QueryRowContext(ctx, r.bind("SELECT plan_name FROM organizations WHERE id = ?"), orgID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get plan name for organization: %w", err)
	}
	if !name.Valid || name.String == "" {
		return "", false, nil
	}
	return name.String, true, nil
}

// PlanIDForName returns the ID of the plan with the given name.
func (r *OrgPlanRepository) PlanIDForName(ctx context.Context, name string) (string, bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, r.bind("SELECT id FROM plans WHERE name = ?"), name).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get plan id: %w", err)
	}
	return id, true, nil
}

// Ensure OrgPlanRepository implements the interface
var _ secondary.OrgPlanRepository = (*OrgPlanRepository)(nil)
