package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/leasehold/internal/db"
	"github.com/example/leasehold/internal/ports/secondary"
)

// UserRepository implements secondary.UserRepository.
type UserRepository struct {
	db   *sql.DB
	bind func(string) string
}

// NewUserRepository creates a new user repository.
func NewUserRepository(database *sql.DB) *UserRepository {
	return &UserRepository{db: database, bind: db.BindFor(database)}
}

// ListByRole returns active users holding role, optionally within one organization.
func (r *UserRepository) ListByRole(ctx context.Context, role, orgID string) ([]*secondary.UserRecord, error) {
	query := "SELECT id, org_id, name, email, role FROM users WHERE role = ? AND active = ?"
	args := []any{role, true}

	if orgID != "" {
		query += " AND org_id = ?"
		args = append(args, orgID)
	}

	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, r.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	var users []*secondary.UserRecord
	for rows.Next() {
		var email sql.NullString
		u := &secondary.UserRecord{}
		if err := rows.Scan(&u.ID, &u.OrgID, &u.Name, &email, &u.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Email = email.String
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// Ensure UserRepository implements the interface
var _ secondary.UserRepository = (*UserRepository)(nil)
