package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/auth-service/internal/model"
)

type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

// List returns every role ordered by name.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,name,COALESCE(description,''),created_at FROM roles ORDER BY name")
	if err != nil {
		return nil, err
	}
	return scanRoles(rows)
}

// GetByName fetches a role by its unique name.
func (r *RoleRepo) GetByName(ctx context.Context, name string) (model.Role, error) {
	var role model.Role
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,COALESCE(description,''),created_at FROM roles WHERE name=? LIMIT 1", name).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Role{}, ErrNotFound
	}
	return role, err
}

// Create inserts a role. A duplicate name yields ErrConflict.
func (r *RoleRepo) Create(ctx context.Context, name, description string) (model.Role, error) {
	role := model.Role{ID: uuid.NewString(), Name: name, Description: description, CreatedAt: time.Now().UTC()}
	var desc sql.NullString
	if description != "" {
		desc = sql.NullString{String: description, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO roles (id, name, description) VALUES (?,?,?)", role.ID, role.Name, desc)
	if isDuplicate(err) {
		return model.Role{}, ErrConflict
	}
	if err != nil {
		return model.Role{}, err
	}
	return role, nil
}

// DeleteByName removes a role together with all of its memberships in one
// transaction. Returns ErrNotFound when the role does not exist.
func (r *RoleRepo) DeleteByName(ctx context.Context, name string) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, "SELECT id FROM roles WHERE name=? FOR UPDATE", name).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE role_id=?", id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM roles WHERE id=?", id)
		return err
	})
}

// Assign grants roleID to userID. The (user_id, role_id) primary key makes
// a duplicate assignment fail with ErrConflict; a concurrently deleted user
// or role yields ErrNotFound.
func (r *RoleRepo) Assign(ctx context.Context, userID, roleID string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO user_roles (user_id, role_id) VALUES (?,?)", userID, roleID)
	switch {
	case isDuplicate(err):
		return ErrConflict
	case isMissingParent(err):
		return ErrNotFound
	}
	return err
}

// Unassign revokes roleID from userID. Returns ErrNotFound when the pair
// does not exist.
func (r *RoleRepo) Unassign(ctx context.Context, userID, roleID string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id=? AND role_id=?", userID, roleID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ForUser lists the roles held by userID.
func (r *RoleRepo) ForUser(ctx context.Context, userID string) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT r.id, r.name, COALESCE(r.description,''), r.created_at
		 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		 WHERE ur.user_id = ? ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	return scanRoles(rows)
}

// HasRole reports whether userID holds the role called name.
func (r *RoleRepo) HasRole(ctx context.Context, userID, name string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		`SELECT 1 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		 WHERE ur.user_id = ? AND r.name = ? LIMIT 1`, userID, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanRoles(rows *sql.Rows) ([]model.Role, error) {
	defer rows.Close()
	roles := []model.Role{}
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}
