package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/immersup/immersup-api/internal/models"
)

// GroupRights pairs a permission group with its sorted permission
// codenames, the unit of the save and restore round-trip.
type GroupRights struct {
	Group       string   `json:"group"`
	Permissions []string `json:"permissions"`
}

// GroupRightsRepository manages the permission groups and their grants.
type GroupRightsRepository struct {
	db *sqlx.DB
}

// NewGroupRightsRepository constructs the repository.
func NewGroupRightsRepository(db *sqlx.DB) *GroupRightsRepository {
	return &GroupRightsRepository{db: db}
}

// ListGroupsWithPermissions returns every group with its permission
// codenames, both sorted, so two exports of the same state are equal.
func (r *GroupRightsRepository) ListGroupsWithPermissions(ctx context.Context) ([]GroupRights, error) {
	const groupsQuery = `SELECT id, name FROM auth_group ORDER BY name`
	var groups []models.PermissionGroup
	if err := r.db.SelectContext(ctx, &groups, groupsQuery); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	const permsQuery = `SELECT p.codename FROM auth_permission p
        JOIN auth_group_permissions gp ON gp.permission_id = p.id
        WHERE gp.group_id = $1 ORDER BY p.codename`
	rights := make([]GroupRights, 0, len(groups))
	for _, g := range groups {
		var codenames []string
		if err := r.db.SelectContext(ctx, &codenames, permsQuery, g.ID); err != nil {
			return nil, fmt.Errorf("list permissions of group %s: %w", g.Name, err)
		}
		rights = append(rights, GroupRights{Group: g.Name, Permissions: codenames})
	}
	return rights, nil
}

// FindGroupByName returns a permission group.
func (r *GroupRightsRepository) FindGroupByName(ctx context.Context, name string) (*models.PermissionGroup, error) {
	const query = `SELECT id, name FROM auth_group WHERE name = $1`
	var group models.PermissionGroup
	if err := r.db.GetContext(ctx, &group, query, name); err != nil {
		return nil, err
	}
	return &group, nil
}

// ClearAllGroupPermissions wipes every grant before a restore.
func (r *GroupRightsRepository) ClearAllGroupPermissions(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_group_permissions`); err != nil {
		return fmt.Errorf("clear group permissions: %w", err)
	}
	return nil
}

// AddPermissionToGroup grants one codename to a group. Unknown codenames
// are reported so the restore can log and continue.
func (r *GroupRightsRepository) AddPermissionToGroup(ctx context.Context, groupID, codename string) error {
	const query = `INSERT INTO auth_group_permissions (group_id, permission_id)
        SELECT $1, id FROM auth_permission WHERE codename = $2
        ON CONFLICT DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, groupID, codename)
	if err != nil {
		return fmt.Errorf("grant %s: %w", codename, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("grant %s rows: %w", codename, err)
	}
	if affected == 0 {
		return fmt.Errorf("unknown permission codename %q", codename)
	}
	return nil
}

// ListCorePermissions returns every permission of the core app.
func (r *GroupRightsRepository) ListCorePermissions(ctx context.Context) ([]models.Permission, error) {
	const query = `SELECT p.id, p.codename, p.name, ct.app_label AS content_type_app, ct.model AS content_type_model
        FROM auth_permission p
        JOIN django_content_type ct ON ct.id = p.content_type_id
        WHERE ct.app_label = 'core'
        ORDER BY p.codename`
	var perms []models.Permission
	if err := r.db.SelectContext(ctx, &perms, query); err != nil {
		return nil, fmt.Errorf("list core permissions: %w", err)
	}
	return perms, nil
}

// UpdatePermissionName rewrites a permission's display name.
func (r *GroupRightsRepository) UpdatePermissionName(ctx context.Context, id, name string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE auth_permission SET name = $2 WHERE id = $1`, id, name); err != nil {
		return fmt.Errorf("update permission name: %w", err)
	}
	return nil
}

// DeletePermission removes a permission and its grants.
func (r *GroupRightsRepository) DeletePermission(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete permission tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_group_permissions WHERE permission_id = $1`, id); err != nil {
		return fmt.Errorf("delete permission grants: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_permission WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	return tx.Commit()
}
