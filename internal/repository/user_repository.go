package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/immersup/immersup-api/internal/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, superuser, active,
    establishment_id, highschool_id, creation_email_sent, email_change_date, last_login, created_at, updated_at`

// UserRepository handles persistence of platform accounts.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.ImmersionUser, error) {
	query := fmt.Sprintf(`SELECT %s FROM core_immersionuser WHERE id = $1`, userColumns)
	var user models.ImmersionUser
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail returns a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.ImmersionUser, error) {
	query := fmt.Sprintf(`SELECT %s FROM core_immersionuser WHERE LOWER(email) = LOWER($1)`, userColumns)
	var user models.ImmersionUser
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns users matching the filter with a total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.ImmersionUser, int, error) {
	base := `FROM core_immersionuser`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY last_name, first_name LIMIT %d OFFSET %d`,
		userColumns, base+clause, size, offset)

	var users []models.ImmersionUser
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// Create persists a new account.
func (r *UserRepository) Create(ctx context.Context, user *models.ImmersionUser) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	const query = `INSERT INTO core_immersionuser
        (id, email, password_hash, first_name, last_name, role, superuser, active,
         establishment_id, highschool_id, creation_email_sent, email_change_date, last_login, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :first_name, :last_name, :role, :superuser, :active,
         :establishment_id, :highschool_id, :creation_email_sent, :email_change_date, :last_login, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps a successful authentication.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE core_immersionuser SET last_login = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// ListPendingCreationEmail returns active accounts whose creation mail
// has not been sent yet.
func (r *UserRepository) ListPendingCreationEmail(ctx context.Context) ([]models.ImmersionUser, error) {
	query := fmt.Sprintf(`SELECT %s FROM core_immersionuser
        WHERE active = TRUE AND creation_email_sent = FALSE ORDER BY created_at`, userColumns)
	var users []models.ImmersionUser
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list pending creation emails: %w", err)
	}
	return users, nil
}

// MarkCreationEmailSent records that the account creation mail left the queue.
func (r *UserRepository) MarkCreationEmailSent(ctx context.Context, id string) error {
	const query = `UPDATE core_immersionuser SET creation_email_sent = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark creation email sent: %w", err)
	}
	return nil
}

// StructureIDs returns the structures a structure manager is bound to.
func (r *UserRepository) StructureIDs(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT structure_id FROM core_immersionuser_structures WHERE user_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("list user structures: %w", err)
	}
	return ids, nil
}

// CreateRefreshToken persists a refresh credential.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO core_refresh_token (id, user_id, token, expires_at, revoked, revoked_at, created_at)
        VALUES (:id, :user_id, :token, :expires_at, :revoked, :revoked_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh credential by its value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, revoked, revoked_at, created_at
        FROM core_refresh_token WHERE token = $1`
	var stored models.RefreshToken
	if err := r.db.GetContext(ctx, &stored, query, token); err != nil {
		return nil, err
	}
	return &stored, nil
}

// RevokeRefreshToken marks a credential as used.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE core_refresh_token SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// CreateUserGroup links accounts known to be the same person.
func (r *UserRepository) CreateUserGroup(ctx context.Context, group *models.ImmersionUserGroup, memberIDs []string) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	group.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin user group tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertGroup = `INSERT INTO core_immersionusergroup (id, label, created_at) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, insertGroup, group.ID, group.Label, group.CreatedAt); err != nil {
		return fmt.Errorf("create user group: %w", err)
	}
	const insertMember = `INSERT INTO core_immersionusergroup_members (group_id, user_id) VALUES ($1, $2)`
	for _, memberID := range memberIDs {
		if _, err := tx.ExecContext(ctx, insertMember, group.ID, memberID); err != nil {
			return fmt.Errorf("add user group member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit user group: %w", err)
	}
	return nil
}

// GroupMemberIDs returns the account IDs linked by a user group.
func (r *UserRepository) GroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	const query = `SELECT user_id FROM core_immersionusergroup_members WHERE group_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, groupID); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return ids, nil
}
