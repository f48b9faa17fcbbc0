package service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

// roleRank orders roles for the hijack rule. Higher rank dominates.
// Everything outside the table shares the lowest rank.
var roleRank = map[models.UserRole]int{
	models.RoleOperator:                   3,
	models.RoleMasterEstablishmentManager: 2,
	models.RoleEstablishmentManager:       1,
}

func rankOf(u *models.ImmersionUser) int {
	if u.Superuser {
		return 4
	}
	return roleRank[u.Role]
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.ImmersionUser, error)
	StructureIDs(ctx context.Context, userID string) ([]string, error)
}

type userGrouper interface {
	CreateUserGroup(ctx context.Context, group *models.ImmersionUserGroup, memberIDs []string) error
	GroupMemberIDs(ctx context.Context, groupID string) ([]string, error)
}

type accountMergeNotifier interface {
	AccountsMerged(ctx context.Context, memberIDs []string)
}

type establishmentLister interface {
	ListEstablishments(ctx context.Context) ([]models.Establishment, error)
	ListStructures(ctx context.Context, establishmentID string) ([]models.Structure, error)
	ListStructuresByIDs(ctx context.Context, ids []string) ([]models.Structure, error)
}

type hijackSettings interface {
	Bool(ctx context.Context, name string, fallback bool) bool
}

// AuthorityService answers "may this actor act here": the hijack rule,
// the establishment and structure scoping used by list endpoints, and
// the merge of accounts known to be the same person.
type AuthorityService struct {
	users    userReader
	groups   userGrouper
	orgs     establishmentLister
	settings hijackSettings
	notifier accountMergeNotifier
	logger   *zap.Logger
}

// NewAuthorityService constructs AuthorityService.
func NewAuthorityService(users userReader, groups userGrouper, orgs establishmentLister, settings hijackSettings, notifier accountMergeNotifier, logger *zap.Logger) *AuthorityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorityService{users: users, groups: groups, orgs: orgs, settings: settings, notifier: notifier, logger: logger}
}

// CanHijack decides whether actor may act as target. Superusers always
// may; otherwise hijacking must be activated and the actor's role must
// strictly dominate the target's.
func (s *AuthorityService) CanHijack(ctx context.Context, actor *models.ImmersionUser, targetID string) (*models.ImmersionUser, error) {
	target, err := s.users.FindByID(ctx, targetID)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "target user not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target user")
	}
	if !target.Active {
		return nil, appErrors.ErrTargetInactive
	}
	if actor.Superuser {
		return target, nil
	}
	if !s.settings.Bool(ctx, models.SettingActivateHijack, false) {
		return nil, appErrors.ErrAuthorizationDenied
	}
	if rankOf(actor) <= rankOf(target) {
		return nil, appErrors.ErrAuthorizationDenied
	}
	return target, nil
}

// MergeAccounts links accounts identified as the same person into a
// group and notifies every linked holder.
func (s *AuthorityService) MergeAccounts(ctx context.Context, label string, memberIDs []string) (*models.ImmersionUserGroup, error) {
	if len(memberIDs) < 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a merge group needs at least two accounts")
	}
	seen := make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		if _, dup := seen[id]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "account listed twice in merge group")
		}
		seen[id] = struct{}{}
		if _, err := s.users.FindByID(ctx, id); err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("account %s not found", id))
		} else if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
		}
	}
	group := &models.ImmersionUserGroup{Label: label}
	if err := s.groups.CreateUserGroup(ctx, group, memberIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user group")
	}
	if s.notifier != nil {
		s.notifier.AccountsMerged(ctx, memberIDs)
	}
	return group, nil
}

// GroupMembers returns the accounts linked by a merge group.
func (s *AuthorityService) GroupMembers(ctx context.Context, groupID string) ([]models.ImmersionUser, error) {
	ids, err := s.groups.GroupMemberIDs(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group members")
	}
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user group not found")
	}
	members := make([]models.ImmersionUser, 0, len(ids))
	for _, id := range ids {
		user, err := s.users.FindByID(ctx, id)
		if err != nil {
			s.logger.Error("group member load failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		members = append(members, *user)
	}
	return members, nil
}

// UserEstablishments returns the establishments the user administers:
// all of them for operators and master managers, the user's own for
// establishment and structure managers, none otherwise.
func (s *AuthorityService) UserEstablishments(ctx context.Context, user *models.ImmersionUser) ([]models.Establishment, error) {
	switch user.Role {
	case models.RoleOperator, models.RoleMasterEstablishmentManager:
		all, err := s.orgs.ListEstablishments(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list establishments")
		}
		return all, nil
	case models.RoleEstablishmentManager, models.RoleStructureManager:
		if user.EstablishmentID == nil {
			return nil, nil
		}
		all, err := s.orgs.ListEstablishments(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list establishments")
		}
		for _, e := range all {
			if e.ID == *user.EstablishmentID {
				return []models.Establishment{e}, nil
			}
		}
		return nil, nil
	}
	return nil, nil
}

// UserStructures returns the structures the user is attached to. Users
// holding any escape role see every structure.
func (s *AuthorityService) UserStructures(ctx context.Context, user *models.ImmersionUser, escapeRoles ...models.UserRole) ([]models.Structure, error) {
	for _, role := range escapeRoles {
		if user.Role == role {
			all, err := s.orgs.ListStructures(ctx, "")
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list structures")
			}
			return all, nil
		}
	}
	ids, err := s.users.StructureIDs(ctx, user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list user structures")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	structures, err := s.orgs.ListStructuresByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load structures")
	}
	return structures, nil
}
