package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/utils"
)

const (
	maxRoleNameLen        = 80
	maxRoleDescriptionLen = 255
)

type RoleStore interface {
	List(ctx context.Context) ([]model.Role, error)
	GetByName(ctx context.Context, name string) (model.Role, error)
	Create(ctx context.Context, name, description string) (model.Role, error)
	DeleteByName(ctx context.Context, name string) error
	Assign(ctx context.Context, userID, roleID string) error
	Unassign(ctx context.Context, userID, roleID string) error
	ForUser(ctx context.Context, userID string) ([]model.Role, error)
	HasRole(ctx context.Context, userID, name string) (bool, error)
}

// RBACService manages roles and memberships. Route guards call IsAdmin on
// every request so a revoked role takes effect immediately.
type RBACService struct {
	roles        RoleStore
	users        UserStore
	bcryptCost   int
	storeTimeout time.Duration
	logger       *zap.Logger
}

func NewRBACService(roles RoleStore, users UserStore, cfg AuthConfig, logger *zap.Logger) *RBACService {
	if logger == nil {
		logger = zap.L()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &RBACService{
		roles:        roles,
		users:        users,
		bcryptCost:   cfg.BcryptCost,
		storeTimeout: cfg.StoreTimeout,
		logger:       logger.Named("rbac"),
	}
}

func (s *RBACService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *RBACService) ListRoles(ctx context.Context) ([]model.Role, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, storeFailure(err)
	}
	return roles, nil
}

func roleName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", validation("Role name is required.")
	}
	if len(name) > maxRoleNameLen {
		return "", validation("Role name must not exceed 80 characters.")
	}
	return name, nil
}

// CreateRole adds a role. Duplicate names are KindConflict.
func (s *RBACService) CreateRole(ctx context.Context, name, description string) (model.Role, error) {
	name, err := roleName(name)
	if err != nil {
		return model.Role{}, err
	}
	description = strings.TrimSpace(description)
	if len(description) > maxRoleDescriptionLen {
		return model.Role{}, validation("Role description must not exceed 255 characters.")
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	role, err := s.roles.Create(ctx, name, description)
	if errors.Is(err, repository.ErrConflict) {
		return model.Role{}, conflict(fmt.Sprintf("%s role already exists.", name), err)
	}
	if err != nil {
		return model.Role{}, storeFailure(err)
	}
	s.logger.Info("role created", zap.String("role", name))
	return role, nil
}

// DeleteRole removes a role and every membership that references it.
func (s *RBACService) DeleteRole(ctx context.Context, name string) error {
	name, err := roleName(name)
	if err != nil {
		return err
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	err = s.roles.DeleteByName(ctx, name)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(fmt.Sprintf("Role %s does not exist.", name), err)
	}
	if err != nil {
		return storeFailure(err)
	}
	s.logger.Info("role deleted", zap.String("role", name))
	return nil
}

// resolvePair loads the user and role an (un)assignment refers to.
func (s *RBACService) resolvePair(ctx context.Context, userID, name string) (model.User, model.Role, error) {
	name, err := roleName(name)
	if err != nil {
		return model.User{}, model.Role{}, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, model.Role{}, notFound(fmt.Sprintf("User %s does not exist.", userID), err)
	}
	if err != nil {
		return model.User{}, model.Role{}, storeFailure(err)
	}
	role, err := s.roles.GetByName(ctx, name)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, model.Role{}, notFound(fmt.Sprintf("Role %s does not exist.", name), err)
	}
	if err != nil {
		return model.User{}, model.Role{}, storeFailure(err)
	}
	return u, role, nil
}

// AssignRole grants a role to a user. A second grant of the same pair is
// KindConflict, decided by the membership primary key.
func (s *RBACService) AssignRole(ctx context.Context, userID, name string) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	u, role, err := s.resolvePair(ctx, userID, name)
	if err != nil {
		return err
	}
	err = s.roles.Assign(ctx, u.ID, role.ID)
	switch {
	case errors.Is(err, repository.ErrConflict):
		return conflict(fmt.Sprintf("User %s already has role %s.", u.ID, role.Name), err)
	case errors.Is(err, repository.ErrNotFound):
		return notFound("User or role no longer exists.", err)
	case err != nil:
		return storeFailure(err)
	}
	s.logger.Info("role assigned", zap.String("user_id", u.ID), zap.String("role", role.Name))
	return nil
}

// UnassignRole revokes a role. Missing user, role or membership are all
// KindNotFound.
func (s *RBACService) UnassignRole(ctx context.Context, userID, name string) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	u, role, err := s.resolvePair(ctx, userID, name)
	if err != nil {
		return err
	}
	err = s.roles.Unassign(ctx, u.ID, role.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(fmt.Sprintf("User %s does not have role %s.", u.ID, role.Name), err)
	}
	if err != nil {
		return storeFailure(err)
	}
	s.logger.Info("role unassigned", zap.String("user_id", u.ID), zap.String("role", role.Name))
	return nil
}

// IsAdmin reports whether userID holds the admin role, read from the store
// on every call.
func (s *RBACService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	ok, err := s.roles.HasRole(ctx, userID, model.AdminRole)
	if err != nil {
		return false, storeFailure(err)
	}
	return ok, nil
}

// BootstrapAdmin makes sure a user with email exists and holds the admin
// role, creating the role and the user as needed. Running it again with
// the same email is a no-op; an existing user's password is left alone.
func (s *RBACService) BootstrapAdmin(ctx context.Context, email, password string) (model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return model.User{}, err
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	role, err := s.ensureAdminRole(ctx)
	if err != nil {
		return model.User{}, err
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		if err := checkPassword(password); err != nil {
			return model.User{}, err
		}
		hash, herr := utils.HashPassword(password, s.bcryptCost)
		if herr != nil {
			return model.User{}, internal(herr)
		}
		u, err = s.users.Create(ctx, email, hash)
		if errors.Is(err, repository.ErrConflict) {
			u, err = s.users.GetByEmail(ctx, email)
		}
	}
	if err != nil {
		return model.User{}, storeFailure(err)
	}

	err = s.roles.Assign(ctx, u.ID, role.ID)
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		return model.User{}, storeFailure(err)
	}
	s.logger.Info("admin bootstrapped", zap.String("user_id", u.ID))
	return u, nil
}

func (s *RBACService) ensureAdminRole(ctx context.Context) (model.Role, error) {
	role, err := s.roles.GetByName(ctx, model.AdminRole)
	if errors.Is(err, repository.ErrNotFound) {
		role, err = s.roles.Create(ctx, model.AdminRole, "Full access to role management")
		if errors.Is(err, repository.ErrConflict) {
			role, err = s.roles.GetByName(ctx, model.AdminRole)
		}
	}
	if err != nil {
		return model.Role{}, storeFailure(err)
	}
	return role, nil
}
