package service

import (
	"context"
	_ "embed"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/smallbiznis/creditgate/internal/rbac/domain"
	"github.com/smallbiznis/creditgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	GenID *snowflake.Node
}

type ServiceImpl struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	model model.Model
}

func NewService(p Params) (domain.Service, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	return &ServiceImpl{
		db:    p.DB,
		log:   p.Log.Named("rbac.service"),
		repo:  p.Repo,
		genID: p.GenID,
		model: m,
	}, nil
}

func (s *ServiceImpl) GetUserRoles(ctx context.Context, userID snowflake.ID) ([]domain.Role, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.ListUserRoles(ctx, userID)
}

// GetUserPermissions returns the permissions granted through the user's
// active roles, one per code in first-seen order.
func (s *ServiceImpl) GetUserPermissions(ctx context.Context, userID snowflake.ID) ([]domain.Permission, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	rows, err := s.repo.ListUserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	dedup := newOrderedPermissions(len(rows))
	for _, row := range rows {
		dedup.set(row)
	}
	return dedup.values(), nil
}

func (s *ServiceImpl) GetActiveRolesByNames(ctx context.Context, names []string) ([]domain.Role, error) {
	return s.repo.FindActiveRolesByNames(ctx, domain.NormalizeRoleNames(names))
}

func (s *ServiceImpl) GetRolesByNames(ctx context.Context, names []string) ([]domain.RoleRef, error) {
	return s.repo.FindRolesByNames(ctx, domain.NormalizeRoleNames(names))
}

// AddUserRoles assigns roles, ignoring assignments that already exist.
func (s *ServiceImpl) AddUserRoles(ctx context.Context, userID snowflake.ID, roleIDs []snowflake.ID) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	ids := uniqueIDs(roleIDs)
	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]domain.UserRole, 0, len(ids))
	for _, roleID := range ids {
		rows = append(rows, domain.UserRole{UserID: userID, RoleID: roleID, CreatedAt: now})
	}
	if err := s.repo.InsertUserRoles(ctx, rows); err != nil {
		return err
	}
	s.log.Info("user roles added",
		zap.String("user_id", userID.String()),
		zap.Int("roles", len(ids)),
	)
	return nil
}

// RemoveUserRoles returns how many assignments were actually removed.
func (s *ServiceImpl) RemoveUserRoles(ctx context.Context, userID snowflake.ID, roleIDs []snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	removed, err := s.repo.DeleteUserRoles(ctx, userID, uniqueIDs(roleIDs))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Info("user roles removed",
			zap.String("user_id", userID.String()),
			zap.Int64("removed", removed),
		)
	}
	return removed, nil
}

func (s *ServiceImpl) ListActiveRoles(ctx context.Context) ([]domain.Role, error) {
	return s.repo.ListActiveRoles(ctx)
}

func (s *ServiceImpl) CreateRole(ctx context.Context, req domain.CreateRoleRequest) (*domain.Role, error) {
	name := domain.NormalizeRoleName(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidRoleName
	}
	now := time.Now().UTC()
	role := &domain.Role{
		ID:          s.genID.Generate(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		IsActive:    !req.Inactive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateRole(ctx, role); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrRoleExists
		}
		return nil, err
	}
	return role, nil
}

func (s *ServiceImpl) SetRoleActive(ctx context.Context, roleID snowflake.ID, active bool) error {
	updated, err := s.repo.SetRoleActive(ctx, roleID, active)
	if err != nil {
		return err
	}
	if updated == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}

func (s *ServiceImpl) DeleteRole(ctx context.Context, roleID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.WithTx(tx).DeleteRole(ctx, roleID)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return domain.ErrRoleNotFound
		}
		return nil
	})
}

func (s *ServiceImpl) CreatePermission(ctx context.Context, req domain.CreatePermissionRequest) (*domain.Permission, error) {
	code := domain.NormalizePermissionCode(req.Code)
	if code == "" || strings.ContainsAny(code, " \t") {
		return nil, domain.ErrInvalidPermissionCode
	}
	permission := &domain.Permission{
		ID:          s.genID.Generate(),
		Code:        code,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreatePermission(ctx, permission); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrPermissionExists
		}
		return nil, err
	}
	return permission, nil
}

// GrantPermissions links permissions to a role, ignoring existing grants.
func (s *ServiceImpl) GrantPermissions(ctx context.Context, roleID snowflake.ID, permissionIDs []snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.GetRole(ctx, roleID); err != nil {
			return err
		}
		ids := uniqueIDs(permissionIDs)
		rows := make([]domain.RolePermission, 0, len(ids))
		for _, permissionID := range ids {
			rows = append(rows, domain.RolePermission{RoleID: roleID, PermissionID: permissionID})
		}
		return repo.InsertRolePermissions(ctx, rows)
	})
}

// HasPermission reports whether any active role of the user grants code.
// Granted codes may end in a wildcard: "organization.*" grants
// "organization.credit.manage".
func (s *ServiceImpl) HasPermission(ctx context.Context, userID snowflake.ID, code string) (bool, error) {
	code = domain.NormalizePermissionCode(code)
	if code == "" {
		return false, domain.ErrInvalidPermissionCode
	}
	permissions, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(permissions) == 0 {
		return false, nil
	}

	enforcer, err := casbin.NewEnforcer(s.model.Copy())
	if err != nil {
		return false, err
	}
	subject := "user:" + userID.String()
	rules := make([][]string, 0, len(permissions))
	for _, permission := range permissions {
		rules = append(rules, []string{subject, permission.Code})
	}
	if _, err := enforcer.AddPolicies(rules); err != nil {
		return false, err
	}
	return enforcer.Enforce(subject, code)
}

// orderedPermissions dedupes by code. A later row with the same code replaces
// the stored value but keeps the first-seen position.
type orderedPermissions struct {
	keys  []string
	items map[string]domain.Permission
}

func newOrderedPermissions(capacity int) *orderedPermissions {
	return &orderedPermissions{
		keys:  make([]string, 0, capacity),
		items: make(map[string]domain.Permission, capacity),
	}
}

func (o *orderedPermissions) set(permission domain.Permission) {
	if _, ok := o.items[permission.Code]; !ok {
		o.keys = append(o.keys, permission.Code)
	}
	o.items[permission.Code] = permission
}

func (o *orderedPermissions) values() []domain.Permission {
	out := make([]domain.Permission, 0, len(o.keys))
	for _, key := range o.keys {
		out = append(out, o.items[key])
	}
	return out
}

func uniqueIDs(ids []snowflake.ID) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(ids))
	seen := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
