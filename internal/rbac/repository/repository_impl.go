package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditgate/internal/rbac/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

// ListUserRoles returns the user's active roles in assignment order.
func (r *repository) ListUserRoles(ctx context.Context, userID snowflake.ID) ([]domain.Role, error) {
	var roles []domain.Role
	err := r.db.WithContext(ctx).Raw(
		`SELECT r.id, r.name, r.description, r.is_active, r.created_at, r.updated_at
		 FROM user_roles ur
		 JOIN roles r ON r.id = ur.role_id
		 WHERE ur.user_id = ? AND r.is_active = ?
		 ORDER BY ur.created_at ASC, r.id ASC`,
		userID,
		true,
	).Scan(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// ListUserPermissions returns every permission row reachable through the
// user's active roles, duplicates included.
func (r *repository) ListUserPermissions(ctx context.Context, userID snowflake.ID) ([]domain.Permission, error) {
	var permissions []domain.Permission
	err := r.db.WithContext(ctx).Raw(
		`SELECT p.id, p.code, p.description, p.created_at
		 FROM user_roles ur
		 JOIN roles r ON r.id = ur.role_id
		 JOIN role_permissions rp ON rp.role_id = r.id
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE ur.user_id = ? AND r.is_active = ?
		 ORDER BY ur.created_at ASC, r.id ASC, p.id ASC`,
		userID,
		true,
	).Scan(&permissions).Error
	if err != nil {
		return nil, err
	}
	return permissions, nil
}

func (r *repository) FindActiveRolesByNames(ctx context.Context, names []string) ([]domain.Role, error) {
	if len(names) == 0 {
		return []domain.Role{}, nil
	}
	var roles []domain.Role
	err := r.db.WithContext(ctx).
		Where("name IN ? AND is_active = ?", names, true).
		Order("name ASC").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *repository) FindRolesByNames(ctx context.Context, names []string) ([]domain.RoleRef, error) {
	if len(names) == 0 {
		return []domain.RoleRef{}, nil
	}
	var refs []domain.RoleRef
	err := r.db.WithContext(ctx).
		Model(&domain.Role{}).
		Select("id", "name").
		Where("name IN ?", names).
		Order("name ASC").
		Scan(&refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *repository) ListActiveRoles(ctx context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *repository) GetRole(ctx context.Context, id snowflake.ID) (*domain.Role, error) {
	var role domain.Role
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (r *repository) InsertUserRoles(ctx context.Context, rows []domain.UserRole) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

func (r *repository) DeleteUserRoles(ctx context.Context, userID snowflake.ID, roleIDs []snowflake.ID) (int64, error) {
	if len(roleIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND role_id IN ?", userID, roleIDs).
		Delete(&domain.UserRole{})
	return result.RowsAffected, result.Error
}

func (r *repository) CreateRole(ctx context.Context, role *domain.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *repository) SetRoleActive(ctx context.Context, id snowflake.ID, active bool) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Role{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":  active,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

// DeleteRole removes the role with its grants and assignments.
func (r *repository) DeleteRole(ctx context.Context, id snowflake.ID) (int64, error) {
	db := r.db.WithContext(ctx)
	if err := db.Where("role_id = ?", id).Delete(&domain.RolePermission{}).Error; err != nil {
		return 0, err
	}
	if err := db.Where("role_id = ?", id).Delete(&domain.UserRole{}).Error; err != nil {
		return 0, err
	}
	result := db.Where("id = ?", id).Delete(&domain.Role{})
	return result.RowsAffected, result.Error
}

func (r *repository) CreatePermission(ctx context.Context, permission *domain.Permission) error {
	return r.db.WithContext(ctx).Create(permission).Error
}

func (r *repository) FindPermissionsByCodes(ctx context.Context, codes []string) ([]domain.Permission, error) {
	if len(codes) == 0 {
		return []domain.Permission{}, nil
	}
	var permissions []domain.Permission
	err := r.db.WithContext(ctx).
		Where("code IN ?", codes).
		Order("code ASC").
		Find(&permissions).Error
	if err != nil {
		return nil, err
	}
	return permissions, nil
}

func (r *repository) InsertRolePermissions(ctx context.Context, rows []domain.RolePermission) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}
