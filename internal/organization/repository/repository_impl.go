package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditgate/internal/organization/domain"
	"gorm.io/gorm"
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

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, type, parent_id, max_users, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.Slug,
		org.Type,
		org.ParentID,
		org.MaxUsers,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) GetOrganization(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) ListOrganizations(ctx context.Context, parentID *snowflake.ID) ([]domain.Organization, error) {
	query := r.db.WithContext(ctx).Model(&domain.Organization{})
	if parentID != nil {
		query = query.Where("parent_id = ?", *parentID)
	}
	var orgs []domain.Organization
	if err := query.Order("created_at ASC, id ASC").Find(&orgs).Error; err != nil {
		return nil, err
	}
	return orgs, nil
}

func (r *repository) UpdateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET name = ?, type = ?, max_users = ?, updated_at = ?
		 WHERE id = ?`,
		org.Name,
		org.Type,
		org.MaxUsers,
		org.UpdatedAt,
		org.ID,
	).Error
}

func (r *repository) DeleteOrganization(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(`DELETE FROM organizations WHERE id = ?`, id).Error
}

func (r *repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("slug = ?", slug).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CountChildren(ctx context.Context, id snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("parent_id = ?", id).
		Count(&count).Error
	return count, err
}

func (r *repository) AddUser(ctx context.Context, user domain.OrganizationUser) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organization_users (id, organization_id, user_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		user.ID,
		user.OrganizationID,
		user.UserID,
		user.CreatedAt,
	).Error
}

func (r *repository) RemoveUser(ctx context.Context, orgID, userID snowflake.ID) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`DELETE FROM organization_users WHERE organization_id = ? AND user_id = ?`,
		orgID,
		userID,
	)
	return result.RowsAffected, result.Error
}

func (r *repository) CountUsers(ctx context.Context, orgID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.OrganizationUser{}).
		Where("organization_id = ?", orgID).
		Count(&count).Error
	return count, err
}

func (r *repository) ListUsers(ctx context.Context, orgID snowflake.ID) ([]domain.OrganizationUser, error) {
	var users []domain.OrganizationUser
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at ASC, id ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repository) GetUserMembership(ctx context.Context, userID snowflake.ID) (*domain.OrganizationUser, error) {
	var user domain.OrganizationUser
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotInOrganization
		}
		return nil, err
	}
	return &user, nil
}
