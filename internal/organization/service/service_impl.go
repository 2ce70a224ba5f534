package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/creditgate/internal/organization/domain"
	"github.com/smallbiznis/creditgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	GenID *snowflake.Node
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func NewService(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("organization.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	orgType := domain.Type(strings.ToLower(strings.TrimSpace(string(req.Type))))
	if !orgType.Valid() {
		return nil, domain.ErrInvalidType
	}
	maxUsers, err := normalizeMaxUsers(orgType, req.MaxUsers)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	org := domain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		Type:      orgType,
		ParentID:  req.ParentID,
		MaxUsers:  maxUsers,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := validateParent(ctx, repo, orgType, req.ParentID); err != nil {
			return err
		}

		base := slug.Make(name)
		if base == "" {
			base = string(orgType)
		}
		org.Slug = base
		taken, err := repo.SlugExists(ctx, org.Slug)
		if err != nil {
			return err
		}
		if taken {
			org.Slug = base + "-" + org.ID.Base36()
		}

		return repo.CreateOrganization(ctx, org)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("organization_id", org.ID.String()),
		zap.String("type", string(org.Type)),
	)
	return &org, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	if id == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.GetOrganization(ctx, id)
}

func (s *service) List(ctx context.Context, parentID *snowflake.ID) ([]domain.Organization, error) {
	return s.repo.ListOrganizations(ctx, parentID)
}

func (s *service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateOrganizationRequest) (*domain.Organization, error) {
	if id == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	var updated domain.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		org, err := repo.GetOrganization(ctx, id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			org.Name = name
		}
		if req.Type != nil {
			next := domain.Type(strings.ToLower(strings.TrimSpace(string(*req.Type))))
			if !next.Valid() {
				return domain.ErrInvalidType
			}
			if next != org.Type && (org.Type == domain.TypeManagement || next == domain.TypeManagement) {
				return domain.ErrManagementTypeImmutable
			}
			org.Type = next
		}

		switch {
		case req.ClearMaxUsers:
			org.MaxUsers = nil
		case req.MaxUsers != nil:
			org.MaxUsers = req.MaxUsers
		}
		maxUsers, err := normalizeMaxUsers(org.Type, org.MaxUsers)
		if err != nil {
			return err
		}
		org.MaxUsers = maxUsers

		if org.MaxUsers != nil {
			count, err := repo.CountUsers(ctx, org.ID)
			if err != nil {
				return err
			}
			if count > int64(*org.MaxUsers) {
				return domain.ErrInvalidMaxUsers
			}
		}

		org.UpdatedAt = time.Now().UTC()
		if err := repo.UpdateOrganization(ctx, *org); err != nil {
			return err
		}
		updated = *org
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *service) Delete(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return domain.ErrInvalidOrganization
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.GetOrganization(ctx, id); err != nil {
			return err
		}
		users, err := repo.CountUsers(ctx, id)
		if err != nil {
			return err
		}
		if users > 0 {
			return domain.ErrOrganizationHasUsers
		}
		children, err := repo.CountChildren(ctx, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return domain.ErrOrganizationHasChildren
		}
		return repo.DeleteOrganization(ctx, id)
	})
}

func (s *service) AddUser(ctx context.Context, orgID, userID snowflake.ID) (*domain.OrganizationUser, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	member := domain.OrganizationUser{
		ID:             s.genID.Generate(),
		OrganizationID: orgID,
		UserID:         userID,
		CreatedAt:      time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		org, err := repo.GetOrganization(ctx, orgID)
		if err != nil {
			return err
		}

		existing, err := repo.GetUserMembership(ctx, userID)
		switch {
		case err == nil:
			if existing.OrganizationID == orgID {
				member = *existing
				return nil
			}
			return domain.ErrUserAlreadyAssigned
		case !errors.Is(err, domain.ErrUserNotInOrganization):
			return err
		}

		if org.MaxUsers != nil {
			count, err := repo.CountUsers(ctx, orgID)
			if err != nil {
				return err
			}
			if count >= int64(*org.MaxUsers) {
				return domain.ErrMaxUsersReached
			}
		}

		if err := repo.AddUser(ctx, member); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrUserAlreadyAssigned
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *service) RemoveUser(ctx context.Context, orgID, userID snowflake.ID) error {
	if orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	removed, err := s.repo.RemoveUser(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if removed == 0 {
		return domain.ErrUserNotInOrganization
	}
	return nil
}

func (s *service) ListUsers(ctx context.Context, orgID snowflake.ID) ([]domain.OrganizationUser, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListUsers(ctx, orgID)
}

// GetUserOrganization returns the organization that pays for userID.
func (s *service) GetUserOrganization(ctx context.Context, userID snowflake.ID) (snowflake.ID, error) {
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	membership, err := s.repo.GetUserMembership(ctx, userID)
	if err != nil {
		return 0, err
	}
	return membership.OrganizationID, nil
}

// a class hangs under a school; personal organizations have exactly one user
func validateParent(ctx context.Context, repo domain.Repository, orgType domain.Type, parentID *snowflake.ID) error {
	if orgType == domain.TypeClass && parentID == nil {
		return domain.ErrInvalidParent
	}
	if parentID == nil {
		return nil
	}
	if orgType == domain.TypeManagement {
		return domain.ErrInvalidParent
	}
	parent, err := repo.GetOrganization(ctx, *parentID)
	if err != nil {
		if errors.Is(err, domain.ErrOrganizationNotFound) {
			return domain.ErrInvalidParent
		}
		return err
	}
	if orgType == domain.TypeClass && parent.Type != domain.TypeSchool {
		return domain.ErrInvalidParent
	}
	return nil
}

func normalizeMaxUsers(orgType domain.Type, maxUsers *int) (*int, error) {
	if orgType == domain.TypePersonal {
		one := 1
		return &one, nil
	}
	if maxUsers != nil && *maxUsers <= 0 {
		return nil, domain.ErrInvalidMaxUsers
	}
	return maxUsers, nil
}
