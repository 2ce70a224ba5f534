package migration

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
	"gorm.io/gorm"
)

type seedRole struct {
	name        string
	description string
	permissions []string
}

var defaultPermissions = []rbacdomain.Permission{
	{Code: rbacdomain.PermissionCreditManage, Description: "Set and top up organization credits"},
	{Code: rbacdomain.PermissionCreditView, Description: "Read organization ledger history"},
	{Code: rbacdomain.PermissionQuotaManage, Description: "Manage member quotas"},
	{Code: rbacdomain.PermissionPricingWrite, Description: "Edit the model price catalog"},
}

var defaultRoles = []seedRole{
	{
		name:        rbacdomain.RoleAdmin,
		description: "Full administrative access",
		permissions: []string{
			rbacdomain.PermissionCreditManage,
			rbacdomain.PermissionCreditView,
			rbacdomain.PermissionQuotaManage,
			rbacdomain.PermissionPricingWrite,
		},
	},
	{
		name:        rbacdomain.RoleManager,
		description: "Manages credits and quotas of organizations",
		permissions: []string{
			rbacdomain.PermissionCreditManage,
			rbacdomain.PermissionCreditView,
			rbacdomain.PermissionQuotaManage,
		},
	},
	{
		name:        rbacdomain.RoleMember,
		description: "Generates content against the organization balance",
	},
}

// SeedDefaults creates the built-in roles and permissions when missing and
// grants their permissions. Existing rows are left untouched. A non-zero
// adminUserID receives the admin role.
func SeedDefaults(ctx context.Context, conn *gorm.DB, repo rbacdomain.Repository, node *snowflake.Node, adminUserID snowflake.ID) error {
	if conn == nil {
		return errors.New("seed database handle is required")
	}

	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := repo.WithTx(tx)
		now := time.Now().UTC()

		permissionIDs, err := ensurePermissions(ctx, txRepo, node, now)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(defaultRoles))
		for _, role := range defaultRoles {
			names = append(names, role.name)
		}
		existing, err := txRepo.FindRolesByNames(ctx, names)
		if err != nil {
			return err
		}
		roleIDs := make(map[string]snowflake.ID, len(existing))
		for _, ref := range existing {
			roleIDs[ref.Name] = ref.ID
		}

		for _, seed := range defaultRoles {
			roleID, ok := roleIDs[seed.name]
			if !ok {
				role := &rbacdomain.Role{
					ID:          node.Generate(),
					Name:        seed.name,
					Description: seed.description,
					IsActive:    true,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if err := txRepo.CreateRole(ctx, role); err != nil {
					return err
				}
				roleID = role.ID
				roleIDs[seed.name] = roleID
			}

			grants := make([]rbacdomain.RolePermission, 0, len(seed.permissions))
			for _, code := range seed.permissions {
				grants = append(grants, rbacdomain.RolePermission{RoleID: roleID, PermissionID: permissionIDs[code]})
			}
			if err := txRepo.InsertRolePermissions(ctx, grants); err != nil {
				return err
			}
		}

		if adminUserID != 0 {
			return txRepo.InsertUserRoles(ctx, []rbacdomain.UserRole{{
				UserID:    adminUserID,
				RoleID:    roleIDs[rbacdomain.RoleAdmin],
				CreatedAt: now,
			}})
		}
		return nil
	})
}

func ensurePermissions(ctx context.Context, repo rbacdomain.Repository, node *snowflake.Node, now time.Time) (map[string]snowflake.ID, error) {
	codes := make([]string, 0, len(defaultPermissions))
	for _, p := range defaultPermissions {
		codes = append(codes, p.Code)
	}
	existing, err := repo.FindPermissionsByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]snowflake.ID, len(codes))
	for _, p := range existing {
		ids[p.Code] = p.ID
	}

	for _, p := range defaultPermissions {
		if _, ok := ids[p.Code]; ok {
			continue
		}
		permission := p
		permission.ID = node.Generate()
		permission.CreatedAt = now
		if err := repo.CreatePermission(ctx, &permission); err != nil {
			return nil, err
		}
		ids[p.Code] = permission.ID
	}
	return ids, nil
}
