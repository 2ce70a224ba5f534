package migration

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
	rbacrepo "github.com/smallbiznis/creditgate/internal/rbac/repository"
	"github.com/smallbiznis/creditgate/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := embeddedMigrations.ReadDir(migrationsDir)
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, 4, ups)
	assert.Equal(t, ups, downs)
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(conn))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := rbacrepo.NewRepository(conn)
	ctx := context.Background()
	const adminUser snowflake.ID = 77

	require.NoError(t, SeedDefaults(ctx, conn, repo, node, adminUser))
	require.NoError(t, SeedDefaults(ctx, conn, repo, node, adminUser))

	var roles, permissions, grants, assignments int64
	require.NoError(t, conn.Model(&rbacdomain.Role{}).Count(&roles).Error)
	require.NoError(t, conn.Model(&rbacdomain.Permission{}).Count(&permissions).Error)
	require.NoError(t, conn.Model(&rbacdomain.RolePermission{}).Count(&grants).Error)
	require.NoError(t, conn.Model(&rbacdomain.UserRole{}).Count(&assignments).Error)
	assert.Equal(t, int64(3), roles)
	assert.Equal(t, int64(4), permissions)
	assert.Equal(t, int64(7), grants)
	assert.Equal(t, int64(1), assignments)

	granted, err := repo.ListUserPermissions(ctx, adminUser)
	require.NoError(t, err)
	assert.Len(t, granted, 4)
}
