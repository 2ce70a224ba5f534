package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	generationdomain "github.com/smallbiznis/creditgate/internal/generation/domain"
	ledgerdomain "github.com/smallbiznis/creditgate/internal/ledger/domain"
	orgdomain "github.com/smallbiznis/creditgate/internal/organization/domain"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded PostgreSQL migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table the service owns.
func Models() []any {
	return []any{
		&ledgerdomain.OrganizationCredit{},
		&ledgerdomain.MemberQuota{},
		&ledgerdomain.ModelUsage{},
		&ledgerdomain.ModelCreditTransaction{},
		&rbacdomain.Role{},
		&rbacdomain.Permission{},
		&rbacdomain.RolePermission{},
		&rbacdomain.UserRole{},
		&orgdomain.Organization{},
		&orgdomain.OrganizationUser{},
		&pricingdomain.ModelPrice{},
		&generationdomain.Task{},
	}
}

// AutoMigrate creates the schema from the gorm models. Used for SQLite and
// MySQL, which the embedded SQL does not target.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
