package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Migrator applies the Story/Scene schema migrations, adapted from the
// teacher's pkg/migration/migration.go onto this pipeline's own
// migrations directory and zap logging.
type Migrator struct {
	migrationsFS fs.FS
	path         string
	pool         *pgxpool.Pool
	logger       *zap.Logger
}

// NewMigrator builds a Migrator reading migration files from migrationsFS
// under path (see internal/repository/migrations).
func NewMigrator(migrationsFS fs.FS, path string, pool *pgxpool.Pool, logger *zap.Logger) *Migrator {
	return &Migrator{migrationsFS: migrationsFS, path: path, pool: pool, logger: logger.Named("Migrator")}
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	migrator, err := m.build(ctx)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	m.logger.Info("schema migrations applied")
	return nil
}

func (m *Migrator) build(ctx context.Context) (*migrate.Migrate, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	db := stdlib.OpenDBFromPool(m.pool)
	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable:       "schema_migrations",
		MigrationsTableQuoted: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	source, err := iofs.New(m.migrationsFS, m.path)
	if err != nil {
		return nil, fmt.Errorf("create source driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	migrator.LockTimeout = 30 * time.Second
	return migrator, nil
}
