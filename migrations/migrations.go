// Package migrations embeds the schema and applies it with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

// Files holds the versioned up/down scripts.
//
//go:embed sql/*.sql
var Files embed.FS

// Runner applies embedded migrations against a single database.
type Runner struct {
	db *sql.DB
	m  *migrate.Migrate
}

// Open connects to dsn and prepares a migrator over the embedded scripts.
func Open(dsn string) (*Runner, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres driver: %w", err)
	}
	src, err := iofs.New(Files, "sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate init: %w", err)
	}
	return &Runner{db: db, m: m}, nil
}

// Up applies every pending migration. No pending work is not an error.
func (r *Runner) Up() error {
	return ignoreNoChange(r.m.Up())
}

// Down rolls back every applied migration.
func (r *Runner) Down() error {
	return ignoreNoChange(r.m.Down())
}

// Steps moves n migrations forward (n > 0) or backward (n < 0).
func (r *Runner) Steps(n int) error {
	return ignoreNoChange(r.m.Steps(n))
}

// Version reports the applied version and whether it is dirty.
func (r *Runner) Version() (uint, bool, error) {
	v, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the source and database handles.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
