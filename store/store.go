// Package store provides the GORM-backed entity store for planforge.
//
// Entities live in models.go; operations are grouped per entity file
// (projects, functions, tasks, handson, jobs, tech). All operations take a
// context and return fault errors for bad input, so callers classify with
// errors.As instead of matching strings.
package store

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/planforge/planforge/fault"
)

// DriverSQLite and DriverPostgres are the supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store wraps the database handle. Safe for concurrent use; workers should
// take Session() for their own unit of work.
type Store struct {
	db *gorm.DB
}

// Open connects to the database for the given driver and DSN, migrates all
// models, and returns the store. SQLite connections are serialized with a
// busy timeout so concurrent workers queue instead of failing.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fault.NewValidationErrorf("store.driver", "unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver != DriverPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("access connection pool: %w", err)
		}
		// Single writer keeps the pure-Go sqlite driver safe under the
		// worker pool; busy_timeout covers external lockers.
		sqlDB.SetMaxOpenConns(1)
		db.Exec("PRAGMA busy_timeout = 5000")
	}

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Session returns a fresh session for one concurrent unit of work.
func (s *Store) Session() *gorm.DB {
	return s.db.Session(&gorm.Session{})
}

// Transaction runs fn inside a single database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func allModels() []any {
	return []any{
		&Project{},
		&StructuredFunction{},
		&FunctionDependency{},
		&Task{},
		&TaskDependency{},
		&TaskHandsOn{},
		&HandsOnGenerationJob{},
		&TaskGenerationJob{},
		&TechDomain{},
		&TechStack{},
		&TechSelection{},
		&GenerationSession{},
	}
}
