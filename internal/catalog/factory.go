package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soltesz-lab/neuroh5/pkg/telemetry"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// DBConfig holds catalog database configuration.
type DBConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres, or mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"` // file path for sqlite
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// DBType represents the catalog's backing database engine.
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypePostgres DBType = "postgres"
	DBTypeMySQL    DBType = "mysql"
)

// NewGormDB opens a catalog database connection. sqlite is the default for
// a single-job local run (one file alongside the container, no server to
// stand up); postgres/mysql suit a catalog shared across jobs and hosts.
func NewGormDB(cfg *DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch DBType(cfg.Type) {
	case DBTypePostgres, DBType("postgresql"):
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database,
		)
		dialector = postgres.Open(dsn)
	case DBTypeMySQL:
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		)
		dialector = mysql.Open(dsn)
	case DBTypeSQLite, DBType(""):
		path := cfg.Database
		if path == "" {
			path = "neuroh5_catalog.db"
		}
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unsupported catalog database type: %s", cfg.Type)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	if telemetry.Enabled() {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("failed to enable catalog telemetry: %w", err)
		}
	}

	if err := db.AutoMigrate(
		&PopulationEntry{},
		&ProjectionEntry{},
		&AttributeNamespaceEntry{},
		&AppendCommit{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog schema: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	return db, nil
}

// Catalog bundles the manifest store and its lifecycle.
type Catalog struct {
	Manifest *ManifestStore
	gormDB   *gorm.DB
}

// Open opens a catalog database and returns a ready-to-use Catalog.
func Open(cfg *DBConfig) (*Catalog, error) {
	db, err := NewGormDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Catalog{Manifest: NewManifestStore(db), gormDB: db}, nil
}

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	if c.gormDB == nil {
		return nil
	}
	sqlDB, err := c.gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck verifies the database connection is still alive.
func (c *Catalog) HealthCheck(ctx context.Context) error {
	sqlDB, err := c.gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// DB returns the underlying sql.DB connection.
func (c *Catalog) DB() *sql.DB {
	sqlDB, _ := c.gormDB.DB()
	return sqlDB
}

// GormDB returns the underlying GORM DB instance.
func (c *Catalog) GormDB() *gorm.DB {
	return c.gormDB
}
