package database

import (
	"context"
	"fmt"
	"sync"

	"arbor/internal/config"
	"arbor/internal/models"
	"arbor/internal/repository"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ExpectedBranchTables is the schema manifest every tenant branch must carry.
// The host application layers its own tables on top; extras never fail a
// health check.
var ExpectedBranchTables = []string{"profiles", "settings"}

// BranchConnector opens and caches connections to tenant branch databases.
// Each branch is a physically separate database reachable under its own
// hostname; credentials are shared with the global database.
type BranchConnector struct {
	cfg *config.Config

	mu    sync.Mutex
	conns map[string]*gorm.DB
}

// NewBranchConnector creates a connector using the given configuration.
func NewBranchConnector(cfg *config.Config) *BranchConnector {
	return &BranchConnector{
		cfg:   cfg,
		conns: make(map[string]*gorm.DB),
	}
}

// Open returns a connection to the given branch, reusing an existing pool
// when one is already open for that hostname.
func (c *BranchConnector) Open(branch models.DatabaseBranch) (*gorm.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.conns[branch.Hostname]; ok {
		return db, nil
	}

	sslMode := c.cfg.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		branch.Hostname,
		c.cfg.DBPort,
		c.cfg.DBUser,
		c.cfg.DBPassword,
		branch.Name,
		sslMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         newGormLogger(),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to branch %s: %w", branch.Name, err)
	}

	c.conns[branch.Hostname] = db
	return db, nil
}

// Tables lists the table names present in the branch's public schema.
func (c *BranchConnector) Tables(ctx context.Context, branch models.DatabaseBranch) ([]string, error) {
	db, err := c.Open(branch)
	if err != nil {
		return nil, err
	}
	var tables []string
	err = db.WithContext(ctx).
		Raw("SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name").
		Scan(&tables).Error
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// InitSchema creates the controller-owned schema objects on a fresh branch.
func (c *BranchConnector) InitSchema(ctx context.Context, branch models.DatabaseBranch) error {
	db, err := c.Open(branch)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).AutoMigrate(
		&models.Profile{},
		&models.Setting{},
	)
}

// OpenProfiles returns a profile repository over the branch's cached copy.
func (c *BranchConnector) OpenProfiles(branch models.DatabaseBranch) (repository.ProfileRepository, error) {
	db, err := c.Open(branch)
	if err != nil {
		return nil, err
	}
	return repository.NewProfileRepository(db), nil
}

// Close closes all cached branch connections, returning the first error.
func (c *BranchConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for host, db := range c.conns {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, host)
	}
	return firstErr
}
