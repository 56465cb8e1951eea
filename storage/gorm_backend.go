package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// kvRecord is one row of the local key-value table.
type kvRecord struct {
	Key   string `gorm:"column:record_key;primaryKey"`
	Value string `gorm:"column:record_value;not null"`
}

func (kvRecord) TableName() string { return "kv_records" }

// GormBackend stores records in a gorm-managed table; by default a local
// SQLite file, which suits a single-operator process.
type GormBackend struct {
	db    *gorm.DB
	limit int
}

// OpenSQLite opens (or creates) the SQLite database at path.
// Use ":memory:" for a throwaway store.
func OpenSQLite(path string, limit int) (*GormBackend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	return NewGormBackend(db, limit)
}

// NewGormBackend migrates the key-value table on db.
func NewGormBackend(db *gorm.DB, limit int) (*GormBackend, error) {
	if err := db.AutoMigrate(&kvRecord{}); err != nil {
		return nil, fmt.Errorf("gorm: migrate: %w", err)
	}
	return &GormBackend{db: db, limit: limit}, nil
}

func (g *GormBackend) Put(ctx context.Context, key, value string) error {
	if len(value) > g.limit {
		return fmt.Errorf("gorm: value for %q is %d bytes, limit %d", key, len(value), g.limit)
	}
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&kvRecord{Key: key, Value: value}).Error
}

func (g *GormBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var rec kvRecord
	err := g.db.WithContext(ctx).Where("record_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.Value, true, nil
}

func (g *GormBackend) Delete(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).Where("record_key = ?", key).Delete(&kvRecord{}).Error
}

func (g *GormBackend) MaxValueSize() int { return g.limit }

func (g *GormBackend) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
