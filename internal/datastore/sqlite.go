// sqlite.go: the fast native key-value backend, a single sqlite table
// managed through gorm.
package datastore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// KVEntry is the gorm model for a single key-value row.
type KVEntry struct {
	Key       string    `gorm:"primaryKey"`
	Value     []byte    `gorm:"type:blob"`
	UpdatedAt time.Time `gorm:"index"`
}

type sqliteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the sqlite backend at path and migrates
// its schema.
func OpenSQLite(path string) (KV, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(key string) ([]byte, bool, error) {
	var entry KVEntry
	err := s.db.Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value, true, nil
}

func (s *sqliteStore) Set(key string, value []byte) error {
	entry := KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Save(&entry).Error
}

func (s *sqliteStore) Delete(key string) error {
	return s.db.Where("key = ?", key).Delete(&KVEntry{}).Error
}

func (s *sqliteStore) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.Model(&KVEntry{}).
		Where("key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Order("key").
		Pluck("key", &keys).Error
	return keys, err
}

func (s *sqliteStore) DeletePrefix(prefix string) error {
	return s.db.Where("key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").Delete(&KVEntry{}).Error
}

func (s *sqliteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// escapeLike escapes LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
