// Package persist keeps serialized extension values in a SQL database so
// they survive a module reload.
package persist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Record is one serialized extension value of one entity
type Record struct {
	ID        uint   `gorm:"primaryKey"`
	Entity    string `gorm:"size:64;not null;uniqueIndex:idx_entity_name"`
	Name      string `gorm:"size:64;not null;uniqueIndex:idx_entity_name"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name regardless of naming strategy
func (Record) TableName() string {
	return "extension_records"
}

// Store reads and writes Records
type Store struct {
	db *gorm.DB
}

// Dialector returns the gorm dialector for a driver name
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported persistence driver %q", driver)
	}
}

// Open connects to the database and migrates the schema
func Open(driver, dsn string) (*Store, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	// Every connection to an in-memory sqlite database is a separate database
	if strings.Contains(dsn, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return New(db)
}

// New wraps an existing gorm connection and migrates the schema
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate extension records: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts values for entity
func (s *Store) Save(ctx context.Context, entity string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	records := make([]Record, 0, len(values))
	for name, value := range values {
		records = append(records, Record{
			Entity: entity,
			Name:   name,
			Value:  value,
		})
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&records).Error
	if err != nil {
		return fmt.Errorf("failed to save extension values for %s: %w", entity, err)
	}
	return nil
}

// Load returns the values stored for entity
func (s *Store) Load(ctx context.Context, entity string) (map[string]string, error) {
	var records []Record
	if err := s.db.WithContext(ctx).Where("entity = ?", entity).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load extension values for %s: %w", entity, err)
	}

	values := make(map[string]string, len(records))
	for _, r := range records {
		values[r.Name] = r.Value
	}
	return values, nil
}

// Entities lists every entity with at least one stored value
func (s *Store) Entities(ctx context.Context) ([]string, error) {
	var entities []string
	err := s.db.WithContext(ctx).Model(&Record{}).Distinct().Order("entity").Pluck("entity", &entities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	return entities, nil
}

// Delete removes the values stored for entity. With names given only those are removed.
func (s *Store) Delete(ctx context.Context, entity string, names ...string) error {
	q := s.db.WithContext(ctx).Where("entity = ?", entity)
	if len(names) > 0 {
		q = q.Where("name IN ?", names)
	}
	if err := q.Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("failed to delete extension values for %s: %w", entity, err)
	}
	return nil
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
