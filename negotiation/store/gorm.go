package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/types"
)

// GormConfig tunes the connection pool behind a GormStore.
type GormConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultGormConfig returns the default pool configuration.
func DefaultGormConfig() GormConfig {
	return GormConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// conflictRecord is the database row. The conflict itself is stored as a
// JSON document; status and detection time are lifted into columns for the
// List filter.
type conflictRecord struct {
	ID         string    `gorm:"primaryKey;size:64"`
	Status     string    `gorm:"index;size:32"`
	Document   string    `gorm:"type:text"`
	DetectedAt time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

func (conflictRecord) TableName() string { return "conflicts" }

func newConflictRecord(c *negotiation.Conflict) (*conflictRecord, error) {
	doc, err := json.Marshal(c)
	if err != nil {
		return nil, types.NewError(types.ErrPersistence, "failed to encode conflict").WithCause(err)
	}
	return &conflictRecord{
		ID:         c.ID,
		Status:     string(c.Status),
		Document:   string(doc),
		DetectedAt: c.DetectedAt,
	}, nil
}

func (r *conflictRecord) conflict() (*negotiation.Conflict, error) {
	var c negotiation.Conflict
	if err := json.Unmarshal([]byte(r.Document), &c); err != nil {
		return nil, types.NewError(types.ErrPersistence,
			fmt.Sprintf("failed to decode conflict %s", r.ID)).WithCause(err)
	}
	return &c, nil
}

// GormStore is a durable ConflictStore backed by any GORM dialector. Mutate
// runs inside a database transaction.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore migrates the schema, tunes the pool, and returns the store.
func NewGormStore(db *gorm.DB, config GormConfig, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, types.NewError(types.ErrPersistence, "db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := db.AutoMigrate(&conflictRecord{}); err != nil {
		return nil, types.NewError(types.ErrPersistence, "failed to migrate conflicts table").WithCause(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, types.NewError(types.ErrPersistence, "failed to access sql.DB").WithCause(err)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	logger = logger.With(zap.String("component", "gorm_store"))
	logger.Info("conflict store initialized",
		zap.Int("max_idle_conns", config.MaxIdleConns),
		zap.Int("max_open_conns", config.MaxOpenConns),
	)

	return &GormStore{db: db, logger: logger}, nil
}

// Create persists a new conflict.
func (s *GormStore) Create(ctx context.Context, c *negotiation.Conflict) error {
	record, err := newConflictRecord(c)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return types.NewError(types.ErrPersistence,
			fmt.Sprintf("failed to create conflict %s", c.ID)).WithCause(err).WithRetryable(true)
	}
	return nil
}

// Get returns the conflict with the given id.
func (s *GormStore) Get(ctx context.Context, id string) (*negotiation.Conflict, error) {
	var record conflictRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrConflictNotFound,
			fmt.Sprintf("conflict %s not found", id))
	}
	if err != nil {
		return nil, types.NewError(types.ErrPersistence,
			fmt.Sprintf("failed to load conflict %s", id)).WithCause(err).WithRetryable(true)
	}
	return record.conflict()
}

// Mutate applies fn inside a database transaction. The row is re-read within
// the transaction, so fn always sees the latest committed state.
func (s *GormStore) Mutate(ctx context.Context, id string, fn func(*negotiation.Conflict) error) (*negotiation.Conflict, error) {
	var result *negotiation.Conflict
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record conflictRecord
		if err := tx.First(&record, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.NewError(types.ErrConflictNotFound,
					fmt.Sprintf("conflict %s not found", id))
			}
			return types.NewError(types.ErrPersistence,
				fmt.Sprintf("failed to load conflict %s", id)).WithCause(err).WithRetryable(true)
		}

		conflict, err := record.conflict()
		if err != nil {
			return err
		}
		if err := fn(conflict); err != nil {
			return err
		}

		updated, err := newConflictRecord(conflict)
		if err != nil {
			return err
		}
		if err := tx.Save(updated).Error; err != nil {
			return types.NewError(types.ErrPersistence,
				fmt.Sprintf("failed to save conflict %s", id)).WithCause(err).WithRetryable(true)
		}
		result = conflict
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// List returns conflicts ordered by detection time, optionally filtered by
// status.
func (s *GormStore) List(ctx context.Context, status negotiation.Status) ([]*negotiation.Conflict, error) {
	query := s.db.WithContext(ctx).Order("detected_at asc, id asc")
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var records []conflictRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, types.NewError(types.ErrPersistence, "failed to list conflicts").
			WithCause(err).WithRetryable(true)
	}

	result := make([]*negotiation.Conflict, 0, len(records))
	for i := range records {
		c, err := records[i].conflict()
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}
