package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrSinkClosed is returned by sinks after Close.
var ErrSinkClosed = errors.New("audit sink is closed")

// auditRecord is the gorm row for one audit event. Payload is serialized
// JSON so the table stays driver-agnostic.
type auditRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	ConflictID string    `gorm:"index;size:64;not null"`
	AttemptID  string    `gorm:"index;size:64"`
	Actor      string    `gorm:"size:128"`
	Action     string    `gorm:"size:128"`
	Payload    string    `gorm:"type:text"`
	Timestamp  time.Time `gorm:"index"`
}

func (auditRecord) TableName() string { return "audit_events" }

// GormSink persists audit events through gorm. Rows are insert-only.
type GormSink struct {
	db *gorm.DB
}

// NewGormSink creates a database-backed audit sink and migrates its table.
func NewGormSink(db *gorm.DB) (*GormSink, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if err := db.AutoMigrate(&auditRecord{}); err != nil {
		return nil, fmt.Errorf("migrate audit_events: %w", err)
	}
	return &GormSink{db: db}, nil
}

// Record implements Sink.
func (s *GormSink) Record(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload := ""
	if event.Payload != nil {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		payload = string(raw)
	}
	rec := auditRecord{
		ConflictID: event.ConflictID,
		AttemptID:  event.AttemptID,
		Actor:      event.Actor,
		Action:     event.Action,
		Payload:    payload,
		Timestamp:  event.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ByConflict returns all events for a conflict in append order.
func (s *GormSink) ByConflict(ctx context.Context, conflictID string) ([]Event, error) {
	var rows []auditRecord
	if err := s.db.WithContext(ctx).
		Where("conflict_id = ?", conflictID).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		ev := Event{
			ConflictID: r.ConflictID,
			AttemptID:  r.AttemptID,
			Actor:      r.Actor,
			Action:     r.Action,
			Timestamp:  r.Timestamp,
		}
		if r.Payload != "" {
			var payload map[string]any
			if err := json.Unmarshal([]byte(r.Payload), &payload); err == nil {
				ev.Payload = payload
			}
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close implements Sink. The caller owns the underlying connection.
func (s *GormSink) Close() error { return nil }
