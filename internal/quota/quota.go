// Package quota gates anonymous content generation by source IP and
// calendar date. Authenticated callers bypass the gate entirely.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ideaspark/ideaspark/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrLimitExceeded indicates the daily free quota is used up.
var ErrLimitExceeded = errors.New("quota: daily limit exceeded")

// DateUTC formats a time as the UTC calendar date used as the usage key.
func DateUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Tracker reads and updates per-IP daily usage counters.
type Tracker struct {
	db *gorm.DB
}

// NewTracker constructs a Tracker backed by GORM.
func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// Count returns the generation count for an IP on a date, 0 when unseen.
func (t *Tracker) Count(ctx context.Context, ip, date string) (int, error) {
	if t == nil || t.db == nil {
		return 0, fmt.Errorf("quota: not initialized")
	}
	var record models.UsageRecord
	errFind := t.db.WithContext(ctx).
		Where("ip_address = ? AND usage_date = ?", ip, date).
		First(&record).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("quota: read usage: %w", errFind)
	}
	return record.GenerationCount, nil
}

// Allow checks the counter against the limit without mutating it.
// The caller records usage separately, after the generation succeeds,
// so a failed provider call never consumes quota. Two concurrent
// requests can both pass this check; the limit is soft.
func (t *Tracker) Allow(ctx context.Context, ip, date string, limit int) error {
	if limit <= 0 {
		return ErrLimitExceeded
	}
	count, err := t.Count(ctx, ip, date)
	if err != nil {
		return err
	}
	if count >= limit {
		return ErrLimitExceeded
	}
	return nil
}

// Record increments the counter for an IP and date by one, creating the
// row on first use. The increment is a single upsert, atomic under the
// unique (ip_address, usage_date) index.
func (t *Tracker) Record(ctx context.Context, ip, date string) error {
	if t == nil || t.db == nil {
		return fmt.Errorf("quota: not initialized")
	}
	ip = strings.TrimSpace(ip)
	if ip == "" || strings.TrimSpace(date) == "" {
		return fmt.Errorf("quota: missing ip or date")
	}

	now := time.Now().UTC()
	record := models.UsageRecord{
		IPAddress:       ip,
		UsageDate:       date,
		GenerationCount: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	errCreate := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip_address"}, {Name: "usage_date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"generation_count": gorm.Expr("generation_count + 1"),
			"updated_at":       now,
		}),
	}).Create(&record).Error
	if errCreate != nil {
		return fmt.Errorf("quota: record usage: %w", errCreate)
	}
	return nil
}
