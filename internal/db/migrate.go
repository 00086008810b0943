package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ideaspark/ideaspark/internal/models"
	internalsettings "github.com/ideaspark/ideaspark/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	log.WithField("dialect", DialectName(conn)).Debug("db: running migrations")

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.UsageRecord{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errSeed := ensureDailyLimitSetting(conn); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureRateLimitSetting(conn); errSeed != nil {
		return errSeed
	}

	// Postgres additionally gets pattern ops for prefix email lookups.
	emailIndexSQL := `
		CREATE INDEX IF NOT EXISTS idx_users_email_lower
		ON users (LOWER(email) text_pattern_ops)
	`
	if IsSQLite(conn) {
		emailIndexSQL = `
			CREATE INDEX IF NOT EXISTS idx_users_email_lower
			ON users (LOWER(email))
		`
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_usage_tracking_ip_date",
			sql: `
				CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_tracking_ip_date
				ON usage_tracking (ip_address, usage_date)
			`,
		},
		{
			name: "idx_users_email_lower",
			sql:  emailIndexSQL,
		},
		{
			name: "idx_usage_tracking_updated_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_usage_tracking_updated_at
				ON usage_tracking (updated_at DESC)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}

// ensureDailyLimitSetting ensures DAILY_FREE_LIMIT exists with defaults.
func ensureDailyLimitSetting(conn *gorm.DB) error {
	return ensureIntSetting(conn, internalsettings.DailyFreeLimitKey, internalsettings.DefaultDailyFreeLimit)
}

// ensureRateLimitSetting ensures RATE_LIMIT exists with defaults.
func ensureRateLimitSetting(conn *gorm.DB) error {
	return ensureIntSetting(conn, internalsettings.RateLimitKey, internalsettings.DefaultRateLimit)
}

// ensureIntSetting ensures an integer setting exists and defaults when empty.
func ensureIntSetting(conn *gorm.DB, key string, value int) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	rawValue := datatypes.JSON(payload)

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     rawValue,
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
