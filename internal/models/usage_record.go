package models

import "time"

// UsageRecord counts anonymous generations for one IP on one calendar date.
// At most one row exists per (ip_address, usage_date) pair.
type UsageRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	IPAddress string `gorm:"type:varchar(45);not null;uniqueIndex:idx_usage_tracking_ip_date"` // Source IP, IPv4 or IPv6.
	UsageDate string `gorm:"type:varchar(10);not null;uniqueIndex:idx_usage_tracking_ip_date"` // UTC date, YYYY-MM-DD.

	GenerationCount int `gorm:"not null;default:0"` // Accepted generations on that date.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last increment timestamp.
}

// TableName keeps the historical table name.
func (UsageRecord) TableName() string { return "usage_tracking" }
