package models

import "time"

// User represents an end-user account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    string `gorm:"type:text;not null;uniqueIndex"` // Unique sign-in email, stored as given.
	Password string `gorm:"type:text;not null"`             // Hashed password.
	FullName string `gorm:"type:text"`                      // Optional display name.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
