// Package store persists access credentials and invoice request records in sqlite.
package store

import (
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AccessCredential holds the OAuth tokens for one accounting realm.
type AccessCredential struct {
	RealmID          string `gorm:"primaryKey"`
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AccessExpired reports whether now is at or past the access expiry.
func (c *AccessCredential) AccessExpired(now time.Time) bool {
	return !now.Before(c.AccessExpiresAt)
}

// InvoiceRequest remembers which invoice a caller-supplied idempotency key produced.
type InvoiceRequest struct {
	Key             string `gorm:"primaryKey;size:128"`
	RealmID         string `gorm:"index"`
	InvoiceID       string
	RequestedNumber string
	DocNumber       string
	CreatedAt       time.Time
}

// InitDB opens the sqlite database at path and runs migrations.
func InitDB(path string, log *zap.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if log != nil && log.Core().Enabled(zap.DebugLevel) {
		level = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&AccessCredential{}, &InvoiceRequest{}); err != nil {
		return nil, err
	}
	return db, nil
}
