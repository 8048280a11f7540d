package store

import (
	"context"
	"errors"
	"fmt"

	"ledger_bridge/pkg/apperr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialStore reads and writes AccessCredential rows. Rows are never deleted here.
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Get returns the credential for realmID, or an error wrapping apperr.ErrCredentialNotFound.
func (s *CredentialStore) Get(ctx context.Context, realmID string) (*AccessCredential, error) {
	var cred AccessCredential
	err := s.db.WithContext(ctx).First(&cred, "realm_id = ?", realmID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("realm %s: %w", realmID, apperr.ErrCredentialNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential for realm %s: %w", realmID, err)
	}
	return &cred, nil
}

// Save inserts the credential or replaces the tokens of the existing row for the realm.
func (s *CredentialStore) Save(ctx context.Context, cred *AccessCredential) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "realm_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "access_expires_at", "refresh_expires_at", "updated_at",
		}),
	}).Create(cred).Error
	if err != nil {
		return fmt.Errorf("save credential for realm %s: %w", cred.RealmID, err)
	}
	return nil
}

func (s *CredentialStore) List(ctx context.Context) ([]AccessCredential, error) {
	var creds []AccessCredential
	if err := s.db.WithContext(ctx).Order("realm_id").Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}
