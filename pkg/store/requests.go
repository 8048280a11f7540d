package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type RequestStore struct {
	db *gorm.DB
}

func NewRequestStore(db *gorm.DB) *RequestStore {
	return &RequestStore{db: db}
}

// Find returns the record for key, or nil when the key has not been used.
func (s *RequestStore) Find(ctx context.Context, key string) (*InvoiceRequest, error) {
	var req InvoiceRequest
	err := s.db.WithContext(ctx).First(&req, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice request %s: %w", key, err)
	}
	return &req, nil
}

// Record stores the outcome of a keyed request. A key can be recorded only once.
func (s *RequestStore) Record(ctx context.Context, req *InvoiceRequest) error {
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("record invoice request %s: %w", req.Key, err)
	}
	return nil
}

// UpdateDocNumber sets the confirmed document number after a reconciliation patch.
func (s *RequestStore) UpdateDocNumber(ctx context.Context, key, docNumber string) error {
	err := s.db.WithContext(ctx).Model(&InvoiceRequest{}).
		Where("key = ?", key).
		Update("doc_number", docNumber).Error
	if err != nil {
		return fmt.Errorf("update invoice request %s: %w", key, err)
	}
	return nil
}
