package gorm

import (
	"context"
	"fmt"
	"time"

	"github.com/parley-labs/parley/pkg/models"
)

// CapsuleStore handles shareable session capsules.
type CapsuleStore struct {
	store *Store
}

// NewCapsuleStore creates a capsule store.
func NewCapsuleStore(store *Store) *CapsuleStore {
	return &CapsuleStore{store: store}
}

// Create persists a capsule with its share token.
func (s *CapsuleStore) Create(ctx context.Context, row *CapsuleRow) error {
	if row.SessionID == "" || row.ShareToken == "" {
		return fmt.Errorf("%w: session id and share token required", ErrInvalid)
	}
	if err := s.store.DB.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create capsule: %w", err)
	}
	return nil
}

// Latest returns the newest capsule row for a session.
func (s *CapsuleStore) Latest(ctx context.Context, sessionID string) (*CapsuleRow, error) {
	var row CapsuleRow
	err := s.store.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at_epoch DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, fmt.Errorf("latest capsule: %w", err)
	}
	if row.SessionID == "" {
		return nil, ErrNotFound
	}
	return &row, nil
}

// Capsule converts the row to its API shape. The share URL is supplied
// by the caller, which knows the public base URL.
func (r *CapsuleRow) Capsule(shareURL string) *models.Capsule {
	return &models.Capsule{
		SessionID:              r.SessionID,
		ShareURL:               shareURL,
		NarrativeSummary:       r.NarrativeSummary,
		SuggestedNextScenarios: r.SuggestedScenarios,
		ExpiresAt:              time.UnixMilli(r.ExpiresAtEpoch),
		CreatedAt:              time.UnixMilli(r.CreatedAtEpoch),
	}
}

// GetByToken returns the capsule for a share token.
func (s *CapsuleStore) GetByToken(ctx context.Context, token string) (*CapsuleRow, error) {
	var row CapsuleRow
	err := s.store.DB.WithContext(ctx).
		Where("share_token = ?", token).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, fmt.Errorf("get capsule: %w", err)
	}
	if row.SessionID == "" {
		return nil, ErrNotFound
	}
	return &row, nil
}
