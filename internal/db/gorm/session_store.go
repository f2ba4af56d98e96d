package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parley-labs/parley/pkg/models"
)

// SessionStore handles session persistence.
type SessionStore struct {
	store *Store
}

// NewSessionStore creates a session store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{store: store}
}

// Create persists a new session. A missing ID gets a generated UUID;
// the scenario and NPC must be present.
func (s *SessionStore) Create(ctx context.Context, sess *models.Session) error {
	if sess.Scenario.Title == "" {
		return fmt.Errorf("%w: scenario title required", ErrInvalid)
	}
	if sess.NPC.Name == "" {
		return fmt.Errorf("%w: npc name required", ErrInvalid)
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Locale == "" {
		sess.Locale = "en"
	}

	row := &SessionRow{
		ID:           sess.ID,
		Scenario:     sess.Scenario,
		NPC:          sess.NPC,
		Locale:       sess.Locale,
		AllowAutoEnd: sess.AllowAutoEnd,
	}
	if err := s.store.DB.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	sess.CreatedAt = time.UnixMilli(row.CreatedAtEpoch)
	sess.UpdatedAt = time.UnixMilli(row.UpdatedAtEpoch)
	return nil
}

// Get loads a session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.GetTx(s.store.DB.WithContext(ctx), id)
}

// GetTx is Get inside a caller-supplied transaction.
func (s *SessionStore) GetTx(tx *gorm.DB, id string) (*models.Session, error) {
	var row SessionRow
	if err := tx.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sessionFromRow(&row), nil
}

// Update merges the non-nil patch fields into an existing session.
// It never creates a row: updating a missing session is ErrNotFound.
func (s *SessionStore) Update(ctx context.Context, id string, patch models.SessionPatch) error {
	return s.UpdateTx(s.store.DB.WithContext(ctx), id, patch)
}

// UpdateTx is Update inside a caller-supplied transaction.
func (s *SessionStore) UpdateTx(tx *gorm.DB, id string, patch models.SessionPatch) error {
	updates := map[string]interface{}{
		"updated_at_epoch": time.Now().UnixMilli(),
	}
	if patch.Locale != nil {
		updates["locale"] = *patch.Locale
	}
	if patch.AllowAutoEnd != nil {
		updates["allow_auto_end"] = *patch.AllowAutoEnd
	}
	if patch.LastRiskLevel != nil {
		updates["last_risk_level"] = nullString(*patch.LastRiskLevel)
	}
	if patch.LastScore != nil {
		updates["last_score"] = *patch.LastScore
	}
	if patch.CompletedAt != nil {
		updates["completed_at_epoch"] = patch.CompletedAt.UnixMilli()
	}
	if patch.CompletionReason != nil {
		updates["completion_reason"] = nullString(*patch.CompletionReason)
	}

	res := tx.Model(&SessionRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns sessions ordered newest first, up to limit.
func (s *SessionStore) List(ctx context.Context, limit int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []SessionRow
	err := s.store.DB.WithContext(ctx).
		Order("created_at_epoch DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]*models.Session, len(rows))
	for i := range rows {
		sessions[i] = sessionFromRow(&rows[i])
	}
	return sessions, nil
}
