package gorm

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parley-labs/parley/pkg/models"
)

// TurnStore handles the append-only turn log.
type TurnStore struct {
	store *Store
}

// NewTurnStore creates a turn store.
func NewTurnStore(store *Store) *TurnStore {
	return &TurnStore{store: store}
}

// AppendPairTx inserts a player turn and its NPC reply at fixed indices.
// ON CONFLICT DO NOTHING against the (session_id, turn_index) unique
// index makes a retried append a no-op instead of a duplicate pair.
func (s *TurnStore) AppendPairTx(tx *gorm.DB, player, npc models.Turn) error {
	rows := []TurnRow{
		{
			SessionID: player.SessionID,
			TurnIndex: player.TurnIndex,
			Role:      string(player.Role),
			Content:   player.Content,
		},
		{
			SessionID: npc.SessionID,
			TurnIndex: npc.TurnIndex,
			Role:      string(npc.Role),
			Content:   npc.Content,
		},
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "turn_index"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("append turn pair: %w", err)
	}
	return nil
}

// List returns all turns for a session in log order.
func (s *TurnStore) List(ctx context.Context, sessionID string) ([]models.Turn, error) {
	return s.ListTx(s.store.DB.WithContext(ctx), sessionID)
}

// ListTx is List inside a caller-supplied transaction.
func (s *TurnStore) ListTx(tx *gorm.DB, sessionID string) ([]models.Turn, error) {
	var rows []TurnRow
	err := tx.Where("session_id = ?", sessionID).
		Order("turn_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	turns := make([]models.Turn, len(rows))
	for i := range rows {
		turns[i] = turnFromRow(&rows[i])
	}
	return turns, nil
}

// PlayerTurnCount returns how many player turns the session has.
func (s *TurnStore) PlayerTurnCount(ctx context.Context, sessionID string) (int, error) {
	return s.PlayerTurnCountTx(s.store.DB.WithContext(ctx), sessionID)
}

// PlayerTurnCountTx is PlayerTurnCount inside a caller-supplied transaction.
func (s *TurnStore) PlayerTurnCountTx(tx *gorm.DB, sessionID string) (int, error) {
	var count int64
	err := tx.Model(&TurnRow{}).
		Where("session_id = ? AND role = ?", sessionID, string(models.RolePlayer)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count player turns: %w", err)
	}
	return int(count), nil
}

// LatestNPCTurnIndex returns the index of the most recent NPC turn, or
// -1 when the NPC has not spoken yet.
func (s *TurnStore) LatestNPCTurnIndex(ctx context.Context, sessionID string) (int, error) {
	var row TurnRow
	err := s.store.DB.WithContext(ctx).
		Where("session_id = ? AND role = ?", sessionID, string(models.RoleNPC)).
		Order("turn_index DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return -1, fmt.Errorf("latest npc turn index: %w", err)
	}
	if row.SessionID == "" {
		return -1, nil
	}
	return row.TurnIndex, nil
}
