package gorm

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parley-labs/parley/pkg/models"
)

// AnalysisStore handles checkpoint assessment records.
type AnalysisStore struct {
	store *Store
}

// NewAnalysisStore creates an analysis store.
func NewAnalysisStore(store *Store) *AnalysisStore {
	return &AnalysisStore{store: store}
}

// UpsertTx writes the assessment state for one (session, player turn
// count) checkpoint, replacing any earlier record for the same key.
func (s *AnalysisStore) UpsertTx(tx *gorm.DB, rec *models.AnalysisRecord) error {
	row := analysisToRow(rec)
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}, {Name: "player_turn_count"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"summary_due", "assessment_due", "npc_reply",
			"summary_text", "summary_risk", "score",
			"final_report_json", "safety_alerts",
			"conversation_complete", "conversation_complete_reason",
			"raw_backend_response", "created_at_epoch",
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

// Upsert writes one checkpoint record outside a transaction.
func (s *AnalysisStore) Upsert(ctx context.Context, rec *models.AnalysisRecord) error {
	return s.UpsertTx(s.store.DB.WithContext(ctx), rec)
}

// Get loads the record for a specific player turn count.
func (s *AnalysisStore) Get(ctx context.Context, sessionID string, playerTurnCount int) (*models.AnalysisRecord, error) {
	var row AnalysisRow
	err := s.store.DB.WithContext(ctx).
		Where("session_id = ? AND player_turn_count = ?", sessionID, playerTurnCount).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	if row.SessionID == "" {
		return nil, ErrNotFound
	}
	return analysisFromRow(&row)
}

// Latest loads the most recent checkpoint record for a session.
func (s *AnalysisStore) Latest(ctx context.Context, sessionID string) (*models.AnalysisRecord, error) {
	return s.LatestTx(s.store.DB.WithContext(ctx), sessionID)
}

// LatestTx is Latest inside a caller-supplied transaction.
func (s *AnalysisStore) LatestTx(tx *gorm.DB, sessionID string) (*models.AnalysisRecord, error) {
	var row AnalysisRow
	err := tx.Where("session_id = ?", sessionID).
		Order("player_turn_count DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, fmt.Errorf("latest analysis: %w", err)
	}
	if row.SessionID == "" {
		return nil, ErrNotFound
	}
	return analysisFromRow(&row)
}

// LatestReport returns the most recent record carrying a final report,
// or ErrNotFound when the session has never been finalized.
func (s *AnalysisStore) LatestReport(ctx context.Context, sessionID string) (*models.AnalysisRecord, error) {
	var row AnalysisRow
	err := s.store.DB.WithContext(ctx).
		Where("session_id = ? AND final_report_json IS NOT NULL", sessionID).
		Order("player_turn_count DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, fmt.Errorf("latest report: %w", err)
	}
	if row.SessionID == "" {
		return nil, ErrNotFound
	}
	return analysisFromRow(&row)
}
