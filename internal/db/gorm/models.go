package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/parley-labs/parley/pkg/models"
)

// GORM row models. JSON-backed column types (models.Scenario,
// models.NPCProfile, models.StringArray, models.SuggestedScenarioList)
// implement sql.Scanner and driver.Valuer.

// SessionRow is one simulated conversation with its denormalized status.
type SessionRow struct {
	ID               string               `gorm:"primaryKey"`
	Scenario         models.Scenario      `gorm:"type:text;not null"`
	NPC              models.NPCProfile    `gorm:"type:text;not null"`
	Locale           string               `gorm:"not null;default:'en'"`
	AllowAutoEnd     bool                 `gorm:"not null;default:false"`
	LastRiskLevel    sql.NullString       `gorm:"type:text"`
	LastScore        sql.NullInt64        ``
	CreatedAtEpoch   int64                `gorm:"index:idx_sessions_created,sort:desc;not null"`
	UpdatedAtEpoch   int64                `gorm:"not null"`
	CompletedAtEpoch sql.NullInt64        ``
	CompletionReason sql.NullString       `gorm:"type:text"`
}

func (SessionRow) TableName() string { return "sessions" }

// BeforeCreate hook to ensure timestamps are set.
func (s *SessionRow) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UnixMilli()
	if s.CreatedAtEpoch == 0 {
		s.CreatedAtEpoch = now
	}
	if s.UpdatedAtEpoch == 0 {
		s.UpdatedAtEpoch = now
	}
	return nil
}

// TurnRow is one message in the append-only turn log. The unique index
// on (session_id, turn_index) is the idempotency backstop for retried
// appends.
type TurnRow struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	SessionID      string `gorm:"uniqueIndex:idx_turns_session_index,priority:1;not null"`
	TurnIndex      int    `gorm:"uniqueIndex:idx_turns_session_index,priority:2;not null"`
	Role           string `gorm:"type:text;check:role IN ('player', 'npc');not null"`
	Content        string `gorm:"type:text;not null"`
	CreatedAtEpoch int64  `gorm:"not null"`
}

func (TurnRow) TableName() string { return "turns" }

func (t *TurnRow) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAtEpoch == 0 {
		t.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}

// AnalysisRow is the stored assessment state for one checkpoint. The
// unique index on (session_id, player_turn_count) carries the
// insert-or-replace semantics.
type AnalysisRow struct {
	ID                         int64              `gorm:"primaryKey;autoIncrement"`
	SessionID                  string             `gorm:"uniqueIndex:idx_analysis_session_count,priority:1;not null"`
	PlayerTurnCount            int                `gorm:"uniqueIndex:idx_analysis_session_count,priority:2;not null"`
	SummaryDue                 bool               `gorm:"not null;default:false"`
	AssessmentDue              bool               `gorm:"not null;default:false"`
	NPCReply                   string             `gorm:"type:text"`
	SummaryText                sql.NullString     `gorm:"type:text"`
	SummaryRisk                sql.NullString     `gorm:"type:text"`
	Score                      sql.NullInt64      ``
	FinalReportJSON            sql.NullString     `gorm:"type:text"`
	SafetyAlerts               models.StringArray `gorm:"type:text"`
	ConversationComplete       bool               `gorm:"not null;default:false"`
	ConversationCompleteReason sql.NullString     `gorm:"type:text"`
	RawBackendResponse         string             `gorm:"type:text"`
	CreatedAtEpoch             int64              `gorm:"not null"`
}

func (AnalysisRow) TableName() string { return "analysis_records" }

func (a *AnalysisRow) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAtEpoch == 0 {
		a.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}

// CapsuleRow is a shareable summary of a completed session.
type CapsuleRow struct {
	ID                 int64                        `gorm:"primaryKey;autoIncrement"`
	SessionID          string                       `gorm:"index;not null"`
	ShareToken         string                       `gorm:"uniqueIndex;not null"`
	NarrativeSummary   string                       `gorm:"type:text;not null"`
	SuggestedScenarios models.SuggestedScenarioList `gorm:"type:text"`
	ExpiresAtEpoch     int64                        `gorm:"not null"`
	CreatedAtEpoch     int64                        `gorm:"not null"`
}

func (CapsuleRow) TableName() string { return "capsules" }

func (c *CapsuleRow) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedAtEpoch == 0 {
		c.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}
