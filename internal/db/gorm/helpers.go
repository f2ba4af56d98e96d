package gorm

import (
	"database/sql"
	"time"

	"github.com/goccy/go-json"

	"github.com/parley-labs/parley/pkg/models"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullIntPtr(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func epochPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64)
	return &t
}

func sessionFromRow(row *SessionRow) *models.Session {
	return &models.Session{
		ID:               row.ID,
		Scenario:         row.Scenario,
		NPC:              row.NPC,
		Locale:           row.Locale,
		AllowAutoEnd:     row.AllowAutoEnd,
		LastRiskLevel:    row.LastRiskLevel.String,
		LastScore:        intPtr(row.LastScore),
		CreatedAt:        time.UnixMilli(row.CreatedAtEpoch),
		UpdatedAt:        time.UnixMilli(row.UpdatedAtEpoch),
		CompletedAt:      epochPtr(row.CompletedAtEpoch),
		CompletionReason: row.CompletionReason.String,
	}
}

func turnFromRow(row *TurnRow) models.Turn {
	return models.Turn{
		SessionID: row.SessionID,
		TurnIndex: row.TurnIndex,
		Role:      models.Role(row.Role),
		Content:   row.Content,
		CreatedAt: time.UnixMilli(row.CreatedAtEpoch),
	}
}

func analysisFromRow(row *AnalysisRow) (*models.AnalysisRecord, error) {
	rec := &models.AnalysisRecord{
		SessionID:                  row.SessionID,
		PlayerTurnCount:            row.PlayerTurnCount,
		SummaryDue:                 row.SummaryDue,
		AssessmentDue:              row.AssessmentDue,
		NPCReply:                   row.NPCReply,
		Score:                      intPtr(row.Score),
		SafetyAlerts:               row.SafetyAlerts,
		ConversationComplete:       row.ConversationComplete,
		ConversationCompleteReason: row.ConversationCompleteReason.String,
		RawBackendResponse:         row.RawBackendResponse,
		CreatedAt:                  time.UnixMilli(row.CreatedAtEpoch),
	}
	if row.SummaryText.Valid {
		rec.Summary = &models.Summary{
			Text:      row.SummaryText.String,
			RiskLevel: row.SummaryRisk.String,
		}
	}
	if row.FinalReportJSON.Valid {
		rec.FinalReportRaw = row.FinalReportJSON.String
		var report models.FinalReport
		if err := json.Unmarshal([]byte(row.FinalReportJSON.String), &report); err != nil {
			return nil, err
		}
		rec.FinalReport = &report
	}
	return rec, nil
}

func analysisToRow(rec *models.AnalysisRecord) *AnalysisRow {
	row := &AnalysisRow{
		SessionID:                  rec.SessionID,
		PlayerTurnCount:            rec.PlayerTurnCount,
		SummaryDue:                 rec.SummaryDue,
		AssessmentDue:              rec.AssessmentDue,
		NPCReply:                   rec.NPCReply,
		Score:                      nullIntPtr(rec.Score),
		SafetyAlerts:               rec.SafetyAlerts,
		ConversationComplete:       rec.ConversationComplete,
		ConversationCompleteReason: nullString(rec.ConversationCompleteReason),
		RawBackendResponse:         rec.RawBackendResponse,
	}
	if rec.Summary != nil {
		row.SummaryText = nullString(rec.Summary.Text)
		row.SummaryRisk = nullString(rec.Summary.RiskLevel)
	}
	if rec.FinalReportRaw != "" {
		row.FinalReportJSON = nullString(rec.FinalReportRaw)
	}
	return row
}
