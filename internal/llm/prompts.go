package llm

import (
	"fmt"
	"strings"

	"github.com/parley-labs/parley/pkg/models"
)

const historyCharBudget = 24000

const turnSystemPrompt = `You are the roleplay engine behind a conversation practice simulator. You play a single non-player character exactly as profiled, staying in character at all times. You also act as a silent coach: when asked for a checkpoint summary or assessment you evaluate the learner's conversational skill honestly.

Respond with a single JSON object. The "npcReply" field MUST be the first field in the object. Never output anything before or after the JSON object.`

// BuildTurnPrompt assembles the full conversation context for one
// exchange.
func BuildTurnPrompt(tc TurnContext) string {
	var sb strings.Builder

	writeScenario(&sb, tc.Session)
	writeHistory(&sb, tc.Turns)

	if tc.PlayerMessage != "" {
		sb.WriteString("<player_message>\n")
		sb.WriteString(tc.PlayerMessage)
		sb.WriteString("\n</player_message>\n\n")
	}

	sb.WriteString("<instructions>\n")
	sb.WriteString("Produce the NPC's next reply in character, as the npcReply field.\n")
	if tc.Checkpoints.SummaryDue {
		sb.WriteString("A checkpoint summary is due: include a \"summary\" object with \"text\" and \"riskLevel\" (low|medium|high) describing how the conversation is going for the learner.\n")
	}
	if tc.Checkpoints.AssessmentDue {
		sb.WriteString("An assessment is due: include an integer \"score\" from 0 to 100 rating the learner's handling of the conversation so far.\n")
	}
	if tc.AllowAutoEnd {
		sb.WriteString("If the conversation has reached a natural conclusion, set conversationComplete to true with a short conversationCompleteReason, and include a \"finalReport\" object.\n")
	} else {
		sb.WriteString("Set conversationComplete to false; the session ends only on explicit request.\n")
	}
	sb.WriteString("Report anything concerning about the learner's wellbeing in \"safetyAlerts\".\n")
	if tc.Locale != "" {
		fmt.Fprintf(&sb, "Respond in locale %q.\n", tc.Locale)
	}
	sb.WriteString("</instructions>")

	return sb.String()
}

// BuildAnalysisPrompt requests a checkpoint assessment without advancing
// the conversation.
func BuildAnalysisPrompt(tc TurnContext) string {
	var sb strings.Builder

	writeScenario(&sb, tc.Session)
	writeHistory(&sb, tc.Turns)

	sb.WriteString("<instructions>\n")
	sb.WriteString("Do NOT produce a new NPC reply; set npcReply to an empty string.\n")
	sb.WriteString("Include a \"summary\" object with \"text\" and \"riskLevel\" (low|medium|high) and an integer \"score\" from 0 to 100 assessing the learner's conversation so far.\n")
	if tc.AllowAutoEnd {
		sb.WriteString("If the conversation has clearly concluded, set conversationComplete to true with a conversationCompleteReason.\n")
	}
	if tc.Locale != "" {
		fmt.Fprintf(&sb, "Respond in locale %q.\n", tc.Locale)
	}
	sb.WriteString("</instructions>")

	return sb.String()
}

const reportSystemPrompt = `You are a conversation coach writing the final debrief of a completed practice conversation. Be specific, grounded in what the learner actually said, and constructive. Respond with a single JSON object only.`

// BuildReportPrompt assembles the final-report request.
func BuildReportPrompt(rc ReportContext) string {
	var sb strings.Builder

	writeScenario(&sb, rc.Session)
	writeHistory(&sb, rc.Turns)

	if rc.LatestSummary != nil {
		sb.WriteString("<latest_checkpoint_summary>\n")
		sb.WriteString(rc.LatestSummary.Text)
		sb.WriteString("\n</latest_checkpoint_summary>\n\n")
	}

	sb.WriteString("<instructions>\n")
	sb.WriteString("Write the final report: \"overallAssessment\" (a few sentences), \"strengths\", \"areasForGrowth\", and \"recommendedPractice\" (each an array of short concrete items).\n")
	if rc.CompletionReason != "" {
		fmt.Fprintf(&sb, "The conversation ended because: %s\n", rc.CompletionReason)
	}
	if rc.Locale != "" {
		fmt.Fprintf(&sb, "Respond in locale %q.\n", rc.Locale)
	}
	sb.WriteString("</instructions>")

	return sb.String()
}

const capsuleSystemPrompt = `You write shareable summaries of completed practice conversations for an audience that was not present. Warm, concrete, no jargon. Respond with a single JSON object only.`

// BuildCapsulePrompt assembles the shareable-summary request.
func BuildCapsulePrompt(cc CapsuleContext) string {
	var sb strings.Builder

	writeScenario(&sb, cc.Session)
	writeHistory(&sb, cc.Turns)

	if cc.FinalReport != nil {
		sb.WriteString("<final_report>\n")
		sb.WriteString(cc.FinalReport.OverallAssessment)
		sb.WriteString("\n</final_report>\n\n")
	}

	sb.WriteString("<instructions>\n")
	sb.WriteString("Write a \"narrativeSummary\" of this conversation suitable for sharing, and up to three \"suggestedNextScenarios\" ({scenarioId, title, reason}) ranked by how much they would help this learner next.\n")
	if cc.Locale != "" {
		fmt.Fprintf(&sb, "Respond in locale %q.\n", cc.Locale)
	}
	sb.WriteString("</instructions>")

	return sb.String()
}

// BuildSuggestionsPrompt asks for two candidate learner follow-ups.
func BuildSuggestionsPrompt(tc TurnContext) string {
	var sb strings.Builder

	writeScenario(&sb, tc.Session)
	writeHistory(&sb, tc.Turns)

	sb.WriteString("<instructions>\n")
	sb.WriteString("Suggest two things the learner could say next. \"positive\" should be a constructive, skillful reply; \"negative\" should be a tempting but counterproductive one, for contrast. Both must be in the learner's voice, one or two sentences each.\n")
	if tc.Locale != "" {
		fmt.Fprintf(&sb, "Respond in locale %q.\n", tc.Locale)
	}
	sb.WriteString("</instructions>")

	return sb.String()
}

// BuildSnippetsPrompt asks for annotated turn excerpts.
func BuildSnippetsPrompt(cc CapsuleContext) string {
	var sb strings.Builder

	writeScenario(&sb, cc.Session)
	writeHistory(&sb, cc.Turns)

	sb.WriteString("<instructions>\n")
	sb.WriteString("Pick up to four pivotal turns from the conversation. For each, output {turnIndex, annotation, impactReason}: what the moment shows and why it mattered. Reference turns by their turnIndex from the history.\n")
	if cc.Locale != "" {
		fmt.Fprintf(&sb, "Respond in locale %q.\n", cc.Locale)
	}
	sb.WriteString("</instructions>")

	return sb.String()
}

func writeScenario(sb *strings.Builder, session *models.Session) {
	sc := session.Scenario
	npc := session.NPC

	sb.WriteString("<scenario>\n")
	fmt.Fprintf(sb, "  <title>%s</title>\n", sc.Title)
	fmt.Fprintf(sb, "  <setting>%s</setting>\n", sc.Setting)
	if sc.TensionLevel != "" {
		fmt.Fprintf(sb, "  <tension>%s</tension>\n", sc.TensionLevel)
	}
	for _, obj := range sc.LearningObjectives {
		fmt.Fprintf(sb, "  <objective>%s</objective>\n", obj)
	}
	for _, fact := range sc.SupportingFacts {
		fmt.Fprintf(sb, "  <fact>%s</fact>\n", fact)
	}
	sb.WriteString("</scenario>\n\n")

	sb.WriteString("<character>\n")
	fmt.Fprintf(sb, "  <name>%s</name>\n", npc.Name)
	fmt.Fprintf(sb, "  <role>%s</role>\n", npc.Role)
	fmt.Fprintf(sb, "  <persona>%s</persona>\n", npc.Persona)
	for _, g := range npc.Goals {
		fmt.Fprintf(sb, "  <goal>%s</goal>\n", g)
	}
	for _, t := range npc.Tactics {
		fmt.Fprintf(sb, "  <tactic>%s</tactic>\n", t)
	}
	for _, b := range npc.Boundaries {
		fmt.Fprintf(sb, "  <boundary>%s</boundary>\n", b)
	}
	sb.WriteString("</character>\n\n")
}

// writeHistory writes the ordered turn history, trimming oldest turns
// first when the character budget is exceeded.
func writeHistory(sb *strings.Builder, turns []models.Turn) {
	if len(turns) == 0 {
		return
	}

	total := 0
	start := 0
	for i := len(turns) - 1; i >= 0; i-- {
		total += len(turns[i].Content)
		if total > historyCharBudget {
			start = i + 1
			break
		}
	}

	sb.WriteString("<history>\n")
	if start > 0 {
		fmt.Fprintf(sb, "  <omitted count=\"%d\"/>\n", start)
	}
	for _, turn := range turns[start:] {
		fmt.Fprintf(sb, "  <turn index=\"%d\" role=\"%s\">%s</turn>\n", turn.TurnIndex, turn.Role, turn.Content)
	}
	sb.WriteString("</history>\n\n")
}
