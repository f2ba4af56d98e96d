package llm

// Response schemas sent with strict structured-output requests.

func turnPayloadSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"npcReply":                   map[string]interface{}{"type": "string"},
			"conversationComplete":       map[string]interface{}{"type": "boolean"},
			"conversationCompleteReason": map[string]interface{}{"type": "string"},
			"summary": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]interface{}{"type": "string"},
					"riskLevel": map[string]interface{}{
						"type": "string",
						"enum": []string{"low", "medium", "high"},
					},
				},
			},
			"score": map[string]interface{}{"type": "integer"},
			"finalReport": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"overallAssessment":   map[string]interface{}{"type": "string"},
					"strengths":           stringArraySchema(),
					"areasForGrowth":      stringArraySchema(),
					"recommendedPractice": stringArraySchema(),
				},
			},
			"safetyAlerts": stringArraySchema(),
		},
		"required": []string{"npcReply", "conversationComplete"},
	}
}

func reportSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"overallAssessment":   map[string]interface{}{"type": "string"},
			"strengths":           stringArraySchema(),
			"areasForGrowth":      stringArraySchema(),
			"recommendedPractice": stringArraySchema(),
		},
		"required": []string{"overallAssessment"},
	}
}

func capsuleSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"narrativeSummary": map[string]interface{}{"type": "string"},
			"suggestedNextScenarios": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"scenarioId": map[string]interface{}{"type": "string"},
						"title":      map[string]interface{}{"type": "string"},
						"reason":     map[string]interface{}{"type": "string"},
					},
				},
			},
		},
		"required": []string{"narrativeSummary"},
	}
}

func suggestionsSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"positive": map[string]interface{}{"type": "string"},
			"negative": map[string]interface{}{"type": "string"},
		},
		"required": []string{"positive", "negative"},
	}
}

func snippetsSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"snippets": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"turnIndex":    map[string]interface{}{"type": "integer"},
						"annotation":   map[string]interface{}{"type": "string"},
						"impactReason": map[string]interface{}{"type": "string"},
					},
				},
			},
		},
		"required": []string{"snippets"},
	}
}

func stringArraySchema() map[string]interface{} {
	return map[string]interface{}{
		"type":  "array",
		"items": map[string]interface{}{"type": "string"},
	}
}
