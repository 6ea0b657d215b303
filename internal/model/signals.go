package model

// IntentSignals is a persona handler's read on where the conversation wants
// to go. Ephemeral: produced and consumed within one event's processing.
type IntentSignals struct {
	// Scores maps target persona to a confidence in [0,1].
	Scores map[Persona]float64 `json:"scores"`
	// MatchedPhrases records the trigger phrases behind the scores, for
	// audit and debugging only. Never used in routing decisions.
	MatchedPhrases []string `json:"matched_phrases,omitempty"`
	// Engagement is the handler's overall engagement score in [0,1],
	// consumed by the temperature classifier.
	Engagement float64 `json:"engagement"`
}

// Score returns the confidence for target, zero when absent.
func (s IntentSignals) Score(target Persona) float64 {
	return s.Scores[target]
}
