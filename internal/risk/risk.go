// Package risk scores content for moderation. Scoring is deterministic and
// rule-based: the same input and user-history snapshot always produce the
// same score. The analyzer never returns an error — malformed input degrades
// to a conservative zero-score result with a warning instead.
package risk

// FactorType categorizes one detected kind of problematic content.
type FactorType string

const (
	FactorProfanity            FactorType = "profanity"
	FactorSpam                 FactorType = "spam"
	FactorSuspiciousPatterns   FactorType = "suspicious_patterns"
	FactorInappropriateContent FactorType = "inappropriate_content"
	FactorPolicyViolation      FactorType = "policy_violation"
)

// Severity grades a risk factor.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Factor is one detected category of problematic content.
type Factor struct {
	Type        FactorType `json:"type"`
	Severity    Severity   `json:"severity"`
	Score       float64    `json:"score"`
	Description string     `json:"description"`
}

// Score is the immutable result of one analysis call. A new score requires
// a new analysis.
type Score struct {
	OverallScore float64  `json:"overall_score"` // 0-100
	Factors      []Factor `json:"factors"`
	Confidence   float64  `json:"confidence"` // 0.0-1.0
	AutoFlag     bool     `json:"auto_flag"`
	Degraded     bool     `json:"degraded,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Auto-flag policy thresholds. Very bad content is flagged even on weak
// confidence; moderate content requires strong corroboration.
const (
	autoFlagScoreAlways   = 85
	autoFlagScoreHigh     = 70
	autoFlagConfHigh      = 0.75
	autoFlagScoreModerate = 50
	autoFlagConfModerate  = 0.90
)

// ShouldAutoFlag decides whether a score/confidence pair warrants placing
// the content into the moderation queue without a human flagger.
func ShouldAutoFlag(score, confidence float64) bool {
	switch {
	case score >= autoFlagScoreAlways:
		return true
	case score >= autoFlagScoreHigh && confidence >= autoFlagConfHigh:
		return true
	case score >= autoFlagScoreModerate && confidence >= autoFlagConfModerate:
		return true
	default:
		return false
	}
}
