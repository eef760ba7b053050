package risk

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/captjreacher/pimp-my-brand/internal/content"
)

// Detection thresholds and score weights. Chosen so that a single weak
// signal stays well under the auto-flag tiers while corroborating signals
// compound. Factor scores are additive and the total is clamped to 100.
const (
	// minCorpusLength is the rune count under which content is too short
	// to evaluate and gets flagged conservatively.
	minCorpusLength = 20

	profanityScorePerMatch = 12
	profanityScoreCap      = 36

	spamScorePerSignal = 10
	spamScoreCap       = 40
	spamSignalFloor    = 2    // factor requires at least this many signals
	spamCapsRatio      = 0.3  // uppercase share of letters
	spamCapsMinLetters = 12   // caps ratio is noise on tiny corpora
	spamExclaimDensity = 0.05 // '!' share of all characters

	suspiciousScorePerMatch = 18
	suspiciousScoreCap      = 45

	shortContentScore = 10

	historyFlagFloor       = 2 // previous flags must exceed this
	historyScorePerFlag    = 8
	historyScoreCap        = 30
	historyHighSeverity    = 5 // more previous flags than this is high severity
	newAccountAgeDays      = 30
	velocityPostsPerDay    = 2.0
	newAccountVolumeScore  = 15
)

// Confidence model: more text and more corroborating factors raise
// confidence. A factor-free corpus of at least 200 runes lands above 0.5,
// so clean long-form content is confidently clean.
const (
	confidenceBase          = 0.40
	confidenceLengthWeight  = 0.35
	confidenceLengthSat     = 600 // runes at which the length term saturates
	confidencePerFactor     = 0.05
	confidenceFactorCeiling = 5
)

// Analyzer scores content for moderation risk. It owns no state; construct
// one at startup and share it freely.
type Analyzer struct{}

// NewAnalyzer returns a ready Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze runs every detector over the flattened text of the input and
// returns a complete, immutable Score. It never returns an error: if text
// extraction fails the result is degraded (zero factors, zero score, no
// auto-flag) and carries a warning so callers can route to manual review.
func (a *Analyzer) Analyze(input content.AnalysisInput) Score {
	corpus, err := buildCorpus(input)
	if err != nil {
		log.Warn().Err(err).Str("user_id", input.UserID).Msg("risk: text extraction failed, degrading analysis")
		return Score{
			Degraded: true,
			Warnings: []string{"text extraction failed: " + err.Error()},
		}
	}

	lowered := strings.ToLower(corpus)
	tokens := tokenize(lowered)

	var factors []Factor
	for _, detect := range []func() *Factor{
		func() *Factor { return detectProfanity(tokens) },
		func() *Factor { return detectSpam(lowered, corpus) },
		func() *Factor { return detectSuspicious(tokens) },
		func() *Factor { return detectShortContent(lowered) },
	} {
		if f := detect(); f != nil {
			factors = append(factors, *f)
		}
	}
	factors = append(factors, historyFactors(input.History)...)

	var total float64
	for _, f := range factors {
		total += f.Score
	}
	total = clamp(total, 0, 100)

	confidence := confidenceFor(utf8.RuneCountInString(lowered), len(factors))

	return Score{
		OverallScore: total,
		Factors:      factors,
		Confidence:   confidence,
		AutoFlag:     ShouldAutoFlag(total, confidence),
	}
}

// buildCorpus flattens the title, description, and every textual field of
// the content variant into one whitespace-joined string.
func buildCorpus(input content.AnalysisInput) (string, error) {
	parts := []string{input.Title, input.Description}
	if input.Data != nil {
		dataParts, err := input.Data.TextParts()
		if err != nil {
			return "", err
		}
		parts = append(parts, dataParts...)
	}

	nonEmpty := parts[:0]
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, " "), nil
}

func tokenize(lowered string) []string {
	return strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func countTokenMatches(tokens, terms []string) int {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	n := 0
	for _, tok := range tokens {
		if _, ok := set[tok]; ok {
			n++
		}
	}
	return n
}

func detectProfanity(tokens []string) *Factor {
	matches := countTokenMatches(tokens, profanityTerms)
	if matches == 0 {
		return nil
	}
	return &Factor{
		Type:        FactorProfanity,
		Severity:    SeverityMedium,
		Score:       clamp(float64(matches*profanityScorePerMatch), 0, profanityScoreCap),
		Description: plural(matches, "profane term"),
	}
}

func detectSpam(lowered, original string) *Factor {
	signals := 0
	for _, phrase := range spamPhrases {
		signals += strings.Count(lowered, phrase)
	}

	letters, uppers := 0, 0
	for _, r := range original {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
	}
	if letters >= spamCapsMinLetters && float64(uppers)/float64(letters) > spamCapsRatio {
		signals++
	}
	if len(original) > 0 && float64(strings.Count(original, "!"))/float64(len(original)) > spamExclaimDensity {
		signals++
	}

	if signals < spamSignalFloor {
		return nil
	}

	severity := SeverityMedium
	if signals >= 5 {
		severity = SeverityHigh
	}
	return &Factor{
		Type:        FactorSpam,
		Severity:    severity,
		Score:       clamp(float64(signals*spamScorePerSignal), 0, spamScoreCap),
		Description: plural(signals, "promotional signal"),
	}
}

func detectSuspicious(tokens []string) *Factor {
	matches := countTokenMatches(tokens, suspiciousTerms)
	if matches == 0 {
		return nil
	}
	return &Factor{
		Type:        FactorSuspiciousPatterns,
		Severity:    SeverityHigh,
		Score:       clamp(float64(matches*suspiciousScorePerMatch), 0, suspiciousScoreCap),
		Description: plural(matches, "suspicious term"),
	}
}

func detectShortContent(lowered string) *Factor {
	if utf8.RuneCountInString(strings.TrimSpace(lowered)) >= minCorpusLength {
		return nil
	}
	return &Factor{
		Type:        FactorInappropriateContent,
		Severity:    SeverityLow,
		Score:       shortContentScore,
		Description: "content too short to evaluate",
	}
}

// historyFactors applies the user-history heuristics: a repeat-flag record
// is a policy violation on its own, and combined with a young or unusually
// prolific account it also reads as suspicious.
func historyFactors(h *content.UserHistory) []Factor {
	if h == nil || h.PreviousFlags <= historyFlagFloor {
		return nil
	}

	severity := SeverityMedium
	if h.PreviousFlags > historyHighSeverity {
		severity = SeverityHigh
	}
	factors := []Factor{{
		Type:        FactorPolicyViolation,
		Severity:    severity,
		Score:       clamp(float64(h.PreviousFlags*historyScorePerFlag), 0, historyScoreCap),
		Description: plural(h.PreviousFlags, "previous moderation flag"),
	}}

	ageDays := h.AccountAgeDays
	if ageDays < 1 {
		ageDays = 1
	}
	velocity := float64(h.ContentCount) / float64(ageDays)
	if h.AccountAgeDays < newAccountAgeDays || velocity > velocityPostsPerDay {
		factors = append(factors, Factor{
			Type:        FactorSuspiciousPatterns,
			Severity:    SeverityMedium,
			Score:       newAccountVolumeScore,
			Description: "repeat flags on a new or high-volume account",
		})
	}

	return factors
}

func confidenceFor(corpusLen, factorCount int) float64 {
	lengthTerm := float64(corpusLen) / confidenceLengthSat
	if lengthTerm > 1 {
		lengthTerm = 1
	}
	if factorCount > confidenceFactorCeiling {
		factorCount = confidenceFactorCeiling
	}
	c := confidenceBase + confidenceLengthWeight*lengthTerm + confidencePerFactor*float64(factorCount)
	return clamp(c, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func plural(n int, noun string) string {
	if n == 1 {
		return "detected 1 " + noun
	}
	return fmt.Sprintf("detected %d %ss", n, noun)
}
