package pattern

import (
	"strings"
	"unicode/utf8"

	"github.com/xaenox/labelbot/internal/models"
)

// Tier identifies which matching rule produced a result.
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierSubstring
	TierWordOverlap
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierSubstring:
		return "substring"
	case TierWordOverlap:
		return "word_overlap"
	default:
		return "none"
	}
}

// minSubstringLength is the shorter side's minimum length for the substring tier.
const minSubstringLength = 4

// Matcher looks up the best pattern for a query in three tiers:
// exact key, substring containment, then shared significant words.
type Matcher struct {
	norm *Normalizer
}

// NewMatcher creates a matcher using norm to canonicalize queries.
func NewMatcher(norm *Normalizer) *Matcher {
	return &Matcher{norm: norm}
}

// Match returns the best pattern for query, or false when no tier qualifies.
func (m *Matcher) Match(query string, patterns []models.Pattern) (models.Pattern, Tier, bool) {
	q := m.norm.Normalize(query)
	if !ValidKey(q) {
		return models.Pattern{}, TierNone, false
	}

	for _, p := range patterns {
		if p.Key == q {
			return p, TierExact, true
		}
	}

	var best *models.Pattern
	for i := range patterns {
		if substringMatch(patterns[i].Key, q) && (best == nil || better(patterns[i], *best)) {
			best = &patterns[i]
		}
	}
	if best != nil {
		return *best, TierSubstring, true
	}

	qWords := significantWords(q)
	for i := range patterns {
		if wordOverlap(patterns[i].Key, qWords) && (best == nil || better(patterns[i], *best)) {
			best = &patterns[i]
		}
	}
	if best != nil {
		return *best, TierWordOverlap, true
	}
	return models.Pattern{}, TierNone, false
}

// NamesMatch applies the substring and word-overlap rules to two normalized strings.
func NamesMatch(key, text string) bool {
	if !ValidKey(key) || !ValidKey(text) {
		return false
	}
	if key == text || substringMatch(key, text) {
		return true
	}
	return wordOverlap(key, significantWords(text))
}

func substringMatch(key, q string) bool {
	if min(utf8.RuneCountInString(key), utf8.RuneCountInString(q)) < minSubstringLength {
		return false
	}
	return strings.Contains(q, key) || strings.Contains(key, q)
}

func wordOverlap(key string, qWords map[string]struct{}) bool {
	kWords := significantWords(key)
	if len(kWords) == 0 {
		return false
	}
	shared := 0
	for w := range kWords {
		if _, ok := qWords[w]; ok {
			shared++
		}
	}
	return shared >= min(2, len(kWords))
}

func significantWords(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		if utf8.RuneCountInString(w) > 2 {
			out[w] = struct{}{}
		}
	}
	return out
}

// better orders candidates by confidence, then usage, then recency.
// The key comparison only makes the order total.
func better(a, b models.Pattern) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.UsageCount != b.UsageCount {
		return a.UsageCount > b.UsageCount
	}
	if !a.LastUsedAt.Equal(b.LastUsedAt) {
		return a.LastUsedAt.After(b.LastUsedAt)
	}
	return a.Key < b.Key
}
