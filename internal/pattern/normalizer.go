// Package pattern implements text normalization, tiered fuzzy matching and
// incremental learning of label patterns.
package pattern

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// MinKeyLength is the shortest normalized key accepted for learning or matching.
const MinKeyLength = 2

// maxPasses bounds the fixpoint loop in Normalize.
const maxPasses = 8

var (
	datePattern  = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}([/-]\d{2,4})?`)
	timePattern  = regexp.MustCompile(`\d{1,2}:\d{2}`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// DefaultStoplist holds the prefix tokens stripped from calendar-style titles.
var DefaultStoplist = []string{"meeting", "call", "sync", "review", "standup", "1:1", "1-on-1"}

// Normalizer canonicalizes free text into pattern keys.
type Normalizer struct {
	prefix   *regexp.Regexp
	stoplist []string
}

// NewNormalizer builds a normalizer stripping one of the given prefix tokens.
// An empty stoplist disables prefix stripping.
func NewNormalizer(stoplist []string) *Normalizer {
	words := make([]string, 0, len(stoplist))
	seen := make(map[string]struct{}, len(stoplist))
	for _, w := range stoplist {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	// Longest first so "1-on-1" wins over a shorter token sharing its start.
	sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })

	n := &Normalizer{stoplist: words}
	if len(words) > 0 {
		quoted := make([]string, len(words))
		for i, w := range words {
			quoted[i] = regexp.QuoteMeta(w)
		}
		n.prefix = regexp.MustCompile(`^(?:` + strings.Join(quoted, "|") + `)(?:\s*[:\-]|\s)\s*`)
	}
	return n
}

// Stoplist returns the prefix tokens in matching order.
func (n *Normalizer) Stoplist() []string {
	return append([]string(nil), n.stoplist...)
}

// Normalize returns the canonical key for text. The result may be empty.
// The rule set is re-applied until the output is stable, so Normalize is
// idempotent even when stripping exposes another prefix or date.
func (n *Normalizer) Normalize(text string) string {
	out := n.pass(text)
	for i := 0; i < maxPasses; i++ {
		next := n.pass(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func (n *Normalizer) pass(text string) string {
	s := strings.TrimSpace(strings.ToLower(text))
	if n.prefix != nil {
		s = n.prefix.ReplaceAllString(s, "")
	}
	s = datePattern.ReplaceAllString(s, "")
	s = timePattern.ReplaceAllString(s, "")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ValidKey reports whether a normalized key is long enough to learn or match.
func ValidKey(key string) bool {
	return utf8.RuneCountInString(key) >= MinKeyLength
}
