package matcher

import (
	"strings"
	"unicode"
)

// Scorer ranks how well a goal matches a plan's goal signature. Any
// monotonic similarity function works; the default is lexical so the
// semantic-embedding collaborator can be plugged in without touching
// filter logic.
type Scorer interface {
	// Score returns a similarity in [0,1]; higher is more similar.
	Score(goal, signature string) float64
}

// KeywordScorer scores by Jaccard overlap of normalized keyword sets:
// lowercase, punctuation stripped, stopwords removed.
type KeywordScorer struct {
	stopwords map[string]bool
}

// NewKeywordScorer creates the default lexical scorer.
func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{stopwords: defaultStopwords()}
}

// defaultStopwords returns common English stopwords filtered out during
// normalization.
func defaultStopwords() map[string]bool {
	words := []string{
		"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "could",
		"should", "may", "might", "must", "shall", "can",
		"to", "of", "in", "for", "on", "with", "at", "by", "from", "as",
		"into", "through", "during", "before", "after", "above", "below",
		"and", "but", "or", "nor", "so", "yet", "both", "either", "neither",
		"not", "only", "also", "just", "than", "too", "very",
		"this", "that", "these", "those", "it", "its",
		"i", "me", "my", "we", "us", "our", "you", "your",
		"all", "each", "every", "any", "some",
	}

	stopwords := make(map[string]bool, len(words))
	for _, w := range words {
		stopwords[w] = true
	}
	return stopwords
}

// Score implements Scorer.
func (s *KeywordScorer) Score(goal, signature string) float64 {
	goalSet := s.keywords(goal)
	sigSet := s.keywords(signature)

	if len(goalSet) == 0 || len(sigSet) == 0 {
		return 0
	}

	intersection := 0
	for word := range goalSet {
		if sigSet[word] {
			intersection++
		}
	}
	union := len(goalSet) + len(sigSet) - intersection

	return float64(intersection) / float64(union)
}

// keywords normalizes text into its significant word set.
func (s *KeywordScorer) keywords(text string) map[string]bool {
	normalized := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, text)

	set := make(map[string]bool)
	for _, word := range strings.Fields(normalized) {
		if len(word) < 2 || s.stopwords[word] {
			continue
		}
		set[word] = true
	}
	return set
}
