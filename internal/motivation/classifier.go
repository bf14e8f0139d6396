package motivation

import "strings"

// #region interface

// Classifier assigns a sentiment to a free-text plan description.
type Classifier interface {
	Classify(text string) Sentiment
}

// #endregion interface

// #region keywords

var positiveKeywords = []string{
	"enjoy", "fun", "relax", "rest", "eat", "meal", "friend",
	"play", "explore", "discover", "celebrate", "help", "visit",
}

var negativeKeywords = []string{
	"avoid", "flee", "hide", "fight", "argue", "worry", "alone",
	"hungry", "tired", "exhausted", "danger", "lost", "fail",
}

// #endregion keywords

// #region keyword-classifier

// KeywordClassifier is a substring heuristic: it counts positive and
// negative keywords and reports whichever side wins. It is not a contract;
// swap in a real classifier behind the interface when one exists.
type KeywordClassifier struct {
	Positive []string
	Negative []string
}

// DefaultClassifier returns a KeywordClassifier with the built-in lists.
func DefaultClassifier() *KeywordClassifier {
	return &KeywordClassifier{Positive: positiveKeywords, Negative: negativeKeywords}
}

// Classify returns the winning polarity, neutral on a tie or no match.
func (k *KeywordClassifier) Classify(text string) Sentiment {
	lower := strings.ToLower(text)
	pos, neg := countMatches(lower, k.Positive), countMatches(lower, k.Negative)
	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	}
	return SentimentNeutral
}

func countMatches(lower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

// #endregion keyword-classifier
