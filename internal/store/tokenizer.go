package store

import (
	"regexp"
	"strings"
)

// tokenRegex matches alphanumeric sequences; everything else is treated
// as punctuation and stripped.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// DefaultStopWords contains common English words excluded from sparse
// scoring. Matching is case-insensitive.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "can", "do", "for",
	"from", "has", "have", "how", "i", "in", "is", "it", "its", "many",
	"of", "on", "or", "that", "the", "this", "to", "was", "what", "when",
	"where", "which", "who", "will", "with", "you", "your",
}

// Tokenize splits text into lowercase tokens, stripping punctuation and
// removing stop words.
func Tokenize(text string, stopWords map[string]struct{}) []string {
	words := tokenRegex.FindAllString(text, -1)

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		lower := strings.ToLower(w)
		if _, isStop := stopWords[lower]; isStop {
			continue
		}
		tokens = append(tokens, lower)
	}
	return tokens
}

// BuildStopWordMap converts a slice of stop words to a map for lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
