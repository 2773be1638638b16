package utils

import (
	"regexp"
	"strings"
)

// MaxKeywordTokens is the number of tokens kept per memory after stop-word
// filtering. The source indexed 10-20 tokens across different code paths;
// the spec adopts 10 for the re-implementation.
const MaxKeywordTokens = 10

// MinKeywordLength is the minimum token length kept after filtering.
const MinKeywordLength = 4

var stopWords = map[string]bool{
	"the": true, "is": true, "at": true, "which": true, "on": true,
	"a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "with": true, "to": true, "for": true, "of": true,
	"as": true, "by": true, "that": true, "this": true, "it": true,
	"from": true, "be": true, "are": true, "was": true, "were": true,
	"been": true,
}

var wordSplitter = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// ExtractKeywords tokenizes content per the cache manager's contract:
// lowercase, split on non-word runs, keep tokens longer than
// MinKeywordLength-1, drop stop words, keep the first MaxKeywordTokens
// survivors in order of first appearance.
func ExtractKeywords(content string) []string {
	lower := strings.ToLower(content)
	tokens := wordSplitter.Split(lower, -1)

	keywords := make([]string, 0, MaxKeywordTokens)
	seen := make(map[string]bool, MaxKeywordTokens)

	for _, tok := range tokens {
		if len(keywords) >= MaxKeywordTokens {
			break
		}
		if len(tok) <= MinKeywordLength-1 {
			continue
		}
		if stopWords[tok] {
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}

	return keywords
}

// WordSet splits s on whitespace and returns the distinct lowercased tokens,
// the representation the duplicate detector's Jaccard similarity compares.
func WordSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// JaccardSimilarity computes |A∩B| / |A∪B| over the whitespace-split word
// sets of a and b. An empty union (both inputs blank) is defined as 0.
func JaccardSimilarity(a, b string) float64 {
	setA := WordSet(a)
	setB := WordSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
