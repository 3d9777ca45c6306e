package evaluate

import (
	"strings"
	"unicode"

	"github.com/xrash/smetrics"

	"github.com/caseworks/casedex/internal/domain"
)

// JaroWinkler parameters: standard boost threshold and prefix size.
const (
	jwBoostThreshold = 0.7
	jwPrefixSize     = 4
)

// termMatches reports whether a chunk text satisfies a search term. The
// strategy follows the term type: single words match on token containment,
// phrases on substring containment, dates on any literal rendering. A fuzzy
// token match at or above the threshold also counts, except for dates where
// digit edit distance is noise.
func termMatches(term string, termType domain.TermType, text string, threshold float64) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	text = strings.ToLower(text)
	if term == "" || text == "" {
		return false
	}

	switch termType {
	case domain.TermDate:
		for _, v := range domain.DateVariants(term) {
			if strings.Contains(text, strings.ToLower(v)) {
				return true
			}
		}
		return false
	case domain.TermPhrase:
		if strings.Contains(text, term) {
			return true
		}
		return fuzzyContains(term, text, threshold)
	default:
		if tokenContains(term, text) {
			return true
		}
		return fuzzyContains(term, text, threshold)
	}
}

// tokenContains reports whether any whole token of text equals any word of
// the term. Multi-word terms match on any word, mirroring how keyword
// search tokenizes.
func tokenContains(term, text string) bool {
	tokens := tokenize(text)
	for _, word := range tokenize(term) {
		for _, tok := range tokens {
			if tok == word {
				return true
			}
		}
	}
	return false
}

// fuzzyContains reports whether any term word is similar to any text token
// at or above the threshold.
func fuzzyContains(term, text string, threshold float64) bool {
	if threshold <= 0 || threshold > 1 {
		return false
	}
	tokens := tokenize(text)
	for _, word := range tokenize(term) {
		for _, tok := range tokens {
			if smetrics.JaroWinkler(word, tok, jwBoostThreshold, jwPrefixSize) >= threshold {
				return true
			}
		}
	}
	return false
}

// textsSimilar reports near-duplicate chunk texts, used to accept a returned
// chunk whose content matches an expected chunk under a different id.
func textsSimilar(a, b string, threshold float64) bool {
	if threshold <= 0 || threshold > 1 || a == "" || b == "" {
		return false
	}
	return smetrics.JaroWinkler(strings.ToLower(a), strings.ToLower(b), jwBoostThreshold, jwPrefixSize) >= threshold
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
