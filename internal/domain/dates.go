package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Dates arrive in many renderings (scanned correspondence is inconsistent),
// so parsing tries an ordered list of layouts and the first match wins.
// Internally a date is always a time.Time, never a raw string.

// dateLayouts is ordered most-specific first. Day-first throughout (UK).
var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"2/1/06",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
	"2006-01-02",
	"2 January 2006",
	"02 January 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2006",
	"Jan 2006",
}

var ordinalRe = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)

// ParseDate parses a date string in any accepted format.
func ParseDate(s string) (time.Time, bool) {
	cleaned := strings.TrimSpace(ordinalRe.ReplaceAllString(s, "$1"))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

const (
	fullMonths = `(?:January|February|March|April|May|June|July|August|September|October|November|December)`
	abbrMonths = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)`
	ordinal    = `(?:st|nd|rd|th)`
)

// datePatterns detect date-bearing text. Ordered most-specific first so that
// subset matches ("May 2021" inside "25 May 2021") lose to the full form.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}-\d{1,2}-\d{2,4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\.\d{1,2}\.\d{2,4}\b`),
	regexp.MustCompile(`(?i)\b\d{4}-\d{1,2}-\d{1,2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}` + ordinal + `?\s+` + fullMonths + `\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b` + fullMonths + `\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}` + ordinal + `?\s+` + abbrMonths + `\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b` + abbrMonths + `\s+\d{1,2},?\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b` + abbrMonths + `\s+\d{4}\b`),
}

// ContainsDate reports whether text contains any recognized date pattern.
func ContainsDate(text string) bool {
	for _, p := range datePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ExtractDates returns the unique date strings found in text, with
// substring matches of longer dates removed.
func ExtractDates(text string) []string {
	seen := make(map[string]struct{})
	var found []string
	for _, p := range datePatterns {
		for _, m := range p.FindAllString(text, -1) {
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				found = append(found, m)
			}
		}
	}
	return removeSubsetDates(found)
}

// removeSubsetDates drops dates contained in a longer match.
func removeSubsetDates(dates []string) []string {
	if len(dates) <= 1 {
		return dates
	}
	sorted := append([]string(nil), dates...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	var kept []string
	for _, d := range sorted {
		subset := false
		for _, k := range kept {
			if strings.Contains(strings.ToLower(k), strings.ToLower(d)) {
				subset = true
				break
			}
		}
		if !subset {
			kept = append(kept, d)
		}
	}
	return kept
}

// DateVariants renders every accepted literal form of a date for exact-phrase
// searching. The input string itself is always included, so an unparseable
// date still searches as written.
func DateVariants(dateStr string) []string {
	t, ok := ParseDate(dateStr)
	if !ok {
		return []string{dateStr}
	}

	day := t.Day()
	suffix := ordinalSuffix(day)
	forms := []string{
		dateStr,
		t.Format("2/1/2006"),
		t.Format("02/01/2006"),
		t.Format("2-1-2006"),
		t.Format("02-01-2006"),
		t.Format("2006-01-02"),
		t.Format("2 January 2006"),
		t.Format("2 Jan 2006"),
		fmt.Sprintf("%d%s %s %d", day, suffix, t.Month().String(), t.Year()),
		fmt.Sprintf("%d%s %s %d", day, suffix, t.Format("Jan"), t.Year()),
	}

	seen := make(map[string]struct{}, len(forms))
	out := make([]string, 0, len(forms))
	for _, v := range forms {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// DateSearchVariants extracts the dates in text and expands each into its
// literal renderings.
func DateSearchVariants(text string) []string {
	var all []string
	seen := make(map[string]struct{})
	for _, d := range ExtractDates(text) {
		for _, v := range DateVariants(d) {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				all = append(all, v)
			}
		}
	}
	sort.Strings(all)
	return all
}

func ordinalSuffix(day int) string {
	switch day {
	case 1, 21, 31:
		return "st"
	case 2, 22:
		return "nd"
	case 3, 23:
		return "rd"
	}
	return "th"
}
