// internal/evaluation/scoring.go
package evaluation

import (
	"strings"
	"unicode/utf8"
)

// ResponseLength scores how close the generated length is to the expected length. Lengths are
// counted in characters. The score is 1.0 when the ratio generated/expected lies in [0.5, 1.5],
// 0.5 when it lies in [0.3, 2.0] and 0.0 otherwise, or when expected is empty.
func ResponseLength(generated, expected string) float64 {
	want := utf8.RuneCountInString(expected)
	if want == 0 {
		return 0.0
	}
	ratio := float64(utf8.RuneCountInString(generated)) / float64(want)
	switch {
	case ratio >= 0.5 && ratio <= 1.5:
		return 1.0
	case ratio >= 0.3 && ratio <= 2.0:
		return 0.5
	default:
		return 0.0
	}
}

// KeywordOverlap returns the fraction of distinct lower-cased expected words that also appear in
// generated. Words are whitespace-separated; there is no stemming.
func KeywordOverlap(generated, expected string) float64 {
	want := wordSet(expected)
	if len(want) == 0 {
		return 0.0
	}
	got := wordSet(generated)
	overlap := 0
	for w := range want {
		if _, ok := got[w]; ok {
			overlap++
		}
	}
	return min(float64(overlap)/float64(len(want)), 1.0)
}

// Coherence is a structural sanity check on a response: it is 0.0 when the response is shorter than
// 10 characters, holds more than 2 '<' or more than 2 '>' characters, or uses fewer than 10 distinct
// characters. Otherwise it is 1.0.
func Coherence(response string) float64 {
	if utf8.RuneCountInString(response) < 10 {
		return 0.0
	}
	if strings.Count(response, "<") > 2 || strings.Count(response, ">") > 2 {
		return 0.0
	}
	distinct := make(map[rune]struct{})
	for _, r := range response {
		distinct[r] = struct{}{}
	}
	if len(distinct) < 10 {
		return 0.0
	}
	return 1.0
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
