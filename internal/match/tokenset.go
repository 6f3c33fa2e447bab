package match

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// tokenSetRatio scores two normalized names on a 0-100 scale using the
// token-set construction: the sorted token intersection is compared against
// each side's full sorted token string, which makes the score insensitive to
// word order and forgiving of extra words. A strict token subset scores 100.
func tokenSetRatio(a, b string) float64 {
	ta := tokens(a)
	tb := tokens(b)

	if len(ta) == 0 && len(tb) == 0 {
		return 100
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter, onlyA := partition(ta, tb)
	_, onlyB := partition(tb, ta)

	if len(inter) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}

	base := strings.Join(inter, " ")
	full1 := joinNonEmpty(base, strings.Join(onlyA, " "))
	full2 := joinNonEmpty(base, strings.Join(onlyB, " "))

	best := editSimilarity(base, full1)
	if s := editSimilarity(base, full2); s > best {
		best = s
	}
	if s := editSimilarity(full1, full2); s > best {
		best = s
	}
	return best
}

// editSimilarity is the normalized Levenshtein similarity on a 0-100 scale.
func editSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	return levenshtein.Similarity(a, b, nil) * 100
}

func tokens(s string) []string {
	ts := strings.Fields(s)
	sort.Strings(ts)
	return ts
}

// partition splits a's tokens into those also present in b and the rest.
func partition(a, b []string) (inter, only []string) {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}
	for _, t := range a {
		if set[t] {
			inter = append(inter, t)
		} else {
			only = append(only, t)
		}
	}
	return inter, only
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
