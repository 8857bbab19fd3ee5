package classify

import (
	"regexp"
	"strings"

	"github.com/agext/levenshtein"
)

var (
	nonAlnumPattern = regexp.MustCompile(`[^a-z0-9 ]+`)

	// Indel distance: substitutions cost a delete plus an insert.
	indelParams = levenshtein.NewParams().SubCost(2)
)

// Normalize lowercases s and drops everything outside [a-z0-9 ].
func Normalize(s string) string {
	return strings.TrimSpace(nonAlnumPattern.ReplaceAllString(strings.ToLower(s), ""))
}

// Ratio returns the indel similarity of a and b scaled to 0..100.
func Ratio(a, b string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	dist := levenshtein.Distance(a, b, indelParams)
	return 100 * (1 - float64(dist)/float64(total))
}

// PartialRatio aligns the shorter string against every window of the
// longer one, including windows clipped at either edge, and returns the
// best Ratio. Either string empty scores 0.
func PartialRatio(a, b string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}

	m, n := len(short), len(long)
	best := 0.0
	consider := func(window string) bool {
		if r := Ratio(short, window); r > best {
			best = r
		}
		return best >= 100
	}

	for k := 1; k < m; k++ {
		if consider(long[:k]) {
			return best
		}
	}
	for i := 0; i+m <= n; i++ {
		if consider(long[i : i+m]) {
			return best
		}
	}
	for k := m - 1; k > 0; k-- {
		if consider(long[n-k:]) {
			return best
		}
	}
	return best
}
