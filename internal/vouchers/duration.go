package vouchers

import "strings"

// durationMap maps validity shorthand to the duration strings resellers
// type into the package catalog.
var durationMap = map[string]string{
	"1h":  "1 Hour",
	"2h":  "2 Hours",
	"3h":  "3 Hours",
	"6h":  "6 Hours",
	"12h": "12 Hours",
	"1d":  "1 Day",
	"2d":  "2 Days",
	"3d":  "3 Days",
	"5d":  "5 Days",
	"7d":  "7 Days",
	"30d": "30 Days",
}

// ValidityCodes lists the supported shorthand codes.
var ValidityCodes = []string{"1h", "2h", "3h", "6h", "12h", "1d", "2d", "3d", "5d", "7d", "30d"}

// DurationCandidates returns the package durations to try for a validity
// code, most specific first. Unknown codes are passed through unchanged.
func DurationCandidates(validity string) []string {
	base, ok := durationMap[validity]
	if !ok {
		return []string{validity}
	}

	lower := strings.ToLower(base)
	candidates := []string{base, lower, strings.ToUpper(lower[:1]) + lower[1:]}

	switch {
	case strings.Contains(base, " Hours"):
		candidates = append(candidates, strings.Replace(base, " Hours", " Hour", 1))
	case strings.Contains(base, " Hour"):
		candidates = append(candidates, strings.Replace(base, " Hour", " Hours", 1))
	}

	switch {
	case strings.Contains(base, " Days"):
		candidates = append(candidates, strings.Replace(base, " Days", " Day", 1))
	case strings.Contains(base, " Day"):
		candidates = append(candidates, strings.Replace(base, " Day", " Days", 1))
	}

	return dedupe(candidates)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
