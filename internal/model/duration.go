package model

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MaxDuration bounds a parsed length in seconds; anything larger is
// treated as corrupt.
const MaxDuration = math.MaxInt32

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseDuration parses a track length in any of the forms found in sidecars
// and API responses: plain seconds ("213", "213.4"), clock notation
// ("3:33", "1:02:05") or ISO-8601 ("PT3M33S"). It reports false for empty
// or unrecognised input.
func ParseDuration(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) || f > MaxDuration {
			return 0, false
		}
		return int(math.Round(f)), true
	}

	if strings.Contains(s, ":") {
		return parseClock(s)
	}

	if m := isoDuration.FindStringSubmatch(strings.ToUpper(s)); m != nil && s != "P" && !strings.HasSuffix(strings.ToUpper(s), "T") {
		secs := 0.0
		if m[4] != "" {
			secs, _ = strconv.ParseFloat(m[4], 64)
		}
		total := float64(atoi(m[1]))*86400 + float64(atoi(m[2]))*3600 + float64(atoi(m[3]))*60 + math.Round(secs)
		if total > MaxDuration {
			return 0, false
		}
		return int(total), true
	}

	return 0, false
}

func parseClock(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > MaxDuration {
			return 0, false
		}
		total = total*60 + n
		if total > MaxDuration {
			return 0, false
		}
	}
	return total, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
