package common

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	nonNumericChars  = regexp.MustCompile(`[^0-9,.]`)
	leadingFloat     = regexp.MustCompile(`^[0-9]*\.?[0-9]*`)
	numberMultiplier = regexp.MustCompile(`[0-9 ]([mkbMKB])(?:[^a-zA-Z]|$)`)
)

// UnformatNumbers expands an abbreviated count as rendered by the platform
// ("1.23M views", "6.0K", "2B", "1,234 likes") into an integer.
// Text without any digits (no likes, hidden counts) yields 0.
func UnformatNumbers(s string) int64 {
	digits := nonNumericChars.ReplaceAllString(s, "")
	digits = strings.ReplaceAll(digits, ",", "")
	digits = leadingFloat.FindString(digits)
	if digits == "" || digits == "." {
		return 0
	}

	number, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0
	}

	if m := numberMultiplier.FindStringSubmatch(s); m != nil {
		switch strings.ToUpper(m[1]) {
		case "K":
			number *= 1e3
		case "M":
			number *= 1e6
		case "B":
			number *= 1e9
		}
	}

	return int64(math.Round(number))
}
