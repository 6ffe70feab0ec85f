package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Transform rewrites a raw match. Returning "" turns the match into a miss.
type Transform func(string) string

var spaceRun = regexp.MustCompile(`\s+`)

// Trim collapses internal whitespace runs and trims both ends. It runs
// after every candidate's own transforms.
func Trim(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// After keeps the text after the first sep. Text without sep is a miss.
func After(sep string) Transform {
	return func(s string) string {
		_, after, ok := strings.Cut(s, sep)
		if !ok {
			return ""
		}
		return after
	}
}

// Part splits on sep and keeps element i, or misses when out of range.
func Part(sep string, i int) Transform {
	return func(s string) string {
		parts := strings.Split(s, sep)
		if i < 0 || i >= len(parts) {
			return ""
		}
		return parts[i]
	}
}

// BeforeLast drops everything from the last sep onwards. Text without
// sep passes through unchanged.
func BeforeLast(sep string) Transform {
	return func(s string) string {
		if i := strings.LastIndex(s, sep); i >= 0 {
			return s[:i]
		}
		return s
	}
}

func FirstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func TrimSuffix(suffix string) Transform {
	return func(s string) string {
		return strings.TrimSuffix(strings.TrimSpace(s), suffix)
	}
}

func Replace(old, new string) Transform {
	return func(s string) string {
		return strings.ReplaceAll(s, old, new)
	}
}

var numberToken = regexp.MustCompile(`-?[0-9][0-9,]*(?:\.[0-9]+)?`)

// ParseNumber pulls the first numeric token out of s, ignoring currency
// symbols and thousands separators.
func ParseNumber(s string) (float64, bool) {
	tok := numberToken.FindString(s)
	if tok == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
