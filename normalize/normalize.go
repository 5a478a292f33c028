// Package normalize turns raw page strings into canonical brand names.
//
// Every function here is pure: the noise vocabulary is passed in as a
// Vocabulary value, so concurrent callers with different vocabularies
// never share state.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MinLength is the minimum rune length of an accepted name.
const MinLength = 2

var (
	// disallowed keeps letters, marks, digits, whitespace, hyphen and apostrophe.
	disallowed = regexp.MustCompile(`[^\p{L}\p{M}\p{N}\s'\-]+`)

	// letterGroup matches alphabetical index links such as "A-C" or "Ab-Cde".
	letterGroup = regexp.MustCompile(`^[A-Za-z\x{00C0}-\x{024F}]{1,3}-[A-Za-z\x{00C0}-\x{024F}]{1,3}$`)
)

// Normalize cleans raw into a canonical brand name, or returns "" when
// the result is too short or matches the noise vocabulary.
func Normalize(raw string, v Vocabulary) string {
	if IsLetterGroup(strings.TrimSpace(raw)) || mostlyDigits(raw) {
		return ""
	}

	s := norm.NFKC.String(raw)
	s = disallowed.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	// Casers carry state and are not safe for concurrent use.
	s = cases.Title(language.Und).String(s)

	if utf8.RuneCountInString(s) < MinLength {
		return ""
	}
	if IsNoise(s, v) {
		return ""
	}
	return s
}

// IsNoise reports whether an already-cleaned name is noise.
func IsNoise(name string, v Vocabulary) bool {
	lower := strings.ToLower(name)
	switch {
	case v.IsNoiseWord(lower):
		return true
	case v.ContainsNoisePhrase(lower):
		return true
	case IsLetterGroup(name):
		return true
	case mostlyDigits(name):
		return true
	}
	return false
}

// IsLetterGroup reports whether s looks like an alphabetical index link.
func IsLetterGroup(s string) bool {
	return letterGroup.MatchString(s)
}

// mostlyDigits reports whether digits make up at least half of s.
func mostlyDigits(s string) bool {
	total, digits := 0, 0
	for _, r := range s {
		total++
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return total > 0 && digits*2 >= total
}

// Dedupe normalizes every raw string, drops rejects and returns the
// survivors in first-seen order, unique by lowercase name.
func Dedupe(raw []string, v Vocabulary) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		name := Normalize(r, v)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}
