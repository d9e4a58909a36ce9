// Package verify checks drafted answers against the structured record
// store and reports which numeric claims are backed by ground truth.
package verify

import (
	"regexp"
	"strconv"
	"strings"
)

// NumericClaim is one numeric token found in an answer, with the unit
// that followed it and enough surrounding text to guess which attribute
// it refers to.
type NumericClaim struct {
	Text    string  // the token as written, e.g. "8F", "8.4%"
	Value   float64 // parsed number
	Unit    string  // normalized: "F", "%", or ""
	Context string  // nearby answer text for attribute hinting
}

// claimPattern matches a number with an optional attached unit. Unit
// variants cover both ASCII and full-width forms. Longer alternatives
// come first so "frames" is not cut to "f", and the word boundary keeps
// a bare f-word ("5 files") from reading as a frame unit.
var claimPattern = regexp.MustCompile(`([-+]?[0-9]+(?:\.[0-9]+)?)\s*([Ff]rames?\b|フレーム|[Ff]\b|%|％)?`)

const contextWindow = 24 // runes kept on each side of a claim

// ExtractClaims finds every numeric claim in the answer text. Claims are
// never dropped: a number with no recognizable unit is still extracted
// with an empty unit so the verifier can report it as unsupported rather
// than ignore it.
func ExtractClaims(answer string) []NumericClaim {
	matches := claimPattern.FindAllStringSubmatchIndex(answer, -1)
	if matches == nil {
		return nil
	}

	runes := []rune(answer)
	claims := make([]NumericClaim, 0, len(matches))
	seen := make(map[string]bool)

	for _, m := range matches {
		token := answer[m[0]:m[1]]
		numText := answer[m[2]:m[3]]

		value, err := strconv.ParseFloat(numText, 64)
		if err != nil {
			continue
		}

		unit := ""
		if m[4] >= 0 {
			unit = normalizeUnit(answer[m[4]:m[5]])
		}
		token = strings.TrimSpace(token)

		context := claimContext(runes, answer, m[0], m[1])

		// Identical token in identical context is the same claim
		key := token + "\x00" + context
		if seen[key] {
			continue
		}
		seen[key] = true

		claims = append(claims, NumericClaim{
			Text:    token,
			Value:   value,
			Unit:    unit,
			Context: context,
		})
	}
	return claims
}

// normalizeUnit folds unit variants into canonical forms
func normalizeUnit(unit string) string {
	switch strings.ToLower(unit) {
	case "f", "フレーム", "frame", "frames":
		return "F"
	case "%", "％":
		return "%"
	}
	return ""
}

// claimContext returns the text around one claim, clipped to the window
func claimContext(runes []rune, answer string, byteStart, byteEnd int) string {
	// Convert byte offsets to rune offsets
	runeStart := len([]rune(answer[:byteStart]))
	runeEnd := len([]rune(answer[:byteEnd]))

	lo := runeStart - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := runeEnd + contextWindow
	if hi > len(runes) {
		hi = len(runes)
	}
	return string(runes[lo:hi])
}
