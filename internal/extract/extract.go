// Package extract parses tabular and textual sources into normalized
// records, one independently-parseable source unit at a time so the
// ingestion driver can skip units a previous run already committed.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mfukata/kensho/internal/model"
)

// Source yields unit descriptors cheaply, then extracts one unit on
// demand. Implementations must be deterministic: the same input produces
// the same units with the same IDs across runs.
type Source interface {
	// Name identifies the source in logs and summaries
	Name() string

	// Units lists the atomically-ingestible chunks of this source
	Units(ctx context.Context) ([]model.SourceUnit, error)

	// Extract parses one unit into records. A unit with no data rows
	// returns an empty slice, not an error.
	Extract(ctx context.Context, unit model.SourceUnit) ([]model.Record, error)
}

// UnitError reports a unit that failed to parse. The driver logs it,
// counts it, and continues with the remaining units.
type UnitError struct {
	UnitID string
	Err    error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %s: %v", e.UnitID, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

var numberPattern = regexp.MustCompile(`[-+]?[0-9]+(?:\.[0-9]+)?`)

// firstNumber extracts the leading number from a cell like "8", "8-10",
// "7.0%" or "発生8F". Returns false when the cell holds no digits.
func firstNumber(s string) (float64, bool) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseValue turns a raw cell into a typed value. Ambiguous or malformed
// numeric cells are kept as raw text with a missing value rather than
// dropped, so the verifier can still see that the attribute exists.
func parseValue(cell string) model.Value {
	cell = strings.TrimSpace(cell)
	if cell == "" || cell == "-" || cell == "—" {
		return model.MissingValue()
	}
	if n, ok := firstNumber(cell); ok {
		return model.NumericValue(n)
	}
	return model.TextValue(cell)
}

// normalizeLabel makes a row label usable inside an attribute name
func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = strings.ReplaceAll(label, " ", "_")
	label = strings.ReplaceAll(label, "　", "_")
	return label
}

// splitPassages splits document text into embedding-sized passages on
// blank lines, merging short paragraphs up to maxLen runes
func splitPassages(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = 500
	}

	var passages []string
	var current strings.Builder

	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len([]rune(block)) > maxLen {
			passages = append(passages, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(block)

		// A single oversized block is flushed as its own passage
		if len([]rune(current.String())) >= maxLen {
			passages = append(passages, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		passages = append(passages, current.String())
	}
	return passages
}
