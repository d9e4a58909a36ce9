package verify

import (
	"fmt"

	"github.com/mfukata/kensho/internal/model"
)

const contradictionPenalty = 25 // index points per contradicted claim

// Summarize aggregates verification results into a grounding summary.
// An answer with no numeric claims is fully grounded by definition.
func Summarize(results []model.VerificationResult) model.GroundingSummary {
	summary := model.GroundingSummary{Index: 100}
	if len(results) == 0 {
		summary.Signals = append(summary.Signals, model.Signal{
			Type:        "no_numeric_claims",
			Description: "Answer contains no numeric claims to verify",
		})
		return summary
	}

	for _, r := range results {
		switch r.Verdict {
		case model.VerdictConfirmed:
			summary.Confirmed++
		case model.VerdictContradicted:
			summary.Contradicted++
			summary.Signals = append(summary.Signals, model.Signal{
				Type: "contradiction",
				Description: fmt.Sprintf("claim %q conflicts with stored %s=%v for %s",
					r.ClaimText, r.Attribute, r.StoredValue, r.EntityID),
			})
		case model.VerdictUnsupported:
			summary.Unsupported++
			summary.Caveats = append(summary.Caveats,
				fmt.Sprintf("value %q does not correspond to any tracked attribute", r.ClaimText))
		}
	}

	total := len(results)
	index := summary.Confirmed * 100 / total
	index -= summary.Contradicted * contradictionPenalty
	if index < 0 {
		index = 0
	}
	summary.Index = index

	// Any contradiction blocks delivery of the answer as drafted
	summary.Suppress = summary.Contradicted > 0

	summary.Signals = append(summary.Signals, model.Signal{
		Type: "grounding_coverage",
		Description: fmt.Sprintf("%d/%d claims confirmed, %d unsupported, %d contradicted",
			summary.Confirmed, total, summary.Unsupported, summary.Contradicted),
	})
	return summary
}
