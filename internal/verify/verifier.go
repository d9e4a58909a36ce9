package verify

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mfukata/kensho/internal/model"
)

// defaultTolerance is the relative tolerance for numeric matching.
// Stored values come from spreadsheet cells and answers quote them
// verbatim, so anything beyond float parsing noise is a real mismatch.
const defaultTolerance = 1e-6

// RecordSource is the slice of the record store the verifier needs
type RecordSource interface {
	Lookup(ctx context.Context, entityID, category, attribute string) ([]model.Record, error)
}

// Verifier checks numeric claims in drafted answers against stored
// records
type Verifier struct {
	records   RecordSource
	tolerance float64
}

// NewVerifier creates a verifier over the given record source
func NewVerifier(records RecordSource) *Verifier {
	return &Verifier{
		records:   records,
		tolerance: defaultTolerance,
	}
}

// Verify extracts numeric claims from the answer and checks each against
// the records of the mentioned entities. Every claim yields exactly one
// result.
func (v *Verifier) Verify(ctx context.Context, answer string, entities []string) ([]model.VerificationResult, error) {
	claims := ExtractClaims(answer)
	if len(claims) == 0 {
		return nil, nil
	}

	// One lookup per entity, shared across all claims
	recordsByEntity := make(map[string][]model.Record, len(entities))
	for _, entity := range entities {
		recs, err := v.records.Lookup(ctx, entity, "", "")
		if err != nil {
			return nil, fmt.Errorf("lookup records for %s: %w", entity, err)
		}
		recordsByEntity[entity] = recs
	}

	results := make([]model.VerificationResult, 0, len(claims))
	for _, claim := range claims {
		results = append(results, v.checkClaim(claim, entities, recordsByEntity))
	}
	return results, nil
}

// checkClaim resolves one claim to a verdict. Confirmed beats
// contradicted: if any entity stores a matching value the claim stands,
// even when another attribute in the same family differs.
func (v *Verifier) checkClaim(claim NumericClaim, entities []string, recordsByEntity map[string][]model.Record) model.VerificationResult {
	result := model.VerificationResult{
		ClaimText:  claim.Text,
		ClaimValue: claim.Value,
		Unit:       claim.Unit,
		Verdict:    model.VerdictUnsupported,
	}

	var contradiction *model.Record
	var contradictionEntity string

	for _, entity := range entities {
		for _, rec := range recordsByEntity[entity] {
			if !rec.Value.IsNumeric() || !unitMatchesAttribute(claim.Unit, rec.Attribute) {
				continue
			}
			hinted := attributeHinted(claim.Context, rec.Attribute)

			if v.equal(claim.Value, rec.Value.Number) {
				// A direct value match confirms the claim outright; the
				// hinted match fills in which attribute it was.
				result.Verdict = model.VerdictConfirmed
				result.EntityID = entity
				result.Attribute = rec.Attribute
				result.StoredValue = rec.Value.Number
				if hinted {
					return result
				}
				continue
			}

			// A differing value only contradicts when the answer's
			// wording points at this specific attribute
			if hinted && contradiction == nil {
				r := rec
				contradiction = &r
				contradictionEntity = entity
			}
		}
	}

	if result.Verdict == model.VerdictConfirmed {
		return result
	}
	if contradiction != nil {
		result.Verdict = model.VerdictContradicted
		result.EntityID = contradictionEntity
		result.Attribute = contradiction.Attribute
		result.StoredValue = contradiction.Value.Number
	}
	return result
}

// equal compares values within the relative tolerance
func (v *Verifier) equal(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= v.tolerance*scale
}

// frame-valued and percent-valued attribute suffixes
var frameAttributes = []string{
	"startup_frame", "active_frames", "total_frames",
	"shield_stun", "landing_lag", "shield_advantage",
}

var percentAttributes = []string{"damage", "damage_1v1"}

// unitMatchesAttribute restricts which attributes a claim with a given
// unit can refer to. Unitless claims can match anything numeric.
func unitMatchesAttribute(unit, attribute string) bool {
	switch unit {
	case "F":
		return hasAnySuffix(attribute, frameAttributes)
	case "%":
		return hasAnySuffix(attribute, percentAttributes)
	default:
		return true
	}
}

func hasAnySuffix(attribute string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(attribute, s) {
			return true
		}
	}
	return false
}

// attributeHinted reports whether the claim's surrounding text mentions
// the label part of an attribute like "空前_startup_frame"
func attributeHinted(claimContext, attribute string) bool {
	label := attribute
	if i := strings.Index(attribute, "_"); i > 0 {
		label = attribute[:i]
	}
	if label == "" {
		return false
	}
	return strings.Contains(claimContext, label)
}
