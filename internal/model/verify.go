package model

// Verdict is the outcome of checking one numeric claim against the
// structured record store
type Verdict string

const (
	VerdictConfirmed    Verdict = "confirmed"    // a stored value matches the claim
	VerdictUnsupported  Verdict = "unsupported"  // no tracked attribute corresponds to the claim
	VerdictContradicted Verdict = "contradicted" // a stored value for the same attribute differs
)

// VerificationResult records the check of a single numeric claim.
// Ephemeral, produced per answer, never persisted.
type VerificationResult struct {
	ClaimText   string  `json:"claim_text"`  // the token as it appeared, e.g. "8F"
	ClaimValue  float64 `json:"claim_value"` // parsed number
	Unit        string  `json:"unit,omitempty"`
	EntityID    string  `json:"entity_id,omitempty"`  // entity the claim was checked against
	Attribute   string  `json:"attribute,omitempty"`  // matched attribute, if any
	StoredValue float64 `json:"stored_value,omitempty"`
	Verdict     Verdict `json:"verdict"`
}

// Signal is a human-readable diagnostic attached to a grounding summary
type Signal struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// GroundingSummary aggregates verification results for one drafted answer
type GroundingSummary struct {
	// Index is 0-100: the share of numeric claims confirmed against the
	// record store, with contradiction penalties applied.
	Index        int      `json:"index"`
	Confirmed    int      `json:"confirmed"`
	Unsupported  int      `json:"unsupported"`
	Contradicted int      `json:"contradicted"`
	Suppress     bool     `json:"suppress"` // any contradiction blocks delivery
	Caveats      []string `json:"caveats,omitempty"`
	Signals      []Signal `json:"signals,omitempty"`
}
