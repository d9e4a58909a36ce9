package model

import "fmt"

// ValueKind discriminates the typed value carried by a Record
type ValueKind int

const (
	ValueMissing ValueKind = iota // cell was empty or unparseable
	ValueNumeric
	ValueText
)

func (k ValueKind) String() string {
	switch k {
	case ValueNumeric:
		return "numeric"
	case ValueText:
		return "text"
	default:
		return "missing"
	}
}

// Value is the typed value of a record: numeric, text, or explicitly missing.
// A missing value still yields a Record so downstream verification can tell
// "no data" apart from "entity unknown".
type Value struct {
	Kind   ValueKind `json:"kind"`
	Number float64   `json:"number,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// NumericValue wraps a parsed number
func NumericValue(n float64) Value {
	return Value{Kind: ValueNumeric, Number: n}
}

// TextValue wraps free-form text
func TextValue(s string) Value {
	return Value{Kind: ValueText, Text: s}
}

// MissingValue marks a cell that could not be parsed
func MissingValue() Value {
	return Value{Kind: ValueMissing}
}

// IsNumeric reports whether the value carries a number
func (v Value) IsNumeric() bool {
	return v.Kind == ValueNumeric
}

// Record is one normalized fact extracted from a source unit
type Record struct {
	EntityID   string `json:"entity_id"`   // e.g. character or subject name
	Category   string `json:"category"`    // section the fact came from
	Attribute  string `json:"attribute"`   // e.g. "空前_startup_frame"
	Value      Value  `json:"value"`
	RawText    string `json:"raw_text,omitempty"` // original cell/passage text
	SourceUnit string `json:"source_unit"`
}

// Key returns the uniqueness key for upsert: re-ingesting a source unit
// replaces records with the same key instead of duplicating them.
func (r Record) Key() string {
	return fmt.Sprintf("%s|%s|%s", r.EntityID, r.Category, r.Attribute)
}

// SourceUnitKind identifies which extractor produced a unit
type SourceUnitKind string

const (
	UnitWorkbook SourceUnitKind = "workbook"
	UnitDocument SourceUnitKind = "document"
	UnitKBPage   SourceUnitKind = "kb_page"
)

// SourceUnit is an atomically-ingestible chunk of a source. Its ID is stable
// across runs so the checkpoint can reference it.
type SourceUnit struct {
	ID       string         `json:"id"`
	Kind     SourceUnitKind `json:"kind"`
	EntityID string         `json:"entity_id,omitempty"`
	Label    string         `json:"label,omitempty"` // sheet name, file name, page title
}
