// Package pipeline drives ingestion and question answering over the
// record store and vector index.
package pipeline

import (
	"context"
	"fmt"

	"github.com/mfukata/kensho/internal/checkpoint"
	"github.com/mfukata/kensho/internal/extract"
	"github.com/mfukata/kensho/internal/llm"
	"github.com/mfukata/kensho/internal/model"
)

// RecordStore is the slice of the structured store the ingestor writes
type RecordStore interface {
	ReplaceUnit(ctx context.Context, unitID string, records []model.Record) error
}

// VectorSink is the slice of the vector index the ingestor writes
type VectorSink interface {
	EnsureSchema(ctx context.Context) error
	DeleteUnit(ctx context.Context, unitID string) error
	IndexUnit(ctx context.Context, unitID string, records []model.Record) (int, error)
}

// Options tunes one ingestion run
type Options struct {
	// DryRun lists and extracts units but performs no external writes
	// and never marks units complete
	DryRun bool

	// Entities restricts the run to the named entities; empty means all
	Entities []string

	// Verbose enables per-unit progress output
	Verbose bool
}

// RunSummary reports what one ingestion run did
type RunSummary struct {
	Committed int // units fully written and checkpointed this run
	Skipped   int // units already committed by a previous run
	Failed    int // units that failed and were recorded for --resume
	Records   int // records committed this run
}

// Ingestor processes source units sequentially: extract, write both
// stores, then checkpoint. A unit is only marked complete after both
// destinations succeeded, which makes resumption idempotent.
type Ingestor struct {
	sources  []extract.Source
	store    RecordStore
	vector   VectorSink
	ckpt     *checkpoint.Store
	enricher llm.Provider // optional, nil disables enrichment
	opts     Options
}

// NewIngestor creates an ingestion driver
func NewIngestor(sources []extract.Source, store RecordStore, vector VectorSink, ckpt *checkpoint.Store, enricher llm.Provider, opts Options) *Ingestor {
	return &Ingestor{
		sources:  sources,
		store:    store,
		vector:   vector,
		ckpt:     ckpt,
		enricher: enricher,
		opts:     opts,
	}
}

// Run executes the ingestion. Per-unit failures are recorded and the run
// continues; only checkpoint corruption, checkpoint persistence failure,
// source listing failure, and cancellation abort the run.
func (ing *Ingestor) Run(ctx context.Context) (*RunSummary, error) {
	cp, err := ing.ckpt.Load()
	if err != nil {
		// Corrupt checkpoints need operator intervention, resuming on a
		// guess could silently skip data
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	if !ing.opts.DryRun {
		if err := ing.vector.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare vector index: %w", err)
		}
	}

	summary := &RunSummary{}
	for _, src := range ing.sources {
		units, err := src.Units(ctx)
		if err != nil {
			return summary, fmt.Errorf("list units of source %s: %w", src.Name(), err)
		}

		for _, unit := range units {
			// Cancellation is honored between units only, so a unit is
			// always fully committed or fully rolled back
			if err := ctx.Err(); err != nil {
				return summary, err
			}

			if !ing.wantEntity(unit.EntityID) {
				continue
			}
			if cp.IsCompleted(unit.ID) {
				summary.Skipped++
				if ing.opts.Verbose {
					fmt.Printf("= %s (already committed)\n", unit.ID)
				}
				continue
			}

			if err := ing.processUnit(ctx, src, unit, summary); err != nil {
				return summary, err
			}
		}
	}
	return summary, nil
}

// processUnit runs one unit end to end. Returns an error only for
// run-fatal conditions; unit failures are recorded and swallowed.
func (ing *Ingestor) processUnit(ctx context.Context, src extract.Source, unit model.SourceUnit, summary *RunSummary) error {
	records, err := src.Extract(ctx, unit)
	if err != nil {
		return ing.failUnit(summary, &extract.UnitError{UnitID: unit.ID, Err: err})
	}

	if ing.enricher != nil && !ing.opts.DryRun {
		records = append(records, ing.enrich(ctx, unit, records)...)
	}

	if ing.opts.DryRun {
		fmt.Printf("DRY-RUN %s: would commit %d records\n", unit.ID, len(records))
		return nil
	}

	if err := ing.store.ReplaceUnit(ctx, unit.ID, records); err != nil {
		return ing.failUnit(summary, &extract.UnitError{UnitID: unit.ID, Err: fmt.Errorf("record store: %w", err)})
	}

	// Stale passages from a previous shape of this unit must not survive
	// re-ingestion
	if err := ing.vector.DeleteUnit(ctx, unit.ID); err != nil {
		return ing.failUnit(summary, &extract.UnitError{UnitID: unit.ID, Err: fmt.Errorf("vector index: %w", err)})
	}
	if _, err := ing.vector.IndexUnit(ctx, unit.ID, records); err != nil {
		return ing.failUnit(summary, &extract.UnitError{UnitID: unit.ID, Err: fmt.Errorf("vector index: %w", err)})
	}

	ing.ckpt.MarkCompleted(unit.ID, len(records))
	if err := ing.ckpt.Persist(); err != nil {
		// Losing checkpoint durability makes every later commit unsafe
		return fmt.Errorf("persist checkpoint: %w", err)
	}

	summary.Committed++
	summary.Records += len(records)
	if ing.opts.Verbose {
		fmt.Printf("✓ %s: %d records\n", unit.ID, len(records))
	}
	return nil
}

// failUnit records one failed unit and keeps the run going
func (ing *Ingestor) failUnit(summary *RunSummary, unitErr *extract.UnitError) error {
	fmt.Printf("Warning: %v\n", unitErr)
	summary.Failed++
	ing.ckpt.RecordFailure(unitErr.UnitID, unitErr.Err)
	if err := ing.ckpt.Persist(); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	return nil
}

// enrich asks the generation service for a one-sentence gloss per
// category. Enrichment is best-effort: a failed generation drops the
// gloss, never the unit.
func (ing *Ingestor) enrich(ctx context.Context, unit model.SourceUnit, records []model.Record) []model.Record {
	facts := make(map[string][]string)
	for _, r := range records {
		if r.Value.IsNumeric() {
			facts[r.Category] = append(facts[r.Category], fmt.Sprintf("%s: %s", r.Attribute, r.RawText))
		}
	}

	var extra []model.Record
	for category, lines := range facts {
		resp, err := ing.enricher.Generate(ctx, llm.GenerateRequest{
			Prompt: llm.BuildEnrichmentPrompt(unit.EntityID, category, lines),
		})
		if err != nil {
			fmt.Printf("Warning: enrichment for %s/%s failed: %v\n", unit.EntityID, category, err)
			continue
		}
		extra = append(extra, model.Record{
			EntityID:   unit.EntityID,
			Category:   category,
			Attribute:  category + "_summary",
			Value:      model.TextValue(resp.Text),
			RawText:    resp.Text,
			SourceUnit: unit.ID,
		})
	}
	return extra
}

// wantEntity applies the entity filter
func (ing *Ingestor) wantEntity(entityID string) bool {
	if len(ing.opts.Entities) == 0 {
		return true
	}
	for _, e := range ing.opts.Entities {
		if e == entityID {
			return true
		}
	}
	return false
}
