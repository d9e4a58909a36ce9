package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mfukata/kensho/internal/checkpoint"
	"github.com/mfukata/kensho/internal/extract"
	"github.com/mfukata/kensho/internal/model"
)

// fakeSource serves fixed units and records
type fakeSource struct {
	units    []model.SourceUnit
	records  map[string][]model.Record
	badUnits map[string]error
	extracts int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Units(ctx context.Context) ([]model.SourceUnit, error) {
	return f.units, nil
}

func (f *fakeSource) Extract(ctx context.Context, unit model.SourceUnit) ([]model.Record, error) {
	f.extracts++
	if err := f.badUnits[unit.ID]; err != nil {
		return nil, err
	}
	return f.records[unit.ID], nil
}

// fakeStore records ReplaceUnit calls
type fakeStore struct {
	replaced map[string]int // unitID -> record count of last write
	calls    int
	failOn   string
}

func newFakeStore() *fakeStore {
	return &fakeStore{replaced: make(map[string]int)}
}

func (f *fakeStore) ReplaceUnit(ctx context.Context, unitID string, records []model.Record) error {
	if unitID == f.failOn {
		return errors.New("disk full")
	}
	f.calls++
	f.replaced[unitID] = len(records)
	return nil
}

// fakeVector records index calls and can fail per unit
type fakeVector struct {
	indexed map[string]int
	deleted map[string]int
	failOn  string
}

func newFakeVector() *fakeVector {
	return &fakeVector{indexed: make(map[string]int), deleted: make(map[string]int)}
}

func (f *fakeVector) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeVector) DeleteUnit(ctx context.Context, unitID string) error {
	f.deleted[unitID]++
	return nil
}

func (f *fakeVector) IndexUnit(ctx context.Context, unitID string, records []model.Record) (int, error) {
	if unitID == f.failOn {
		return 0, errors.New("vector index unavailable")
	}
	f.indexed[unitID] += len(records)
	return len(records), nil
}

func testSource() *fakeSource {
	mk := func(entity string, n int) []model.Record {
		recs := make([]model.Record, n)
		for i := range recs {
			recs[i] = model.Record{
				EntityID:   entity,
				Category:   "frames",
				Attribute:  fmt.Sprintf("attr_%d", i),
				Value:      model.NumericValue(float64(i)),
				SourceUnit: "workbook:" + entity,
			}
		}
		return recs
	}
	return &fakeSource{
		units: []model.SourceUnit{
			{ID: "workbook:05. マリオ", Kind: model.UnitWorkbook, EntityID: "マリオ", Label: "05. マリオ"},
			{ID: "workbook:71. ヒカリ", Kind: model.UnitWorkbook, EntityID: "ヒカリ", Label: "71. ヒカリ"},
		},
		records: map[string][]model.Record{
			"workbook:05. マリオ": mk("マリオ", 3),
			"workbook:71. ヒカリ": mk("ヒカリ", 5),
		},
		badUnits: map[string]error{},
	}
}

func newTestIngestor(t *testing.T, src *fakeSource, st *fakeStore, vec *fakeVector, ckptPath string, opts Options) *Ingestor {
	t.Helper()
	return NewIngestor([]extract.Source{src}, st, vec, checkpoint.NewStore(ckptPath), nil, opts)
}

func TestRun_CommitsAllUnits(t *testing.T) {
	src := testSource()
	st := newFakeStore()
	vec := newFakeVector()
	ckptPath := filepath.Join(t.TempDir(), "checkpoint.json")

	ing := newTestIngestor(t, src, st, vec, ckptPath, Options{})
	summary, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Committed != 2 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Records != 8 {
		t.Errorf("records = %d, want 8", summary.Records)
	}
	if st.replaced["workbook:71. ヒカリ"] != 5 {
		t.Errorf("store writes = %v", st.replaced)
	}
	if vec.indexed["workbook:71. ヒカリ"] != 5 {
		t.Errorf("vector writes = %v", vec.indexed)
	}
}

func TestRun_ResumeCommitsNothing(t *testing.T) {
	src := testSource()
	st := newFakeStore()
	vec := newFakeVector()
	ckptPath := filepath.Join(t.TempDir(), "checkpoint.json")

	if _, err := newTestIngestor(t, src, st, vec, ckptPath, Options{}).Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	st2 := newFakeStore()
	vec2 := newFakeVector()
	summary, err := newTestIngestor(t, src, st2, vec2, ckptPath, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if summary.Committed != 0 || summary.Skipped != 2 {
		t.Errorf("resume summary = %+v", summary)
	}
	if st2.calls != 0 {
		t.Errorf("resume run wrote %d units, want 0", st2.calls)
	}
}

func TestRun_VectorFailureLeavesUnitUncommitted(t *testing.T) {
	src := testSource()
	st := newFakeStore()
	vec := newFakeVector()
	vec.failOn = "workbook:71. ヒカリ"
	ckptPath := filepath.Join(t.TempDir(), "checkpoint.json")

	summary, err := newTestIngestor(t, src, st, vec, ckptPath, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Committed != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}

	// The record store write happened, but the unit must not be
	// checkpointed: a later run reprocesses it fully
	st2 := newFakeStore()
	vec2 := newFakeVector()
	summary, err = newTestIngestor(t, src, st2, vec2, ckptPath, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Committed != 1 || summary.Skipped != 1 {
		t.Errorf("second summary = %+v", summary)
	}
	if st2.replaced["workbook:71. ヒカリ"] != 5 {
		t.Errorf("failed unit was not reprocessed: %v", st2.replaced)
	}
}

func TestRun_ExtractionFailureIsIsolated(t *testing.T) {
	src := testSource()
	src.badUnits["workbook:05. マリオ"] = errors.New("malformed sheet")
	st := newFakeStore()
	vec := newFakeVector()
	ckptPath := filepath.Join(t.TempDir(), "checkpoint.json")

	summary, err := newTestIngestor(t, src, st, vec, ckptPath, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Failed != 1 || summary.Committed != 1 {
		t.Errorf("summary = %+v", summary)
	}

	// Failure details survive in the checkpoint for --resume
	cp, err := checkpoint.NewStore(ckptPath).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp.TotalFailedUnits != 1 {
		t.Errorf("failed units = %d, want 1", cp.TotalFailedUnits)
	}
	if cp.LastError == "" {
		t.Error("failure cause was not preserved")
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	src := testSource()
	st := newFakeStore()
	vec := newFakeVector()
	ckptPath := filepath.Join(t.TempDir(), "checkpoint.json")

	summary, err := newTestIngestor(t, src, st, vec, ckptPath, Options{DryRun: true}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Committed != 0 {
		t.Errorf("dry run committed %d units", summary.Committed)
	}
	if st.calls != 0 || len(vec.indexed) != 0 {
		t.Error("dry run must not write to either store")
	}

	// A real run afterwards still processes everything
	summary, err = newTestIngestor(t, src, st, vec, ckptPath, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("real run failed: %v", err)
	}
	if summary.Committed != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRun_EntityFilter(t *testing.T) {
	src := testSource()
	st := newFakeStore()
	vec := newFakeVector()
	ckptPath := filepath.Join(t.TempDir(), "checkpoint.json")

	summary, err := newTestIngestor(t, src, st, vec, ckptPath, Options{Entities: []string{"ヒカリ"}}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Committed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if _, ok := st.replaced["workbook:05. マリオ"]; ok {
		t.Error("filtered entity was ingested")
	}
}

func TestRun_CancelledBetweenUnits(t *testing.T) {
	src := testSource()
	st := newFakeStore()
	vec := newFakeVector()
	ckptPath := filepath.Join(t.TempDir(), "checkpoint.json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestIngestor(t, src, st, vec, ckptPath, Options{}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if st.calls != 0 {
		t.Error("cancelled run must not start a unit")
	}
}
