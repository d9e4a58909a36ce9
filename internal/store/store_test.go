package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mfukata/kensho/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(entity, category, attr string, v model.Value, unit string) model.Record {
	return model.Record{
		EntityID:   entity,
		Category:   category,
		Attribute:  attr,
		Value:      v,
		RawText:    attr,
		SourceUnit: unit,
	}
}

func TestUpsert_ReplacesSameKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, rec("ヒカリ", "frames", "空前_startup_frame", model.NumericValue(7), "u1")))
	require.NoError(t, s.Upsert(ctx, rec("ヒカリ", "frames", "空前_startup_frame", model.NumericValue(8), "u1")))

	got, err := s.Lookup(ctx, "ヒカリ", "frames", "空前_startup_frame")
	require.NoError(t, err)
	require.Len(t, got, 1, "same key must replace, not duplicate")
	require.Equal(t, 8.0, got[0].Value.Number)
}

func TestLookup_PartialKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, rec("ヒカリ", "frames", "空前_startup_frame", model.NumericValue(8), "u1")))
	require.NoError(t, s.Upsert(ctx, rec("ヒカリ", "frames", "空前_total_frames", model.NumericValue(37), "u1")))
	require.NoError(t, s.Upsert(ctx, rec("ヒカリ", "attributes", "weight", model.NumericValue(95), "u1")))
	require.NoError(t, s.Upsert(ctx, rec("マリオ", "frames", "空前_startup_frame", model.NumericValue(16), "u2")))

	byEntity, err := s.Lookup(ctx, "ヒカリ", "", "")
	require.NoError(t, err)
	require.Len(t, byEntity, 3)

	byCategory, err := s.Lookup(ctx, "ヒカリ", "frames", "")
	require.NoError(t, err)
	require.Len(t, byCategory, 2)

	point, err := s.Lookup(ctx, "マリオ", "frames", "空前_startup_frame")
	require.NoError(t, err)
	require.Len(t, point, 1)
	require.Equal(t, 16.0, point[0].Value.Number)

	_, err = s.Lookup(ctx, "", "", "")
	require.Error(t, err, "entity id is required")
}

func TestLookup_PreservesMissingValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := rec("ヒカリ", "frames", "上B_note", model.MissingValue(), "u1")
	r.RawText = "ワイヤー復帰あり"
	require.NoError(t, s.Upsert(ctx, r))

	got, err := s.Lookup(ctx, "ヒカリ", "", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, model.ValueMissing, got[0].Value.Kind)
	require.Equal(t, "ワイヤー復帰あり", got[0].RawText)
}

func TestReplaceUnit_FullReingestion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []model.Record{
		rec("ヒカリ", "frames", "空前_startup_frame", model.NumericValue(7), "workbook:ヒカリ"),
		rec("ヒカリ", "frames", "空後_startup_frame", model.NumericValue(13), "workbook:ヒカリ"),
	}
	require.NoError(t, s.ReplaceUnit(ctx, "workbook:ヒカリ", first))

	// Corrected data drops one attribute and fixes another
	second := []model.Record{
		rec("ヒカリ", "frames", "空前_startup_frame", model.NumericValue(8), "workbook:ヒカリ"),
	}
	require.NoError(t, s.ReplaceUnit(ctx, "workbook:ヒカリ", second))

	got, err := s.Lookup(ctx, "ヒカリ", "", "")
	require.NoError(t, err)
	require.Len(t, got, 1, "re-ingestion replaces the whole unit")
	require.Equal(t, 8.0, got[0].Value.Number)
}

func TestEntitiesAndMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, rec("ヒカリ", "frames", "a", model.NumericValue(1), "u1")))
	require.NoError(t, s.Upsert(ctx, rec("マリオ", "frames", "a", model.NumericValue(2), "u2")))

	entities, err := s.Entities(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"ヒカリ", "マリオ"}, entities)

	matched, err := s.MatchEntities(ctx, "ヒカリの空前の発生は？")
	require.NoError(t, err)
	require.Equal(t, []string{"ヒカリ"}, matched)
}
