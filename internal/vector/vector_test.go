package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/weaviate/weaviate/entities/models"

	"github.com/mfukata/kensho/internal/cache"
	"github.com/mfukata/kensho/internal/client"
	"github.com/mfukata/kensho/internal/model"
)

func TestFormatPassage(t *testing.T) {
	r := model.Record{
		EntityID:  "ヒカリ",
		Category:  "frames",
		Attribute: "空前_startup_frame",
		Value:     model.NumericValue(8),
		RawText:   "8",
	}
	got := FormatPassage(r)
	want := "【ヒカリ】frames / 空前_startup_frame: 8"
	if got != want {
		t.Errorf("FormatPassage = %q, want %q", got, want)
	}

	// Missing values still yield a passage so the attribute is findable
	r.Value = model.MissingValue()
	r.RawText = ""
	if got := FormatPassage(r); got != "【ヒカリ】frames / 空前_startup_frame: (データなし)" {
		t.Errorf("FormatPassage missing = %q", got)
	}
}

func TestVectorID_Deterministic(t *testing.T) {
	ix := &Indexer{class: "FactPassage"}
	r := model.Record{EntityID: "マリオ", Category: "frames", Attribute: "空前_damage"}

	a := ix.vectorID(r)
	b := ix.vectorID(r)
	if a != b {
		t.Errorf("same record produced different IDs: %s vs %s", a, b)
	}

	r2 := r
	r2.Attribute = "空前_total_frames"
	if ix.vectorID(r2) == a {
		t.Error("different attributes must not collide")
	}
}

func TestParseMatches(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				"FactPassage": []interface{}{
					map[string]interface{}{
						"entity_id": "ヒカリ",
						"category":  "frames",
						"attribute": "空前_startup_frame",
						"content":   "【ヒカリ】frames / 空前_startup_frame: 8",
						"_additional": map[string]interface{}{
							"certainty": 0.93,
						},
					},
				},
			},
		},
	}

	matches := parseMatches(resp, "FactPassage")
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	if m.EntityID != "ヒカリ" || m.Attribute != "空前_startup_frame" {
		t.Errorf("match = %+v", m)
	}
	if m.Certainty != 0.93 {
		t.Errorf("certainty = %v, want 0.93", m.Certainty)
	}
}

func TestParseMatches_EmptyResponse(t *testing.T) {
	if got := parseMatches(&models.GraphQLResponse{Data: map[string]models.JSONObject{}}, "FactPassage"); got != nil {
		t.Errorf("expected nil matches, got %v", got)
	}
}

// newEmbeddingServer serves a minimal OpenAI-compatible embeddings
// endpoint and counts requests.
func newEmbeddingServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
			"model": "text-embedding-3-small",
			"usage": map[string]int{"prompt_tokens": 4, "total_tokens": 4},
		})
	}))
}

func TestOpenAIEmbedder_CachesVectors(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbeddingServer(t, &calls)
	defer srv.Close()

	limiter := client.New("embed", model.RateLimitConfig{})
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	e, err := NewOpenAIEmbedder(model.EmbeddingConfig{
		Model:   "text-embedding-3-small",
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
	}, limiter, c)
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder failed: %v", err)
	}

	ctx := context.Background()
	vec, err := e.Embed(ctx, "ヒカリの空前の発生")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("vector length = %d, want 3", len(vec))
	}

	if _, err := e.Embed(ctx, "ヒカリの空前の発生"); err != nil {
		t.Fatalf("cached Embed failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("API calls = %d, want 1 (second embed should hit the cache)", calls.Load())
	}

	if _, err := e.Embed(ctx, "別のテキスト"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("API calls = %d, want 2 for distinct text", calls.Load())
	}
}

func TestOpenAIEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(model.EmbeddingConfig{}, nil, nil)
	if err == nil {
		t.Fatal("expected error without API key")
	}
}
