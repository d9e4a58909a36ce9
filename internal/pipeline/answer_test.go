package pipeline

import (
	"context"
	"testing"

	"github.com/mfukata/kensho/internal/llm"
	"github.com/mfukata/kensho/internal/model"
	"github.com/mfukata/kensho/internal/vector"
	"github.com/mfukata/kensho/internal/verify"
)

// fixedSearcher returns canned matches
type fixedSearcher struct {
	matches []vector.Match
}

func (f *fixedSearcher) Search(ctx context.Context, question string, topK int) ([]vector.Match, error) {
	return f.matches, nil
}

// fixedMatcher returns canned entity names
type fixedMatcher struct {
	entities []string
}

func (f *fixedMatcher) MatchEntities(ctx context.Context, text string) ([]string, error) {
	return f.entities, nil
}

// fixedProvider returns a canned draft
type fixedProvider struct {
	text string
}

func (f *fixedProvider) Name() string                            { return "fixed" }
func (f *fixedProvider) IsAvailable(ctx context.Context) bool    { return true }
func (f *fixedProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	return &llm.GenerateResponse{Text: f.text, Model: "fixed"}, nil
}

// answerRecords is an in-memory record source for the verifier
type answerRecords map[string][]model.Record

func (a answerRecords) Lookup(ctx context.Context, entityID, category, attribute string) ([]model.Record, error) {
	return a[entityID], nil
}

func hikariSetup(draft string) *Answerer {
	records := answerRecords{
		"ヒカリ": {{
			EntityID:  "ヒカリ",
			Category:  "frames",
			Attribute: "空前_startup_frame",
			Value:     model.NumericValue(8),
		}},
	}
	search := &fixedSearcher{matches: []vector.Match{{
		EntityID:  "ヒカリ",
		Category:  "frames",
		Attribute: "空前_startup_frame",
		Content:   "【ヒカリ】frames / 空前_startup_frame: 8",
		Certainty: 0.95,
	}}}
	return NewAnswerer(search, &fixedMatcher{entities: []string{"ヒカリ"}}, &fixedProvider{text: draft}, verify.NewVerifier(records), 5)
}

func TestAnswer_GroundedAnswerIsDelivered(t *testing.T) {
	a := hikariSetup("ヒカリの空前の発生は8Fです。")

	result, err := a.Answer(context.Background(), "ヒカリの空前の発生は?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if !result.Delivered {
		t.Error("grounded answer should be delivered")
	}
	if result.Summary.Confirmed != 1 || result.Summary.Contradicted != 0 {
		t.Errorf("summary = %+v", result.Summary)
	}
}

func TestAnswer_ContradictedAnswerIsSuppressed(t *testing.T) {
	// Stored startup is 8, the draft hallucinates 9
	a := hikariSetup("ヒカリの空前の発生は9Fです。")

	result, err := a.Answer(context.Background(), "ヒカリの空前の発生は?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if result.Delivered {
		t.Error("contradicted answer must be suppressed")
	}
	if result.Summary.Contradicted != 1 {
		t.Errorf("summary = %+v", result.Summary)
	}
	if len(result.Results) != 1 || result.Results[0].Verdict != model.VerdictContradicted {
		t.Errorf("results = %+v", result.Results)
	}
}

func TestAnswer_RequiresProvider(t *testing.T) {
	a := NewAnswerer(&fixedSearcher{}, &fixedMatcher{}, nil, nil, 5)
	if _, err := a.Answer(context.Background(), "q"); err == nil {
		t.Fatal("expected error without a provider")
	}
}
