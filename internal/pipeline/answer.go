package pipeline

import (
	"context"
	"fmt"

	"github.com/mfukata/kensho/internal/llm"
	"github.com/mfukata/kensho/internal/model"
	"github.com/mfukata/kensho/internal/vector"
	"github.com/mfukata/kensho/internal/verify"
)

// Searcher retrieves passages relevant to a question
type Searcher interface {
	Search(ctx context.Context, question string, topK int) ([]vector.Match, error)
}

// EntityMatcher finds stored entities mentioned in free text
type EntityMatcher interface {
	MatchEntities(ctx context.Context, text string) ([]string, error)
}

// AnswerResult is the outcome of one question
type AnswerResult struct {
	Question  string                     `json:"question"`
	Draft     string                     `json:"draft"`     // the generated answer before grounding
	Delivered bool                       `json:"delivered"` // false when the grounding pass suppressed it
	Entities  []string                   `json:"entities,omitempty"`
	Matches   []vector.Match             `json:"matches,omitempty"`
	Results   []model.VerificationResult `json:"results,omitempty"`
	Summary   model.GroundingSummary     `json:"summary"`
}

// Answerer drafts answers from retrieved passages and grounds every
// numeric claim against the record store before delivery
type Answerer struct {
	search   Searcher
	entities EntityMatcher
	provider llm.Provider
	verifier *verify.Verifier
	topK     int
}

// NewAnswerer creates an answering pipeline
func NewAnswerer(search Searcher, entities EntityMatcher, provider llm.Provider, verifier *verify.Verifier, topK int) *Answerer {
	if topK <= 0 {
		topK = 5
	}
	return &Answerer{
		search:   search,
		entities: entities,
		provider: provider,
		verifier: verifier,
		topK:     topK,
	}
}

// Answer runs retrieve, draft, verify for one question
func (a *Answerer) Answer(ctx context.Context, question string) (*AnswerResult, error) {
	if a.provider == nil {
		return nil, fmt.Errorf("no generation provider configured (set llm.provider)")
	}

	matches, err := a.search.Search(ctx, question, a.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	entities, err := a.mentionedEntities(ctx, question, matches)
	if err != nil {
		return nil, err
	}

	passages := make([]string, 0, len(matches))
	for _, m := range matches {
		passages = append(passages, m.Content)
	}

	resp, err := a.provider.Generate(ctx, llm.GenerateRequest{
		Prompt: llm.BuildAnswerPrompt(question, passages),
	})
	if err != nil {
		return nil, fmt.Errorf("draft answer: %w", err)
	}

	results, err := a.verifier.Verify(ctx, resp.Text, entities)
	if err != nil {
		return nil, fmt.Errorf("verify answer: %w", err)
	}
	summary := verify.Summarize(results)

	return &AnswerResult{
		Question:  question,
		Draft:     resp.Text,
		Delivered: !summary.Suppress,
		Entities:  entities,
		Matches:   matches,
		Results:   results,
		Summary:   summary,
	}, nil
}

// mentionedEntities merges entities named in the question with entities
// of the retrieved passages, deduplicated in first-seen order
func (a *Answerer) mentionedEntities(ctx context.Context, question string, matches []vector.Match) ([]string, error) {
	named, err := a.entities.MatchEntities(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("match entities: %w", err)
	}

	seen := make(map[string]bool)
	var entities []string
	for _, e := range named {
		if !seen[e] {
			seen[e] = true
			entities = append(entities, e)
		}
	}
	for _, m := range matches {
		if m.EntityID != "" && !seen[m.EntityID] {
			seen[m.EntityID] = true
			entities = append(entities, m.EntityID)
		}
	}
	return entities, nil
}
