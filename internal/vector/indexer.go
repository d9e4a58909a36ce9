package vector

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/mfukata/kensho/internal/client"
	"github.com/mfukata/kensho/internal/model"
	"github.com/mfukata/kensho/internal/worker"
)

// Match is one retrieval hit from the semantic index
type Match struct {
	EntityID  string
	Category  string
	Attribute string
	Content   string
	Certainty float64
}

// Indexer writes passages into a Weaviate class and retrieves them by
// vector similarity. Object IDs are derived from content, so re-indexing
// the same unit overwrites rather than duplicates.
type Indexer struct {
	api      *weaviate.Client
	class    string
	embedder Embedder
	upsert   *client.Client
	query    *client.Client
	pool     *worker.Pool
}

// NewIndexer creates an indexer against the configured Weaviate instance
func NewIndexer(cfg model.VectorConfig, embedder Embedder, upsert, query *client.Client, indexWorkers int) (*Indexer, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid vector index URL %q", cfg.URL)
	}

	api, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create vector client: %w", err)
	}

	class := cfg.Class
	if class == "" {
		class = "FactPassage"
	}

	return &Indexer{
		api:      api,
		class:    class,
		embedder: embedder,
		upsert:   upsert,
		query:    query,
		pool:     worker.NewPool(indexWorkers),
	}, nil
}

// EnsureSchema creates the passage class if it does not exist yet
func (ix *Indexer) EnsureSchema(ctx context.Context) error {
	_, err := ix.api.Schema().ClassGetter().WithClassName(ix.class).Do(ctx)
	if err == nil {
		return nil
	}

	class := &models.Class{
		Class:      ix.class,
		Vectorizer: "none", // vectors are supplied at write time
		Properties: []*models.Property{
			{Name: "entity_id", DataType: []string{"text"}},
			{Name: "category", DataType: []string{"text"}},
			{Name: "attribute", DataType: []string{"text"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "source_unit", DataType: []string{"text"}},
			{Name: "synced_at", DataType: []string{"int"}},
		},
	}
	if err := ix.api.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", ix.class, err)
	}
	return nil
}

// FormatPassage renders one record as retrieval text. Numeric values keep
// their raw form so the text carries the same token a user would ask
// about.
func FormatPassage(r model.Record) string {
	body := r.RawText
	if body == "" {
		switch r.Value.Kind {
		case model.ValueNumeric:
			body = strconv.FormatFloat(r.Value.Number, 'f', -1, 64)
		case model.ValueText:
			body = r.Value.Text
		default:
			body = "(データなし)"
		}
	}
	return fmt.Sprintf("【%s】%s / %s: %s", r.EntityID, r.Category, r.Attribute, body)
}

// vectorID derives a stable object ID from the record identity
func (ix *Indexer) vectorID(r model.Record) strfmt.UUID {
	hash := sha256.Sum256([]byte(ix.class + "\x00" + r.Key()))
	id, _ := uuid.FromBytes(hash[:16])
	return strfmt.UUID(id.String())
}

// IndexUnit embeds all records of one unit and upserts them in a single
// batch. Embedding calls run concurrently up to the pool size; any
// failure aborts the unit so the caller will not checkpoint it.
func (ix *Indexer) IndexUnit(ctx context.Context, unitID string, records []model.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	objects := make([]*models.Object, len(records))
	tasks := make([]worker.Task, len(records))
	for i, r := range records {
		i, r := i, r
		tasks[i] = func(ctx context.Context) error {
			content := FormatPassage(r)
			vec, err := ix.embedder.Embed(ctx, content)
			if err != nil {
				return err
			}
			objects[i] = &models.Object{
				Class:  ix.class,
				ID:     ix.vectorID(r),
				Vector: vec,
				Properties: map[string]interface{}{
					"entity_id":   r.EntityID,
					"category":    r.Category,
					"attribute":   r.Attribute,
					"content":     content,
					"source_unit": unitID,
					"synced_at":   time.Now().UnixMilli(),
				},
			}
			return nil
		}
	}

	if err := ix.pool.Run(ctx, tasks); err != nil {
		return 0, fmt.Errorf("embed unit %s: %w", unitID, err)
	}

	var resp []models.ObjectsGetResponse
	err := ix.upsert.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = ix.api.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("upsert unit %s: %w", unitID, err)
	}

	stored := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			stored++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			return stored, fmt.Errorf("upsert unit %s: %s", unitID, item.Result.Errors.Error[0].Message)
		}
		return stored, fmt.Errorf("upsert unit %s: item rejected", unitID)
	}
	return stored, nil
}

// DeleteUnit removes every passage belonging to one unit
func (ix *Indexer) DeleteUnit(ctx context.Context, unitID string) error {
	where := filters.Where().
		WithPath([]string{"source_unit"}).
		WithOperator(filters.Equal).
		WithValueText(unitID)

	return ix.upsert.Do(ctx, func(ctx context.Context) error {
		_, err := ix.api.Batch().ObjectsBatchDeleter().
			WithClassName(ix.class).
			WithOutput("minimal").
			WithWhere(where).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("delete unit %s: %w", unitID, err)
		}
		return nil
	})
}

// Search embeds the question and returns the topK closest passages
func (ix *Indexer) Search(ctx context.Context, question string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}

	vec, err := ix.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	nearVector := ix.api.GraphQL().NearVectorArgBuilder().WithVector(vec)
	fields := []graphql.Field{
		{Name: "entity_id"},
		{Name: "category"},
		{Name: "attribute"},
		{Name: "content"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	var result *models.GraphQLResponse
	err = ix.query.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = ix.api.GraphQL().Get().
			WithClassName(ix.class).
			WithFields(fields...).
			WithNearVector(nearVector).
			WithLimit(topK).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("vector search: %s", result.Errors[0].Message)
	}

	return parseMatches(result, ix.class), nil
}

// parseMatches converts a GraphQL response into matches
func parseMatches(result *models.GraphQLResponse, class string) []Match {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := data[class].([]interface{})
	if !ok {
		return nil
	}

	matches := make([]Match, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		match := Match{
			EntityID:  getString(m, "entity_id"),
			Category:  getString(m, "category"),
			Attribute: getString(m, "attribute"),
			Content:   getString(m, "content"),
		}
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			match.Certainty = getFloat64(additional, "certainty")
		}
		matches = append(matches, match)
	}
	return matches
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getFloat64(m map[string]interface{}, key string) float64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		}
	}
	return 0
}
