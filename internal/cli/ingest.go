package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfukata/kensho/internal/cache"
	"github.com/mfukata/kensho/internal/checkpoint"
	"github.com/mfukata/kensho/internal/client"
	"github.com/mfukata/kensho/internal/extract"
	"github.com/mfukata/kensho/internal/llm"
	"github.com/mfukata/kensho/internal/model"
	"github.com/mfukata/kensho/internal/pipeline"
	"github.com/mfukata/kensho/internal/store"
	"github.com/mfukata/kensho/internal/vector"
)

var (
	ingestResume   bool
	ingestDryRun   bool
	ingestEntities []string
	ingestDelay    time.Duration
	ingestRetries  int
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load configured sources into the record store and vector index",
	Long: `Ingest extracts records from the configured sources (workbook,
documents, knowledge base) and writes each source unit to both the
structured record store and the vector index.

A unit is checkpointed only after both writes succeeded, so an
interrupted run can be resumed without re-committing finished units:

  kensho ingest --resume
  kensho ingest --dry-run
  kensho ingest --entities ヒカリ,マリオ --delay 500ms`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolVar(&ingestResume, "resume", false, "continue from the existing checkpoint")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "extract and report, but write nothing")
	ingestCmd.Flags().StringSliceVar(&ingestEntities, "entities", nil, "restrict ingestion to these entities")
	ingestCmd.Flags().DurationVar(&ingestDelay, "delay", 0, "override minimum delay between external calls")
	ingestCmd.Flags().IntVar(&ingestRetries, "retries", 0, "override throttling retry budget")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRateOverrides(cfg)

	// Stop between units on SIGINT/SIGTERM, never mid-unit
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := buildSources(cfg)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources configured (set sources.workbook_path, sources.document_dir, or knowledge_base.base_url)")
	}

	ckpt := checkpoint.NewStore(cfg.Checkpoint.Path)
	if !ingestResume && !ingestDryRun {
		if err := os.Remove(cfg.Checkpoint.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reset checkpoint: %w", err)
		}
	}

	var recordStore pipeline.RecordStore
	var vectorSink pipeline.VectorSink
	var enricher llm.Provider

	if ingestDryRun {
		recordStore, vectorSink = nil, noopVector{}
	} else {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open record store: %w", err)
		}
		defer st.Close()
		recordStore = st

		indexer, err := buildIndexer(cfg)
		if err != nil {
			return err
		}
		vectorSink = indexer

		if cfg.LLM.EnrichRecords && cfg.LLM.Provider != "" {
			enricher, err = llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.Proxy))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: enrichment disabled: %v\n", err)
			}
			enricher = llm.WithRateLimit(enricher, client.New("generate", cfg.RateLimits.Generate))
		}
	}

	ing := pipeline.NewIngestor(sources, recordStore, vectorSink, ckpt, enricher, pipeline.Options{
		DryRun:   ingestDryRun,
		Entities: ingestEntities,
		Verbose:  cfg.Output.Verbose,
	})

	summary, err := ing.Run(ctx)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Printf("\nIngestion complete: %d committed, %d skipped, %d failed (%d records)\n",
		summary.Committed, summary.Skipped, summary.Failed, summary.Records)

	if summary.Failed > 0 {
		return fmt.Errorf("%d unit(s) permanently failed, re-run with --resume to retry them", summary.Failed)
	}
	return nil
}

// applyRateOverrides applies the --delay/--retries flags to every
// operation class
func applyRateOverrides(cfg *model.Config) {
	budgets := []*model.RateLimitConfig{
		&cfg.RateLimits.Embed,
		&cfg.RateLimits.Generate,
		&cfg.RateLimits.Upsert,
		&cfg.RateLimits.Query,
	}
	for _, b := range budgets {
		if ingestDelay > 0 {
			b.Delay = ingestDelay
		}
		if ingestRetries > 0 {
			b.MaxRetries = ingestRetries
		}
	}
}

// buildSources creates one extract.Source per configured input
func buildSources(cfg *model.Config) ([]extract.Source, error) {
	var sources []extract.Source

	if cfg.Sources.WorkbookPath != "" {
		if _, err := os.Stat(cfg.Sources.WorkbookPath); err == nil {
			sources = append(sources, extract.NewWorkbookSource(cfg.Sources.WorkbookPath))
		} else if verbose {
			fmt.Fprintf(os.Stderr, "Skipping workbook source: %s not found\n", cfg.Sources.WorkbookPath)
		}
	}
	if cfg.Sources.DocumentDir != "" {
		if _, err := os.Stat(cfg.Sources.DocumentDir); err == nil {
			sources = append(sources, extract.NewDocumentSource(cfg.Sources.DocumentDir))
		} else if verbose {
			fmt.Fprintf(os.Stderr, "Skipping document source: %s not found\n", cfg.Sources.DocumentDir)
		}
	}
	if cfg.KB.BaseURL != "" {
		sources = append(sources, extract.NewKBSource(extract.KBConfig{
			BaseURL:    cfg.KB.BaseURL,
			Token:      cfg.KB.Token,
			PageSize:   cfg.KB.PageSize,
			Timeout:    cfg.KB.Timeout,
			HTTPProxy:  cfg.Proxy.HTTP,
			HTTPSProxy: cfg.Proxy.HTTPS,
		}))
	}
	return sources, nil
}

// buildIndexer assembles the embedding and vector stack
func buildIndexer(cfg *model.Config) (*vector.Indexer, error) {
	var embedCache cache.Cache
	if cfg.Cache.Enabled {
		embedCache = cache.NewLayeredCache(30*time.Minute, cfg.Cache.Dir, cfg.Cache.TTL)
	}

	embedder, err := vector.NewOpenAIEmbedder(cfg.Embedding,
		client.New("embed", cfg.RateLimits.Embed), embedCache)
	if err != nil {
		return nil, fmt.Errorf("configure embedder: %w", err)
	}

	return vector.NewIndexer(cfg.Vector, embedder,
		client.New("upsert", cfg.RateLimits.Upsert),
		client.New("query", cfg.RateLimits.Query),
		cfg.Pipeline.IndexWorkers)
}

// noopVector satisfies the sink interface during dry runs
type noopVector struct{}

func (noopVector) EnsureSchema(ctx context.Context) error          { return nil }
func (noopVector) DeleteUnit(ctx context.Context, u string) error  { return nil }
func (noopVector) IndexUnit(ctx context.Context, u string, r []model.Record) (int, error) {
	return 0, nil
}
