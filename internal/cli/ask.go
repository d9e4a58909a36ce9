package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mfukata/kensho/internal/client"
	"github.com/mfukata/kensho/internal/llm"
	"github.com/mfukata/kensho/internal/pipeline"
	"github.com/mfukata/kensho/internal/store"
	"github.com/mfukata/kensho/internal/verify"
)

var askTopK int

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from indexed facts, with numeric verification",
	Long: `Ask retrieves the most relevant indexed passages, drafts an answer
with the configured LLM, and checks every numeric claim in the draft
against the record store. A draft that contradicts a stored value is
suppressed rather than delivered.

  kensho ask "マリオの空前の発生は何F？"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "number of passages to retrieve (default from config)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.LLM.Provider == "" {
		return fmt.Errorf("no LLM provider configured (set llm.provider to openai or ollama)")
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer st.Close()

	indexer, err := buildIndexer(cfg)
	if err != nil {
		return err
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.Proxy))
	if err != nil {
		return err
	}

	topK := cfg.Vector.TopK
	if askTopK > 0 {
		topK = askTopK
	}

	generate := client.New("generate", cfg.RateLimits.Generate)
	answerer := pipeline.NewAnswerer(indexer, st,
		llm.WithRateLimit(provider, generate),
		verify.NewVerifier(st), topK)

	result, err := answerer.Answer(context.Background(), question)
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	printAnswer(result)
	return nil
}

func printAnswer(result *pipeline.AnswerResult) {
	if result.Delivered {
		fmt.Println(result.Draft)
	} else {
		fmt.Println("No reliable answer available: the drafted answer conflicts with stored data.")
	}

	fmt.Printf("\nGrounding index: %d/100 (%d confirmed, %d unsupported, %d contradicted)\n",
		result.Summary.Index, result.Summary.Confirmed,
		result.Summary.Unsupported, result.Summary.Contradicted)

	for _, caveat := range result.Summary.Caveats {
		fmt.Printf("Caveat: %s\n", caveat)
	}

	if verbose {
		if len(result.Entities) > 0 {
			fmt.Printf("\nEntities: %s\n", strings.Join(result.Entities, ", "))
		}
		if len(result.Matches) > 0 {
			fmt.Println("Passages:")
			for _, m := range result.Matches {
				fmt.Printf("  [%.2f] %s\n", m.Certainty, m.Content)
			}
		}
		for _, sig := range result.Summary.Signals {
			fmt.Printf("Signal (%s): %s\n", sig.Type, sig.Description)
		}
	}
}
