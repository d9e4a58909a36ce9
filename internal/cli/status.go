package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mfukata/kensho/internal/checkpoint"
	"github.com/mfukata/kensho/internal/store"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingestion progress and record store contents",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cp, err := checkpoint.NewStore(cfg.Checkpoint.Path).Load()
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	fmt.Println("Ingestion")
	fmt.Printf("  Completed units:   %d\n", len(cp.CompletedUnits))
	fmt.Printf("  Committed records: %d\n", cp.TotalCommittedRecords)
	fmt.Printf("  Failed units:      %d\n", cp.TotalFailedUnits)
	if cp.LastError != "" {
		fmt.Printf("  Last error:        %s\n", cp.LastError)
	}
	if !cp.UpdatedAt.IsZero() {
		fmt.Printf("  Last updated:      %s\n", cp.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}

	if verbose && len(cp.CompletedUnits) > 0 {
		units := make([]string, 0, len(cp.CompletedUnits))
		for u := range cp.CompletedUnits {
			units = append(units, u)
		}
		sort.Strings(units)
		fmt.Println("  Units:")
		for _, u := range units {
			fmt.Printf("    %s (%d records)\n", u, cp.CompletedUnits[u])
		}
	}

	if _, err := os.Stat(cfg.Store.Path); os.IsNotExist(err) {
		fmt.Printf("\nRecord store: not created (%s)\n", cfg.Store.Path)
		return nil
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	count, err := st.Count(ctx)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	entities, err := st.Entities(ctx)
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}

	fmt.Println("\nRecord store")
	fmt.Printf("  Path:     %s\n", cfg.Store.Path)
	fmt.Printf("  Records:  %d\n", count)
	fmt.Printf("  Entities: %d\n", len(entities))
	return nil
}
