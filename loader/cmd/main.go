// Command rag-loader builds the reference corpus index.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"compliance-rag/config"
	"compliance-rag/loader/service"
	"compliance-rag/model"
	"compliance-rag/store"
)

var (
	configPath string
	refresh    bool
)

var rootCmd = &cobra.Command{
	Use:   "rag-loader",
	Short: "Reference corpus indexing tool",
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the reference index from the corpus directory",
	Long: `Chunks and embeds every supported document under CORPUS_DIR and stores
the result in the configured vector backend.

Without --refresh an existing non-empty index is left as it is.
With --refresh the index is rebuilt from the current corpus and stale
entries are discarded. A failed build keeps the previous index.`,
	RunE: runBuild,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	buildCmd.Flags().BoolVar(&refresh, "refresh", false, "rebuild even if the index is not empty")
	rootCmd.AddCommand(buildCmd)
}

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	vs, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer vs.Close()

	embedder, err := model.NewEmbedder(cfg)
	if err != nil {
		return err
	}

	result, err := service.New(cfg, vs, embedder).Build(ctx, refresh)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !result.Rebuilt {
		fmt.Fprintf(out, "Index already holds %d chunks; use --refresh to rebuild.\n", result.Chunks)
		return nil
	}
	fmt.Fprintln(out, "Index rebuilt")
	fmt.Fprintf(out, "  Documents: %d\n", result.Documents)
	fmt.Fprintf(out, "  Chunks: %d\n", result.Chunks)
	fmt.Fprintf(out, "  Duration: %s\n", result.Duration.Round(time.Millisecond))
	if len(result.Skipped) > 0 {
		fmt.Fprintln(out, "Skipped files:")
		for _, s := range result.Skipped {
			fmt.Fprintf(out, "  - %s: %s\n", s.Path, s.Reason)
		}
	}
	return nil
}
