// Command wikistore imports Wikimedia XML dumps into a local store and
// serves lookups against it.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"wikistore/internal/logging"
	"wikistore/internal/store"
)

// defaultDumpName reads WIKISTORE_DUMP_NAME so operators running against a
// single dump don't need to pass --dump-name on every invocation.
func defaultDumpName() string {
	if v := os.Getenv("WIKISTORE_DUMP_NAME"); v != "" {
		return v
	}
	return store.DefaultDumpName
}

// openStoreFromFlags opens the store addressed by the --store-path and
// --dump-name persistent flags, shared by every subcommand.
func openStoreFromFlags(cmd *cobra.Command, logger *slog.Logger, cfg store.Config) (*store.Store, error) {
	storePath, _ := cmd.Flags().GetString("store-path")
	dumpName, _ := cmd.Flags().GetString("dump-name")
	cfg.StorePath = storePath
	cfg.DumpName = dumpName
	cfg.Logger = logger
	return store.Open(cfg)
}

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	var logLevels []string

	rootCmd := &cobra.Command{
		Use:   "wikistore",
		Short: "Import and query Wikimedia XML dumps",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyLogLevels(filterHandler, logLevels)
		},
	}
	rootCmd.PersistentFlags().String("store-path", "", "base directory holding one subdirectory per dump name (required)")
	rootCmd.MarkPersistentFlagRequired("store-path")
	rootCmd.PersistentFlags().String("dump-name", defaultDumpName(), "logical dump name; one store root exists per dump name")
	rootCmd.PersistentFlags().StringArrayVar(&logLevels, "log-level", nil,
		`raise logging for one component, e.g. --log-level index=debug (components: store, chunk, index)`)

	rootCmd.AddCommand(
		newImportCmd(logger),
		newClearCmd(logger),
		newGetCmd(logger),
		newSearchCmd(logger),
		newCategoryCmd(logger),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyLogLevels parses "component=level" pairs and raises the named
// component's minimum level on filterHandler.
func applyLogLevels(filterHandler *logging.ComponentFilterHandler, pairs []string) error {
	for _, pair := range pairs {
		component, levelStr, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid --log-level %q, want component=level", pair)
		}
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelStr)); err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", pair, err)
		}
		filterHandler.SetLevel(component, level)
	}
	return nil
}
