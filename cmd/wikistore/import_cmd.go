package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"wikistore/internal/dump"
	"wikistore/internal/store"
)

func newImportCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [dump-dir]",
		Short: "Import Wikimedia XML dump files into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			compressionFlag, _ := cmd.Flags().GetString("compression")
			limit, _ := cmd.Flags().GetUint64("limit")
			maxWorkers, _ := cmd.Flags().GetInt("workers")
			maxChunkLen, _ := cmd.Flags().GetInt64("max-chunk-len")
			maxValuesPerBatch, _ := cmd.Flags().GetInt("max-values-per-batch")
			filterExpr, _ := cmd.Flags().GetString("filter")

			compression, err := parseCompression(compressionFlag)
			if err != nil {
				return err
			}

			var userFilter *regexp.Regexp
			if filterExpr != "" {
				userFilter, err = regexp.Compile(filterExpr)
				if err != nil {
					return fmt.Errorf("compile --filter: %w", err)
				}
			}

			paths, err := dump.Discover(args[0], compression, userFilter)
			if err != nil {
				return fmt.Errorf("discover dump files in %s: %w", args[0], err)
			}
			if len(paths) == 0 {
				return fmt.Errorf("no dump files found in %s", args[0])
			}

			s, err := openStoreFromFlags(cmd, logger, store.Config{MaxChunkLen: maxChunkLen, MaxValuesPerBatch: maxValuesPerBatch})
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()

			files := make([]store.FileSpec, len(paths))
			for i, p := range paths {
				files[i] = store.FileSpec{Path: p, Compression: compression}
			}

			bar := pb.Full.Start64(totalSize(paths))
			bar.Set(pb.Bytes, true)
			defer bar.Finish()

			res, err := s.Import(context.Background(), files, store.ImportOptions{
				Limit:      limit,
				MaxWorkers: maxWorkers,
				OnProgress: func(_, bytesWritten int64) {
					bar.SetCurrent(bytesWritten)
				},
			})
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			bar.Finish()

			fmt.Printf("imported %d pages into %d chunks (%d bytes) in %s\n",
				res.PagesWritten, res.ChunksWritten, res.BytesWritten, res.Duration)
			return nil
		},
	}

	cmd.Flags().String("compression", "bzip2", "dump file compression: none, bzip2, or lz4")
	cmd.Flags().Uint64("limit", 0, "stop after writing this many pages (0 = unlimited)")
	cmd.Flags().Int("workers", 0, "number of dump files to import concurrently (0 = one per file)")
	cmd.Flags().Int64("max-chunk-len", 0, "soft byte threshold per chunk (0 = default)")
	cmd.Flags().Int("max-values-per-batch", 0, "index insert batch size (0 = default)")
	cmd.Flags().String("filter", "", "additional regexp filter applied to discovered file names")
	return cmd
}

func newClearCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every chunk and reset the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStoreFromFlags(cmd, logger, store.Config{})
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()
			return s.Clear()
		},
	}
}

func parseCompression(s string) (dump.Compression, error) {
	switch s {
	case "none":
		return dump.CompressionNone, nil
	case "bzip2":
		return dump.CompressionBzip2, nil
	case "lz4":
		return dump.CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown --compression %q: want none, bzip2, or lz4", s)
	}
}

func totalSize(paths []string) int64 {
	var total int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}
