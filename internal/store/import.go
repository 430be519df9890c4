package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"wikistore/internal/dump"
	"wikistore/internal/index"
	"wikistore/internal/wikitext"
)

// FileSpec identifies one input dump file, or one byte range of a
// multistream dump file, for an import. Seek, when non-zero, must land on
// a compression stream boundary (see dump.Open); it lets a multistream
// dump be split across several FileSpecs so Import can fan workers out
// within one file instead of being limited to one worker per file.
type FileSpec struct {
	Path        string
	Compression dump.Compression
	Seek        int64
}

// ImportOptions bounds and configures one import call.
type ImportOptions struct {
	// Limit caps the total number of pages written across every file; 0
	// means unlimited. Each worker checks the cap on its own, so it may be
	// overrun by up to one chunk's worth of pages per concurrent worker.
	Limit uint64
	// MaxWorkers bounds how many files are processed concurrently; 0
	// defaults to len(files).
	MaxWorkers int
	// OnProgress, if set, is called at most once every two seconds with
	// the cumulative pages and bytes written so far across all workers.
	// Intended for driving a CLI progress bar; never called concurrently
	// with itself.
	OnProgress func(pagesWritten, bytesWritten int64)
}

// ImportResult summarizes a completed import.
type ImportResult struct {
	ChunksWritten int
	PagesWritten  uint64
	BytesWritten  int64
	Duration      time.Duration
}

// errLimitReached unwinds the worker pool once the page-count limit has
// been reached; Import treats it as a clean stop, not a failure.
var errLimitReached = errors.New("store: import page limit reached")

// Import drives the parallel import pipeline: one worker per file, bounded
// by opts.MaxWorkers, each reading its file's pages, packing them into a
// chunk builder and an index batch, and finalizing both together once the
// chunk's size estimate crosses the configured threshold.
func (s *Store) Import(ctx context.Context, files []FileSpec, opts ImportOptions) (ImportResult, error) {
	start := time.Now()

	runDir := filepath.Join(s.tempDir, uuid.NewString())
	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return ImportResult{}, fmt.Errorf("store: create import staging dir: %w", err)
	}
	defer os.RemoveAll(runDir)

	var pagesWritten, bytesWritten, chunksWritten atomic.Int64
	var nextProgressDeadline atomic.Int64
	nextProgressDeadline.Store(time.Now().Add(2 * time.Second).UnixNano())

	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = len(files)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for _, fs := range files {
		fs := fs
		g.Go(func() error {
			return s.importFile(gctx, fs, opts, runDir, &pagesWritten, &bytesWritten, &chunksWritten, &nextProgressDeadline)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errLimitReached) {
		return ImportResult{}, err
	}

	if err := s.idx.Optimize(ctx); err != nil {
		return ImportResult{}, fmt.Errorf("store: optimize after import: %w", err)
	}

	return ImportResult{
		ChunksWritten: int(chunksWritten.Load()),
		PagesWritten:  uint64(pagesWritten.Load()),
		BytesWritten:  bytesWritten.Load(),
		Duration:      time.Since(start),
	}, nil
}

// importFile reads fs to completion, splitting the pages it yields across
// as many chunks as needed. Each chunk file is finalized first and its
// index batch is committed right after; if that commit fails, the chunk
// stays on disk without index rows.
func (s *Store) importFile(
	ctx context.Context,
	fs FileSpec,
	opts ImportOptions,
	tempDir string,
	pagesWritten, bytesWritten, chunksWritten *atomic.Int64,
	nextProgressDeadline *atomic.Int64,
) error {
	var compressedBytes, rawBytes atomic.Int64
	src, err := dump.Open(fs.Path, fs.Compression, fs.Seek, &compressedBytes, &rawBytes)
	if err != nil {
		return fmt.Errorf("store: open %s: %w", fs.Path, err)
	}
	defer src.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.Limit > 0 && uint64(pagesWritten.Load()) >= opts.Limit {
			return errLimitReached
		}

		builder := s.chunks.NewBuilder()
		batch := s.idx.NewBatch(s.maxValuesPerBatch)

		var anyPages bool
		for !builder.Full() {
			page, err := src.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("store: read %s: %w", fs.Path, err)
			}
			anyPages = true

			storeID, err := builder.Push(page)
			if err != nil {
				return fmt.Errorf("store: push page into chunk: %w", err)
			}

			var categories []string
			if page.Revision != nil && page.Revision.Text != nil {
				categories = wikitext.ParseCategories(*page.Revision.Text)
			}
			batch.Push(index.PendingPage{
				MediaWikiID: page.ID,
				StorePageId: storeID,
				Slug:        wikitext.Slug(page.Title),
				Title:       page.Title,
				Categories:  categories,
			})

			if opts.Limit > 0 && uint64(pagesWritten.Load())+uint64(builder.Len()) >= opts.Limit {
				break
			}
		}

		if !anyPages {
			return nil
		}

		pagesInChunk := int64(builder.Len())

		meta, err := builder.Finalize(tempDir)
		if err != nil {
			return fmt.Errorf("store: finalize chunk for %s: %w", fs.Path, err)
		}

		if err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("store: commit index batch for %s: %w", fs.Path, err)
		}

		chunksWritten.Add(1)
		pagesWritten.Add(pagesInChunk)
		bytesWritten.Add(meta.BytesLen)

		reportProgress(s, opts, nextProgressDeadline, pagesWritten.Load(), bytesWritten.Load())
	}
}

// reportProgress logs a progress line and invokes opts.OnProgress at most
// once every two seconds, using a compare-and-swap on a shared deadline so
// concurrent workers don't both report at once.
func reportProgress(s *Store, opts ImportOptions, deadline *atomic.Int64, pages, bytesWritten int64) {
	now := time.Now().UnixNano()
	d := deadline.Load()
	if now < d {
		return
	}
	next := time.Now().Add(2 * time.Second).UnixNano()
	if deadline.CompareAndSwap(d, next) {
		s.logger.Info("import progress", "pages_written", pages, "bytes_written", bytesWritten)
		if opts.OnProgress != nil {
			opts.OnProgress(pages, bytesWritten)
		}
	}
}
