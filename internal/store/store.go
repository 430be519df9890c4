// Package store composes the chunk layer and the index layer into the
// store facade: import, clear, and every read path exposed to callers.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"wikistore/internal/chunk"
	"wikistore/internal/index"
	"wikistore/internal/logging"
	"wikistore/internal/model"
)

// DefaultDumpName is the dump name used when Config.DumpName is empty.
const DefaultDumpName = "enwiki"

// Config configures a Store.
type Config struct {
	// StorePath is the base directory under which every dump's store
	// lives; the store's actual root is StorePath/DumpName.
	StorePath string
	// DumpName is the logical name of the dump this store holds (e.g.
	// "enwiki"); defaults to DefaultDumpName. One store root exists per
	// dump name, so multiple dumps can share one StorePath.
	DumpName          string
	MaxChunkLen       int64
	MaxValuesPerBatch int
	Logger            *slog.Logger
}

// Store composes the chunk layer and the index layer and exposes the
// public operations: clear, import, and every query path.
type Store struct {
	root              string
	chunks            *chunk.Manager
	idx               *index.Index
	tempDir           string
	maxValuesPerBatch int
	logger            *slog.Logger
}

// Open creates the store's directory layout if needed, acquires the
// chunk layer's writer lock, and opens the index database.
func Open(cfg Config) (*Store, error) {
	if cfg.StorePath == "" {
		return nil, fmt.Errorf("store: StorePath is required")
	}
	dumpName := cfg.DumpName
	if dumpName == "" {
		dumpName = DefaultDumpName
	}
	root := filepath.Join(cfg.StorePath, dumpName)

	logger := logging.Default(cfg.Logger).With("component", "store")

	chunksDir := filepath.Join(root, "chunks")
	indexDir := filepath.Join(root, "index")
	tempDir := filepath.Join(root, "temp")
	for _, d := range []string{chunksDir, indexDir, tempDir} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", d, err)
		}
	}

	chunks, err := chunk.NewManager(chunk.Config{
		Dir:         chunksDir,
		MaxChunkLen: cfg.MaxChunkLen,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	idx, err := index.Open(filepath.Join(indexDir, "index.db"), cfg.Logger)
	if err != nil {
		chunks.Close()
		return nil, err
	}

	maxValuesPerBatch := cfg.MaxValuesPerBatch
	if maxValuesPerBatch <= 0 {
		maxValuesPerBatch = index.DefaultMaxValuesPerBatch
	}

	return &Store{
		root:              root,
		chunks:            chunks,
		idx:               idx,
		tempDir:           tempDir,
		maxValuesPerBatch: maxValuesPerBatch,
		logger:            logger,
	}, nil
}

// Close releases the chunk writer lock and the index connection.
func (s *Store) Close() error {
	idxErr := s.idx.Close()
	chunkErr := s.chunks.Close()
	if idxErr != nil {
		return idxErr
	}
	return chunkErr
}

// Clear resets the store to empty: chunk files are deleted, then the
// index is dropped and recreated.
func (s *Store) Clear() error {
	if err := s.chunks.Clear(); err != nil {
		return fmt.Errorf("store: clear chunks: %w", err)
	}
	if err := s.idx.Clear(); err != nil {
		return fmt.Errorf("store: clear index: %w", err)
	}
	return nil
}

// PageView is a fully-resolved page as returned to external callers.
type PageView struct {
	StorePageId model.StorePageId
	Page        model.Page
}

func (s *Store) resolve(ctx context.Context, id model.StorePageId) (PageView, bool, error) {
	mc, err := s.chunks.Map(id.ChunkID)
	if err != nil {
		if errors.Is(err, chunk.ErrNotFound) {
			return PageView{}, false, nil
		}
		return PageView{}, false, err
	}
	defer s.chunks.Release(id.ChunkID)

	page, err := mc.GetPage(id.PageChunkIndex)
	if err != nil {
		return PageView{}, false, err
	}
	return PageView{StorePageId: id, Page: page}, true, nil
}

// GetPageByStoreID fetches the page addressed directly by StorePageId.
func (s *Store) GetPageByStoreID(ctx context.Context, id model.StorePageId) (PageView, bool, error) {
	return s.resolve(ctx, id)
}

// GetPageByMediaWikiID looks the page up by its original MediaWiki id.
func (s *Store) GetPageByMediaWikiID(ctx context.Context, id uint64) (PageView, bool, error) {
	row, ok, err := s.idx.GetByMediaWikiID(ctx, id)
	if err != nil || !ok {
		return PageView{}, ok, err
	}
	return s.resolve(ctx, row.StorePageId)
}

// GetPageBySlug resolves a page by its title slug, applying the
// case-insensitive prefix disambiguation rule.
func (s *Store) GetPageBySlug(ctx context.Context, slug string) (PageView, bool, error) {
	row, ok, err := s.idx.GetBySlug(ctx, slug)
	if err != nil || !ok {
		return PageView{}, ok, err
	}
	return s.resolve(ctx, row.StorePageId)
}

// GetCategory enumerates category slugs greater than lowerBound.
func (s *Store) GetCategory(ctx context.Context, lowerBound string, limit int) ([]string, error) {
	return s.idx.GetCategories(ctx, lowerBound, limit)
}

// GetCategoryPages enumerates pages belonging to a category.
func (s *Store) GetCategoryPages(ctx context.Context, categorySlug string, lowerBound uint64, limit int) ([]index.PageRow, error) {
	return s.idx.GetCategoryPages(ctx, categorySlug, lowerBound, limit)
}

// PageSearch runs a full-text query over page titles.
func (s *Store) PageSearch(ctx context.Context, query string, limit int) ([]index.PageRow, error) {
	return s.idx.Search(ctx, query, limit)
}

// ChunkIDVec returns every chunk id on disk, sorted ascending.
func (s *Store) ChunkIDVec() ([]model.ChunkID, error) {
	return s.chunks.ChunkIDs()
}

// GetChunkMetaByChunkID returns the ChunkMeta for a chunk id.
func (s *Store) GetChunkMetaByChunkID(id model.ChunkID) (model.ChunkMeta, bool, error) {
	return s.chunks.Meta(id)
}

// MapChunk returns a mapped, random-access view of a chunk. Callers must
// call ReleaseChunk when done.
func (s *Store) MapChunk(id model.ChunkID) (*chunk.MappedChunk, error) {
	return s.chunks.Map(id)
}

// ReleaseChunk releases a mapping obtained from MapChunk.
func (s *Store) ReleaseChunk(id model.ChunkID) {
	s.chunks.Release(id)
}
