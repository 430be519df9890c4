// Package index implements the relational secondary-index layer: an
// embedded SQLite database mapping lookup keys (MediaWiki id, slug,
// category, full-text title query) to StorePageId, plus the
// category-membership relation.
//
// The sqlite3 driver must be built with the sqlite_fts5 build tag
// (github.com/mattn/go-sqlite3 -tags sqlite_fts5) for the page_fts
// virtual table to be usable.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"wikistore/internal/logging"
	"wikistore/internal/model"
	"wikistore/internal/wikitext"
)

// MaxQueryLimit bounds every paginated query operation.
const MaxQueryLimit = 100

// DefaultMaxValuesPerBatch is the default number of value-groups Commit
// packs into one multi-row INSERT statement per table.
const DefaultMaxValuesPerBatch = 100

var (
	ErrNotFound = errors.New("index: not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS page (
	mediawiki_id INTEGER PRIMARY KEY,
	chunk_id INTEGER NOT NULL,
	page_chunk_index INTEGER NOT NULL,
	slug TEXT NOT NULL
) STRICT;
CREATE INDEX IF NOT EXISTS index_page_by_slug ON page(slug COLLATE NOCASE);

CREATE VIRTUAL TABLE IF NOT EXISTS page_fts USING fts5(
	title,
	mediawiki_id UNINDEXED,
	prefix='2 3'
);

CREATE TABLE IF NOT EXISTS category (
	slug TEXT PRIMARY KEY
) STRICT, WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS page_categories (
	mediawiki_id INTEGER NOT NULL,
	category_slug TEXT NOT NULL,
	PRIMARY KEY (mediawiki_id, category_slug)
) STRICT;
CREATE UNIQUE INDEX IF NOT EXISTS index_page_categories_by_category
	ON page_categories(category_slug, mediawiki_id);
`

// Index wraps the embedded SQLite database backing the secondary
// indexes. All access goes through a mutex-guarded *sql.DB, matching the
// single-connection serialization the design notes describe.
type Index struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the schema exists.
func Open(path string, logger *slog.Logger) (*Index, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: create schema: %w", err)
	}

	return &Index{
		db:     db,
		path:   path,
		logger: logging.Default(logger).With("component", "index"),
	}, nil
}

// Close closes the underlying database connection.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.db.Close()
}

// Clear drops every table, vacuums, reopens the connection, and recreates
// the schema. Reopening (rather than a plain DROP+CREATE) is what
// actually shrinks the on-disk file.
func (ix *Index) Clear() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	stmts := []string{
		"DROP TABLE IF EXISTS page",
		"DROP TABLE IF EXISTS page_fts",
		"DROP TABLE IF EXISTS category",
		"DROP TABLE IF EXISTS page_categories",
	}
	for _, s := range stmts {
		if _, err := ix.db.Exec(s); err != nil {
			return fmt.Errorf("index: clear: %w", err)
		}
	}
	if _, err := ix.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("index: vacuum during clear: %w", err)
	}
	if err := ix.db.Close(); err != nil {
		return fmt.Errorf("index: close during clear: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+ix.path+"?_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return fmt.Errorf("index: reopen after clear: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("index: set WAL mode after clear: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("index: recreate schema after clear: %w", err)
	}
	ix.db = db
	return nil
}

// Optimize runs ANALYZE, VACUUM, and the FTS table's optimize command.
// Intended to run once after a bulk import completes.
func (ix *Index) Optimize(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, err := ix.db.ExecContext(ctx, "INSERT INTO page_fts(page_fts) VALUES('optimize')"); err != nil {
		return fmt.Errorf("index: fts optimize: %w", err)
	}
	if _, err := ix.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("index: analyze: %w", err)
	}
	if _, err := ix.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("index: vacuum: %w", err)
	}
	return nil
}

// PageRow is one row of the page table, as returned by lookup and
// enumeration operations.
type PageRow struct {
	MediaWikiID uint64
	StorePageId model.StorePageId
	Slug        string
}

// GetByMediaWikiID looks up a page by its MediaWiki id.
func (ix *Index) GetByMediaWikiID(ctx context.Context, id uint64) (PageRow, bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	row := ix.db.QueryRowContext(ctx,
		`SELECT chunk_id, page_chunk_index, slug FROM page WHERE mediawiki_id = ?`, id)
	var chunkID, pageIndex uint64
	var slug string
	if err := row.Scan(&chunkID, &pageIndex, &slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PageRow{}, false, nil
		}
		return PageRow{}, false, fmt.Errorf("index: get by mediawiki id %d: %w", id, err)
	}
	return PageRow{
		MediaWikiID: id,
		StorePageId: model.StorePageId{ChunkID: model.ChunkID(chunkID), PageChunkIndex: pageIndex},
		Slug:        slug,
	}, true, nil
}

// GetBySlug resolves a slug to a page, applying the disambiguation rule:
// if the case-insensitive prefix match is unique, return it; if multiple
// rows match, narrow to an exact case-sensitive slug match; return found
// only if exactly one remains.
func (ix *Index) GetBySlug(ctx context.Context, slug string) (PageRow, bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.db.QueryContext(ctx,
		`SELECT mediawiki_id, chunk_id, page_chunk_index, slug FROM page WHERE slug LIKE ? LIMIT 100`, slug+"%")
	if err != nil {
		return PageRow{}, false, fmt.Errorf("index: get by slug %q: %w", slug, err)
	}
	defer rows.Close()

	var candidates []PageRow
	for rows.Next() {
		var mwID, chunkID, pageIndex uint64
		var rowSlug string
		if err := rows.Scan(&mwID, &chunkID, &pageIndex, &rowSlug); err != nil {
			return PageRow{}, false, fmt.Errorf("index: scan slug row: %w", err)
		}
		candidates = append(candidates, PageRow{
			MediaWikiID: mwID,
			StorePageId: model.StorePageId{ChunkID: model.ChunkID(chunkID), PageChunkIndex: pageIndex},
			Slug:        rowSlug,
		})
	}
	if err := rows.Err(); err != nil {
		return PageRow{}, false, fmt.Errorf("index: get by slug %q: %w", slug, err)
	}

	switch len(candidates) {
	case 0:
		return PageRow{}, false, nil
	case 1:
		return candidates[0], true, nil
	}

	var exact []PageRow
	for _, c := range candidates {
		if c.Slug == slug {
			exact = append(exact, c)
		}
	}
	if len(exact) == 1 {
		return exact[0], true, nil
	}
	ix.logger.Warn("ambiguous slug lookup", "slug", slug, "candidates", len(candidates), "exact_matches", len(exact))
	return PageRow{}, false, nil
}

// GetCategories enumerates category slugs greater than lowerBound,
// ascending, capped at limit (clamped to MaxQueryLimit).
func (ix *Index) GetCategories(ctx context.Context, lowerBound string, limit int) ([]string, error) {
	limit = clampLimit(limit)
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.db.QueryContext(ctx,
		`SELECT slug FROM category WHERE slug > ? ORDER BY slug LIMIT ?`, lowerBound, limit)
	if err != nil {
		return nil, fmt.Errorf("index: get categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("index: scan category row: %w", err)
		}
		out = append(out, slug)
	}
	return out, rows.Err()
}

// GetCategoryPages enumerates pages in a category with mediawiki id
// greater than lowerBound, ascending, capped at limit.
func (ix *Index) GetCategoryPages(ctx context.Context, categorySlug string, lowerBound uint64, limit int) ([]PageRow, error) {
	limit = clampLimit(limit)
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.db.QueryContext(ctx, `
		SELECT p.mediawiki_id, p.chunk_id, p.page_chunk_index, p.slug
		FROM page_categories pc
		JOIN page p ON p.mediawiki_id = pc.mediawiki_id
		WHERE pc.category_slug = ? AND p.mediawiki_id > ?
		ORDER BY p.mediawiki_id
		LIMIT ?`, categorySlug, lowerBound, limit)
	if err != nil {
		return nil, fmt.Errorf("index: get category pages %q: %w", categorySlug, err)
	}
	defer rows.Close()

	var out []PageRow
	for rows.Next() {
		var mwID, chunkID, pageIndex uint64
		var slug string
		if err := rows.Scan(&mwID, &chunkID, &pageIndex, &slug); err != nil {
			return nil, fmt.Errorf("index: scan category page row: %w", err)
		}
		out = append(out, PageRow{
			MediaWikiID: mwID,
			StorePageId: model.StorePageId{ChunkID: model.ChunkID(chunkID), PageChunkIndex: pageIndex},
			Slug:        slug,
		})
	}
	return out, rows.Err()
}

// Search runs a full-text query over page titles, ordered by FTS rank,
// capped at limit.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]PageRow, error) {
	limit = clampLimit(limit)
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.db.QueryContext(ctx, `
		SELECT p.mediawiki_id, p.chunk_id, p.page_chunk_index, p.slug
		FROM page_fts
		JOIN page p ON p.mediawiki_id = page_fts.mediawiki_id
		WHERE page_fts MATCH ?
		ORDER BY rank ASC
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search %q: %w", query, err)
	}
	defer rows.Close()

	var out []PageRow
	for rows.Next() {
		var mwID, chunkID, pageIndex uint64
		var slug string
		if err := rows.Scan(&mwID, &chunkID, &pageIndex, &slug); err != nil {
			return nil, fmt.Errorf("index: scan search row: %w", err)
		}
		out = append(out, PageRow{
			MediaWikiID: mwID,
			StorePageId: model.StorePageId{ChunkID: model.ChunkID(chunkID), PageChunkIndex: pageIndex},
			Slug:        slug,
		})
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// PendingPage is one row queued for the page and page_fts tables.
type PendingPage struct {
	MediaWikiID uint64
	StorePageId model.StorePageId
	Slug        string
	Title       string
	Categories  []string
}

// Batch accumulates rows for one chunk's worth of pages and commits them
// as a single immediate transaction. Not safe for concurrent use; callers
// serialize by chunk (each chunk builder owns its own Batch).
type Batch struct {
	ix                *Index
	pages             []PendingPage
	maxValuesPerBatch int
}

// NewBatch returns a Batch bound to ix. maxValuesPerBatch caps how many
// rows Commit packs into a single multi-row INSERT statement; values <= 0
// fall back to DefaultMaxValuesPerBatch.
func (ix *Index) NewBatch(maxValuesPerBatch int) *Batch {
	if maxValuesPerBatch <= 0 {
		maxValuesPerBatch = DefaultMaxValuesPerBatch
	}
	return &Batch{ix: ix, maxValuesPerBatch: maxValuesPerBatch}
}

// Push queues one page's rows across the page, page_fts, category, and
// page_categories tables.
func (b *Batch) Push(p PendingPage) {
	b.pages = append(b.pages, p)
}

// Len reports how many pages are queued.
func (b *Batch) Len() int { return len(b.pages) }

// Commit flushes every queued row across all four tables inside a single
// immediate transaction, then clears the batch. Rows are grouped into
// multi-row INSERT statements of at most maxValuesPerBatch value-groups
// each, bounding both the number of round trips to SQLite and the number
// of bound parameters in any one statement. Primary-key conflicts on
// page/category/page_categories are ignored (first-writer-wins);
// page_fts accepts duplicates by design (no conflict clause).
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.pages) == 0 {
		return nil
	}

	b.ix.mu.Lock()
	defer b.ix.mu.Unlock()

	tx, err := b.ix.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("index: begin batch transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	var pageRows, ftsRows, categoryRows, pageCategoryRows [][]any
	seenCategory := make(map[string]bool)
	for _, p := range b.pages {
		pageRows = append(pageRows, []any{p.MediaWikiID, uint64(p.StorePageId.ChunkID), p.StorePageId.PageChunkIndex, p.Slug})
		ftsRows = append(ftsRows, []any{p.Title, p.MediaWikiID})
		for _, cat := range p.Categories {
			slug := wikitext.Slug(cat)
			if !seenCategory[slug] {
				seenCategory[slug] = true
				categoryRows = append(categoryRows, []any{slug})
			}
			pageCategoryRows = append(pageCategoryRows, []any{p.MediaWikiID, slug})
		}
	}

	groups := []struct {
		prefix         string
		rowPlaceholder string
		rows           [][]any
	}{
		{`INSERT OR IGNORE INTO page(mediawiki_id, chunk_id, page_chunk_index, slug)`, "(?, ?, ?, ?)", pageRows},
		{`INSERT INTO page_fts(title, mediawiki_id)`, "(?, ?)", ftsRows},
		{`INSERT OR IGNORE INTO category(slug)`, "(?)", categoryRows},
		{`INSERT OR IGNORE INTO page_categories(mediawiki_id, category_slug)`, "(?, ?)", pageCategoryRows},
	}
	for _, g := range groups {
		if err := b.flushRows(ctx, tx, g.prefix, g.rowPlaceholder, g.rows); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit batch: %w", err)
	}
	committed = true
	b.pages = b.pages[:0]
	return nil
}

// flushRows executes prefix as a multi-row "prefix VALUES (...),(...),..."
// statement, splitting rows into groups of at most b.maxValuesPerBatch so
// that no single statement binds an unbounded number of parameters.
func (b *Batch) flushRows(ctx context.Context, tx *sql.Tx, prefix, rowPlaceholder string, rows [][]any) error {
	for start := 0; start < len(rows); start += b.maxValuesPerBatch {
		end := min(start+b.maxValuesPerBatch, len(rows))
		group := rows[start:end]

		var sb strings.Builder
		sb.WriteString(prefix)
		sb.WriteString(" VALUES ")
		args := make([]any, 0, len(group)*len(group[0]))
		for i, row := range group {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(rowPlaceholder)
			args = append(args, row...)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("index: batched insert %q: %w", prefix, err)
		}
	}
	return nil
}

