// Package model holds the data types shared across the store: pages,
// revisions, and the identifiers that locate a page inside a chunk.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Page is the unit of storage. Pages are never mutated once ingested.
type Page struct {
	NsID     int32
	ID       uint64
	Title    string
	Revision *Revision
}

// Revision is the body of a page at the point it was ingested.
type Revision struct {
	ID         uint64
	Text       *string
	Categories []string
}

// ChunkID is a monotonically increasing identifier for a chunk file.
type ChunkID uint64

// String renders the chunk id as the 16 lowercase hex digits used in
// chunk filenames.
func (c ChunkID) String() string {
	return fmt.Sprintf("%016x", uint64(c))
}

// ParseChunkID parses 16 lowercase hex digits into a ChunkID.
func ParseChunkID(s string) (ChunkID, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("chunk id %q: want 16 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("chunk id %q: %w", s, err)
	}
	return ChunkID(v), nil
}

// StorePageId locates a page: the chunk it lives in, and its ordinal
// within that chunk.
type StorePageId struct {
	ChunkID        ChunkID
	PageChunkIndex uint64
}

// String renders "{chunk}.{index}" with both fields decimal.
func (s StorePageId) String() string {
	return fmt.Sprintf("%d.%d", uint64(s.ChunkID), s.PageChunkIndex)
}

// ParseStorePageId parses the "{chunk}.{index}" textual form.
func ParseStorePageId(s string) (StorePageId, error) {
	chunk, index, ok := strings.Cut(s, ".")
	if !ok {
		return StorePageId{}, fmt.Errorf("store page id %q: missing '.'", s)
	}
	c, err := strconv.ParseUint(chunk, 10, 64)
	if err != nil {
		return StorePageId{}, fmt.Errorf("store page id %q: bad chunk id: %w", s, err)
	}
	i, err := strconv.ParseUint(index, 10, 64)
	if err != nil {
		return StorePageId{}, fmt.Errorf("store page id %q: bad page index: %w", s, err)
	}
	return StorePageId{ChunkID: ChunkID(c), PageChunkIndex: i}, nil
}

// ChunkMeta is a runtime descriptor of a finalized chunk file.
type ChunkMeta struct {
	ID       ChunkID
	BytesLen int64
	PagesLen uint64
	Path     string
}
