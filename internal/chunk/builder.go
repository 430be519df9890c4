package chunk

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"wikistore/internal/model"
)

// containerSignature and containerVersion form the 2-byte container
// header, followed by a 4-byte page count and the offset table. There is
// no separate "type" tag: every file this package writes is a page
// chunk, so there is nothing else for the signature to disambiguate.
// containerVersion lets the on-disk layout evolve without breaking
// readers of older chunks.
const (
	containerSignature = 0x77 // 'w'
	containerVersion    = 1
	headerSize          = 2 + 4 // signature+version, then page count
	offsetEntrySize     = 8
)

// Builder accumulates pages for a single chunk in memory, then writes the
// finished chunk atomically. A Builder is bound to one chunk id for its
// whole lifetime and is not safe for concurrent use by multiple goroutines.
type Builder struct {
	id           model.ChunkID
	dir          string
	fileMode     os.FileMode
	maxChunkLen  int64
	records      [][]byte
	sizeEstimate int64
}

// newBuilder constructs a builder for the given chunk id.
func newBuilder(id model.ChunkID, dir string, fileMode os.FileMode, maxChunkLen int64) *Builder {
	return &Builder{id: id, dir: dir, fileMode: fileMode, maxChunkLen: maxChunkLen}
}

// ID returns the chunk id this builder will finalize under.
func (b *Builder) ID() model.ChunkID { return b.id }

// Len reports how many pages have been pushed so far.
func (b *Builder) Len() int { return len(b.records) }

// Push appends a page to the chunk, returning the page's StorePageId. The
// size estimate used by Full is the sum of title and revision text byte
// lengths pushed so far; this undercounts serialized overhead by design
// (spec accepts that a chunk may exceed max_chunk_len by up to one page).
func (b *Builder) Push(p model.Page) (model.StorePageId, error) {
	rec, err := EncodeRecord(p)
	if err != nil {
		return model.StorePageId{}, fmt.Errorf("chunk %s: encode page %d: %w", b.id, p.ID, err)
	}
	index := uint64(len(b.records))
	b.records = append(b.records, rec)
	b.sizeEstimate += int64(len(p.Title))
	if p.Revision != nil && p.Revision.Text != nil {
		b.sizeEstimate += int64(len(*p.Revision.Text))
	}
	return model.StorePageId{ChunkID: b.id, PageChunkIndex: index}, nil
}

// Full reports whether the builder's size estimate has crossed
// max_chunk_len; the caller should stop pushing and Finalize.
func (b *Builder) Full() bool {
	return b.sizeEstimate > b.maxChunkLen
}

// Finalize writes the accumulated pages to a temp file, fsyncs, and
// renames it into place as the chunk's final filename. The builder must
// not be reused afterward.
func (b *Builder) Finalize(tempDir string) (model.ChunkMeta, error) {
	finalPath := filepath.Join(b.dir, FileName(uint64(b.id)))

	tmp, err := os.CreateTemp(tempDir, "chunk-*.tmp")
	if err != nil {
		return model.ChunkMeta{}, fmt.Errorf("chunk %s: create temp file: %w", b.id, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if err := tmp.Chmod(b.fileMode); err != nil {
		tmp.Close()
		return model.ChunkMeta{}, fmt.Errorf("chunk %s: chmod temp file: %w", b.id, err)
	}

	n, err := writeContainer(tmp, b.records)
	if err != nil {
		tmp.Close()
		return model.ChunkMeta{}, fmt.Errorf("chunk %s: write: %w", b.id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return model.ChunkMeta{}, fmt.Errorf("chunk %s: fsync: %w", b.id, err)
	}
	if err := tmp.Close(); err != nil {
		return model.ChunkMeta{}, fmt.Errorf("chunk %s: close: %w", b.id, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return model.ChunkMeta{}, fmt.Errorf("chunk %s: rename into place: %w", b.id, err)
	}

	return model.ChunkMeta{
		ID:       b.id,
		BytesLen: n,
		PagesLen: uint64(len(b.records)),
		Path:     finalPath,
	}, nil
}

// writeContainer serializes the container header, offset table, and page
// records to w, returning the total bytes written.
func writeContainer(w *os.File, records [][]byte) (int64, error) {
	count := len(records)
	offsets := make([]uint64, count+1)
	var cursor uint64
	for i, rec := range records {
		offsets[i] = cursor
		cursor += uint64(len(rec))
	}
	offsets[count] = cursor

	header := make([]byte, headerSize)
	header[0] = containerSignature
	header[1] = containerVersion
	binary.LittleEndian.PutUint32(header[2:], uint32(count))
	if _, err := w.Write(header); err != nil {
		return 0, err
	}

	offsetBuf := make([]byte, offsetEntrySize)
	for _, off := range offsets {
		binary.LittleEndian.PutUint64(offsetBuf, off)
		if _, err := w.Write(offsetBuf); err != nil {
			return 0, err
		}
	}

	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return 0, err
		}
	}

	total := int64(headerSize) + int64(len(offsets))*offsetEntrySize + int64(cursor)
	return total, nil
}
