package chunk

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"

	"wikistore/internal/model"
	"wikistore/internal/wikitext"
)

// MappedChunk is a read-only, memory-mapped view of a finalized chunk
// file. The container root (page count, offset table) is validated once
// at Open; individual pages are decoded lazily on GetPage, never eagerly.
type MappedChunk struct {
	id      model.ChunkID
	file    *os.File
	data    []byte
	offsets []uint64 // len = pageCount+1, relative to end of offset table
	dataOff int      // absolute offset where the offset table ends / page data begins
}

// OpenMappedChunk opens and memory-maps path, validating the container
// header and offset table lazily (on open) but not any individual page.
func OpenMappedChunk(id model.ChunkID, path string) (*MappedChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := info.Size()
	if size < int64(headerSize) {
		f.Close()
		return nil, fmt.Errorf("%w: %s: file smaller than header", ErrCorrupt, path)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("chunk %s: mmap: %w", id, err)
	}

	mc := &MappedChunk{id: id, file: f, data: data}
	if err := mc.validate(); err != nil {
		syscall.Munmap(data)
		f.Close()
		return nil, err
	}
	return mc, nil
}

func (mc *MappedChunk) validate() error {
	data := mc.data
	if data[0] != containerSignature {
		return fmt.Errorf("%w: %s", ErrBadSignature, mc.id)
	}
	if data[1] != containerVersion {
		return fmt.Errorf("%w: %s", ErrBadVersion, mc.id)
	}
	count := binary.LittleEndian.Uint32(data[2:headerSize])

	tableEnd := headerSize + (int(count)+1)*offsetEntrySize
	if tableEnd > len(data) {
		return fmt.Errorf("%w: %s: offset table truncated", ErrCorrupt, mc.id)
	}

	offsets := make([]uint64, count+1)
	cursor := headerSize
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(data[cursor : cursor+offsetEntrySize])
		cursor += offsetEntrySize
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return fmt.Errorf("%w: %s: offset table not monotonic", ErrCorrupt, mc.id)
		}
	}
	if tableEnd+int(offsets[count]) > len(data) {
		return fmt.Errorf("%w: %s: page data truncated", ErrCorrupt, mc.id)
	}

	mc.offsets = offsets
	mc.dataOff = tableEnd
	return nil
}

// PagesLen reports how many pages this chunk holds.
func (mc *MappedChunk) PagesLen() uint64 {
	return uint64(len(mc.offsets) - 1)
}

// GetPage decodes the page at the given 0-based ordinal, bounds-checked
// against the chunk's page count. Only the requested page's bytes are
// decoded; earlier pages are never touched.
func (mc *MappedChunk) GetPage(index uint64) (model.Page, error) {
	if index+1 >= uint64(len(mc.offsets)) {
		return model.Page{}, fmt.Errorf("%w: chunk %s index %d", ErrPageOutOfRange, mc.id, index)
	}
	start := mc.dataOff + int(mc.offsets[index])
	end := mc.dataOff + int(mc.offsets[index+1])
	page, err := DecodeRecord(mc.data[start:end])
	if err != nil {
		return model.Page{}, fmt.Errorf("%w: chunk %s page %d: %v", ErrCorrupt, mc.id, index, err)
	}
	if page.Revision != nil && page.Revision.Text != nil {
		page.Revision.Categories = wikitext.ParseCategories(*page.Revision.Text)
	}
	return page, nil
}

// Pages returns an iterator-style view over every page in order.
func (mc *MappedChunk) Pages() func(yield func(uint64, model.Page, error) bool) {
	return func(yield func(uint64, model.Page, error) bool) {
		for i := uint64(0); i < mc.PagesLen(); i++ {
			p, err := mc.GetPage(i)
			if !yield(i, p, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// Close unmaps and closes the underlying file.
func (mc *MappedChunk) Close() error {
	var err error
	if mc.data != nil {
		if unmapErr := syscall.Munmap(mc.data); unmapErr != nil {
			err = unmapErr
		}
		mc.data = nil
	}
	if mc.file != nil {
		if closeErr := mc.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		mc.file = nil
	}
	return err
}
