package dump

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// Source is an open dump file ready to be driven by its Reader. Close
// releases the underlying file handle.
type Source struct {
	*Reader
	file *os.File
}

// Close releases the file handle backing the source.
func (s *Source) Close() error {
	return s.file.Close()
}

// Open opens path, optionally seeking to a byte offset before decoding,
// layers a byte-counting reader around the raw file (compressedBytes), an
// optional decompressor, a second byte-counting reader around the
// decompressed stream (rawBytes), and a buffered reader, then wraps the
// result in an XML page Reader.
//
// seek, when non-zero, must land exactly on a compression stream
// boundary (for a Wikimedia multistream dump, the start of one of the
// concatenated bzip2 streams listed in the dump's accompanying index
// file) — Decompress has no way to resynchronize mid-stream. This is
// what lets a caller fan multiple workers out across byte ranges of a
// single multistream dump file instead of one worker per file.
func Open(path string, compression Compression, seek int64, compressedBytes, rawBytes *atomic.Int64) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dump: open %s: %w", path, err)
	}

	if seek > 0 {
		if _, err := f.Seek(seek, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("dump: seek %s to %d: %w", path, seek, err)
		}
	}

	var r io.Reader = f
	if compressedBytes != nil {
		r = NewCountingReader(r, compressedBytes)
	}

	r, err = Decompress(r, compression)
	if err != nil {
		f.Close()
		return nil, err
	}

	if rawBytes != nil {
		r = NewCountingReader(r, rawBytes)
	}

	buffered := bufio.NewReaderSize(r, 1<<20)
	return &Source{Reader: NewReader(buffered), file: f}, nil
}
