package dump

import (
	"bufio"
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Decompress wraps r with the decoder for the given compression tag.
// CompressionNone returns r unchanged.
func Decompress(r io.Reader, compression Compression) (io.Reader, error) {
	switch compression {
	case CompressionNone:
		return r, nil
	case CompressionBzip2:
		return newMultistreamBzip2Reader(r), nil
	case CompressionLZ4:
		return lz4.NewReader(r), nil
	default:
		return nil, fmt.Errorf("dump: unknown compression tag %d", compression)
	}
}

// multistreamBzip2Reader decodes a sequence of concatenated bzip2
// streams. The standard library's bzip2.Reader stops at the first
// stream's logical end; Wikimedia dumps concatenate one stream per
// input page range, so a plain bzip2.Reader silently truncates them.
type multistreamBzip2Reader struct {
	src     *bufio.Reader
	current io.Reader
}

func newMultistreamBzip2Reader(r io.Reader) *multistreamBzip2Reader {
	return &multistreamBzip2Reader{src: bufio.NewReader(r)}
}

func (m *multistreamBzip2Reader) Read(p []byte) (int, error) {
	for {
		if m.current == nil {
			if _, err := m.src.Peek(1); err != nil {
				return 0, err // io.EOF: no further streams
			}
			m.current = bzip2.NewReader(m.src)
		}
		n, err := m.current.Read(p)
		if err == io.EOF {
			m.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}
