package dump

import (
	"io"
	"sync/atomic"
)

// CountingReader wraps an io.Reader, atomically adding every Read's byte
// count to a shared counter. Used to track both compressed bytes read
// from disk and decompressed bytes fed to the XML tokenizer.
type CountingReader struct {
	r       io.Reader
	counter *atomic.Int64
}

// NewCountingReader wraps r, incrementing counter on every Read call.
func NewCountingReader(r io.Reader, counter *atomic.Int64) *CountingReader {
	return &CountingReader{r: r, counter: counter}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.counter.Add(int64(n))
	}
	return n, err
}
