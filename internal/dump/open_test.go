package dump

import (
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestOpenSeekSkipsLeadingBytes(t *testing.T) {
	const second = `<mediawiki><page><title>Second</title><ns>0</ns><id>2</id></page></mediawiki>`
	path := filepath.Join(t.TempDir(), "dump.xml")
	first := `<mediawiki><page><title>First</title><ns>0</ns><id>1</id></page></mediawiki>`
	if err := os.WriteFile(path, []byte(first+second), 0o644); err != nil {
		t.Fatal(err)
	}

	var compressed, raw atomic.Int64
	src, err := Open(path, CompressionNone, int64(len(first)), &compressed, &raw)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	page, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if page.Title != "Second" || page.ID != 2 {
		t.Fatalf("page = %+v, want Second/2", page)
	}
	if _, err := src.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestOpenNoSeekReadsFromStart(t *testing.T) {
	const content = `<mediawiki><page><title>Only</title><ns>0</ns><id>1</id></page></mediawiki>`
	path := filepath.Join(t.TempDir(), "dump.xml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := Open(path, CompressionNone, 0, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	page, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if page.Title != "Only" {
		t.Fatalf("page = %+v, want Only", page)
	}
}
