package dump

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverSortsNaturally(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"enwiki-pages-articles-multistream1.xml-p10p20.bz2",
		"enwiki-pages-articles-multistream1.xml-p1p9.bz2",
		"enwiki-pages-articles-multistream1.xml-p100p200.bz2",
		"not-a-dump.txt",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Discover(dir, CompressionBzip2, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Discover found %d files, want 3: %v", len(got), got)
	}
	if filepath.Base(got[0]) != "enwiki-pages-articles-multistream1.xml-p1p9.bz2" {
		t.Fatalf("got[0] = %s, want p1p9 first", got[0])
	}
	if filepath.Base(got[len(got)-1]) != "enwiki-pages-articles-multistream1.xml-p100p200.bz2" {
		t.Fatalf("got[last] = %s, want p100p200 last", got[len(got)-1])
	}
}
