package chunk

import (
	"errors"
	"os"
	"testing"

	"wikistore/internal/model"
)

func mustPage(id uint64, title, text string) model.Page {
	t := text
	return model.Page{NsID: 0, ID: id, Title: title, Revision: &model.Revision{ID: id * 10, Text: &t}}
}

func TestManagerWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(Config{Dir: dir})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	b := m.NewBuilder()
	pages := []model.Page{
		mustPage(1, "Abacus", "[[Category:Counting tools]] body"),
		mustPage(2, "Beta", "no categories here"),
	}
	var ids []model.StorePageId
	for _, p := range pages {
		id, err := b.Push(p)
		if err != nil {
			t.Fatalf("Push: %v", err)
		}
		ids = append(ids, id)
	}
	meta, err := b.Finalize(dir)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if meta.PagesLen != 2 {
		t.Fatalf("PagesLen = %d, want 2", meta.PagesLen)
	}

	mc, err := m.Map(meta.ID)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	defer m.Release(meta.ID)

	for i, want := range pages {
		got, err := mc.GetPage(ids[i].PageChunkIndex)
		if err != nil {
			t.Fatalf("GetPage(%d): %v", i, err)
		}
		if got.Title != want.Title || got.ID != want.ID {
			t.Fatalf("GetPage(%d) = %+v, want %+v", i, got, want)
		}
	}
}

func TestManagerChunkIDsMonotonic(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(Config{Dir: dir})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	for i := 0; i < 3; i++ {
		b := m.NewBuilder()
		if _, err := b.Push(mustPage(uint64(i), "x", "y")); err != nil {
			t.Fatal(err)
		}
		if _, err := b.Finalize(dir); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := m.ChunkIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("len(ids) = %d, want 3", len(ids))
	}
	for i, id := range ids {
		if uint64(id) != uint64(i) {
			t.Fatalf("ids[%d] = %d, want %d", i, id, i)
		}
	}
}

func TestManagerDirectoryLocked(t *testing.T) {
	dir := t.TempDir()
	m1, err := NewManager(Config{Dir: dir})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m1.Close()

	_, err = NewManager(Config{Dir: dir})
	if err == nil {
		t.Fatal("expected ErrDirectoryLocked, got nil")
	}
}

func TestManagerClearRemovesChunksKeepsLock(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(Config{Dir: dir})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	b := m.NewBuilder()
	if _, err := b.Push(mustPage(1, "x", "y")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Finalize(dir); err != nil {
		t.Fatal(err)
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	ids, err := m.ChunkIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("len(ids) = %d, want 0 after clear", len(ids))
	}
}

func TestOpenMappedChunkBadSignature(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(Config{Dir: dir})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	b := m.NewBuilder()
	if _, err := b.Push(mustPage(1, "x", "y")); err != nil {
		t.Fatal(err)
	}
	meta, err := b.Finalize(dir)
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(meta.Path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte{0xff}, 0); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := OpenMappedChunk(meta.ID, meta.Path); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("got %v, want ErrBadSignature", err)
	}
}

func TestBuilderFull(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(Config{Dir: dir, MaxChunkLen: 10})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	b := m.NewBuilder()
	if b.Full() {
		t.Fatal("builder should not be full before any pushes")
	}
	if _, err := b.Push(mustPage(1, "a very long title indeed", "and a long body too")); err != nil {
		t.Fatal(err)
	}
	if !b.Full() {
		t.Fatal("builder should be full after exceeding max_chunk_len")
	}
}
