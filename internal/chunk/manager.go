package chunk

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"

	"wikistore/internal/logging"
	"wikistore/internal/model"
)

const (
	// DefaultMaxChunkLen is the soft byte-length threshold at which a
	// builder reports itself full.
	DefaultMaxChunkLen = 10_000_000
	DefaultFileMode    = 0o644
	lockFileName       = "lock"
)

// Config configures a Manager.
type Config struct {
	Dir         string
	MaxChunkLen int64
	FileMode    os.FileMode
	Logger      *slog.Logger
}

// Manager owns a chunk directory: it holds the exclusive writer lock,
// allocates chunk ids, builds and finalizes chunks, and serves mapped
// reads with a small cache of open mappings.
type Manager struct {
	dir         string
	maxChunkLen int64
	fileMode    os.FileMode
	logger      *slog.Logger

	lockFile *os.File
	nextID   atomic.Uint64

	mu    sync.Mutex
	cache map[model.ChunkID]*cachedChunk
}

type cachedChunk struct {
	chunk *MappedChunk
	refs  int
}

// NewManager opens dir (creating it if necessary), acquires the exclusive
// writer lock, scans existing chunk files to seed the next-id counter,
// and returns a ready Manager. Returns ErrDirectoryLocked if another
// writer already holds the lock.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("chunk: Dir is required")
	}
	if cfg.MaxChunkLen <= 0 {
		cfg.MaxChunkLen = DefaultMaxChunkLen
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = DefaultFileMode
	}

	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("chunk: create dir %s: %w", cfg.Dir, err)
	}

	lockPath := filepath.Join(cfg.Dir, lockFileName)
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("chunk: open lock file: %w", err)
	}
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("%w: %s", ErrDirectoryLocked, cfg.Dir)
	}

	m := &Manager{
		dir:         cfg.Dir,
		maxChunkLen: cfg.MaxChunkLen,
		fileMode:    cfg.FileMode,
		logger:      logging.Default(cfg.Logger).With("component", "chunk"),
		lockFile:    lockFile,
		cache:       make(map[model.ChunkID]*cachedChunk),
	}

	maxID, found, err := scanMaxID(cfg.Dir)
	if err != nil {
		lockFile.Close()
		return nil, err
	}
	if found {
		m.nextID.Store(maxID + 1)
	}

	return m, nil
}

func scanMaxID(dir string) (max uint64, found bool, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, false, fmt.Errorf("chunk: scan dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := ParseFileName(e.Name())
		if !ok {
			continue
		}
		if !found || id > max {
			max = id
			found = true
		}
	}
	return max, found, nil
}

// NewBuilder atomically allocates the next chunk id and returns a builder
// bound to it. Multiple builders may be live concurrently; each owns a
// distinct id, so there is no write contention between them.
func (m *Manager) NewBuilder() *Builder {
	id := model.ChunkID(m.nextID.Add(1) - 1)
	return newBuilder(id, m.dir, m.fileMode, m.maxChunkLen)
}

// ChunkIDs returns every chunk id currently on disk, sorted ascending.
func (m *Manager) ChunkIDs() ([]model.ChunkID, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("chunk: scan dir %s: %w", m.dir, err)
	}
	var ids []model.ChunkID
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := ParseFileName(e.Name())
		if !ok {
			continue
		}
		ids = append(ids, model.ChunkID(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Meta returns the ChunkMeta for a chunk id by opening and stat-ing its
// file; the second return value is false if no such chunk exists.
func (m *Manager) Meta(id model.ChunkID) (model.ChunkMeta, bool, error) {
	path := filepath.Join(m.dir, FileName(uint64(id)))
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.ChunkMeta{}, false, nil
		}
		return model.ChunkMeta{}, false, fmt.Errorf("chunk: stat %s: %w", path, err)
	}
	mc, err := m.Map(id)
	if err != nil {
		return model.ChunkMeta{}, false, err
	}
	defer m.Release(id)
	return model.ChunkMeta{ID: id, BytesLen: info.Size(), PagesLen: mc.PagesLen(), Path: path}, true, nil
}

// Map returns a mapped view of the given chunk, reusing a cached mapping
// if one is already open. Every successful call must be paired with a
// call to Release.
func (m *Manager) Map(id model.ChunkID) (*MappedChunk, error) {
	m.mu.Lock()
	if c, ok := m.cache[id]; ok {
		c.refs++
		m.mu.Unlock()
		return c.chunk, nil
	}
	m.mu.Unlock()

	path := filepath.Join(m.dir, FileName(uint64(id)))
	mc, err := OpenMappedChunk(id, path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cache[id]; ok {
		// Lost the race to populate the cache; keep the existing mapping.
		c.refs++
		mc.Close()
		return c.chunk, nil
	}
	m.cache[id] = &cachedChunk{chunk: mc, refs: 1}
	return mc, nil
}

// Release drops a reference obtained from Map, closing and unmapping the
// chunk once no references remain.
func (m *Manager) Release(id model.ChunkID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cache[id]
	if !ok {
		return
	}
	c.refs--
	if c.refs > 0 {
		return
	}
	delete(m.cache, id)
	if err := c.chunk.Close(); err != nil {
		m.logger.Warn("close mapped chunk", "chunk", id, "error", err)
	}
}

// Clear deletes every chunk file; the lock file is left in place.
func (m *Manager) Clear() error {
	ids, err := m.ChunkIDs()
	if err != nil {
		return err
	}

	m.mu.Lock()
	for id, c := range m.cache {
		if err := c.chunk.Close(); err != nil {
			m.logger.Warn("close mapped chunk during clear", "chunk", id, "error", err)
		}
	}
	m.cache = make(map[model.ChunkID]*cachedChunk)
	m.mu.Unlock()

	for _, id := range ids {
		path := filepath.Join(m.dir, FileName(uint64(id)))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("chunk: remove %s: %w", path, err)
		}
	}
	return nil
}

// Close releases the writer lock and every cached mapping.
func (m *Manager) Close() error {
	m.mu.Lock()
	for id, c := range m.cache {
		if err := c.chunk.Close(); err != nil {
			m.logger.Warn("close mapped chunk", "chunk", id, "error", err)
		}
	}
	m.cache = nil
	m.mu.Unlock()

	if m.lockFile == nil {
		return nil
	}
	if err := syscall.Flock(int(m.lockFile.Fd()), syscall.LOCK_UN); err != nil {
		m.lockFile.Close()
		return fmt.Errorf("chunk: unlock: %w", err)
	}
	return m.lockFile.Close()
}
