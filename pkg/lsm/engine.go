package lsm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"minikv/internal/config"
)

// Engine is the LSM-backed implementation of kv.KV. It holds a single
// mutex guarding the MemTable, WAL, and manifest together — there is no
// concurrency inside an Engine beyond what the mutex serializes.
type Engine struct {
	mu      sync.Mutex
	dataDir string
	cfg     config.LSMConfig
	debug   config.DebugConfig
	logger  *slog.Logger

	mem        *memTable
	wal        *wal
	man        *manifest
	compacting bool
	closed     bool
}

// Open prepares the on-disk layout if absent, sweeps any orphaned
// flush/compaction tmp files left by a prior crash, replays the WAL
// into a fresh MemTable, and runs a compaction pass if the recovered
// manifest already has enough tables queued up.
func Open(dataDir string, cfg config.LSMConfig, debug config.DebugConfig) (*Engine, error) {
	if cfg.MemFlushBytes <= 0 {
		cfg.MemFlushBytes = 1024
	}
	if cfg.CompactTrigger <= 0 {
		cfg.CompactTrigger = 4
	}
	if cfg.SparseEvery <= 0 {
		cfg.SparseEvery = 4
	}

	sstDir := filepath.Join(dataDir, "sst")
	if err := os.MkdirAll(sstDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sstable dir %q: %w", sstDir, err)
	}

	logger := slog.Default()
	sweepOrphanTmpFiles(sstDir, logger)

	man, err := loadOrCreateManifest(filepath.Join(dataDir, "manifest.txt"))
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	w, err := openWAL(filepath.Join(dataDir, "wal.log"))
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}

	mem := newMemTable()
	applied, err := replayWALInto(w.path, mem)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("replay wal: %w", err)
	}
	logger.Debug("lsm wal replay complete", "applied", applied)

	e := &Engine{
		dataDir: dataDir,
		cfg:     cfg,
		debug:   debug,
		logger:  logger,
		mem:     mem,
		wal:     w,
		man:     man,
	}
	if err := e.maybeCompact(); err != nil {
		w.Close()
		return nil, fmt.Errorf("startup compaction: %w", err)
	}
	return e, nil
}

// sweepOrphanTmpFiles removes any sst/*.tmp file left behind by a flush
// or compaction that crashed before its final rename. Such a file can
// never be a canonical sst-*.dat, so deleting it is always safe.
func sweepOrphanTmpFiles(sstDir string, logger *slog.Logger) {
	matches, err := filepath.Glob(filepath.Join(sstDir, "*.tmp"))
	if err != nil {
		logger.Warn("orphan sweep: glob failed", "err", err)
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			logger.Warn("orphan sweep: failed to remove", "path", path, "err", err)
			continue
		}
		logger.Debug("orphan sweep: removed stale tmp file", "path", path)
	}
}

func (e *Engine) sstDir() string {
	return filepath.Join(e.dataDir, "sst")
}

func (e *Engine) Put(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	ks := string(key)
	if err := e.wal.AppendPut(ks, value); err != nil {
		return err
	}
	e.mem.Put(ks, append([]byte(nil), value...))

	if e.mem.ApproxBytes() >= e.cfg.MemFlushBytes || e.mem.IsFull() {
		if err := e.flush(); err != nil {
			return err
		}
		if err := e.maybeCompact(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	ks := string(key)
	if err := e.wal.AppendDelete(ks); err != nil {
		return err
	}
	e.mem.Delete(ks)

	if e.mem.ApproxBytes() >= e.cfg.MemFlushBytes || e.mem.IsFull() {
		if err := e.flush(); err != nil {
			return err
		}
		if err := e.maybeCompact(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, false, ErrClosed
	}

	ks := string(key)
	if rec, ok := e.mem.Get(ks); ok {
		if rec.Tombstone {
			return nil, false, nil
		}
		return rec.Value, true, nil
	}

	for _, name := range e.man.SSTablesNewestFirst() {
		sst, err := openSSTable(filepath.Join(e.sstDir(), name))
		if err != nil {
			return nil, false, err
		}
		rec, found, err := sst.Get(ks)
		if err != nil {
			return nil, false, err
		}
		if found {
			if rec.Tombstone {
				return nil, false, nil
			}
			return rec.Value, true, nil
		}
	}
	return nil, false, nil
}

// flush writes the current MemTable to a new SSTable, records it in
// the manifest, clears the MemTable, and truncates the WAL — in that
// order, so a crash at any point still leaves either the old WAL+old
// manifest state or the new SSTable+new manifest state recoverable.
func (e *Engine) flush() error {
	if e.mem.IsEmpty() {
		return nil
	}

	entries := e.mem.Snapshot()
	id := e.man.nextID()
	name := fmt.Sprintf("sst-%06d.dat", id)
	path := filepath.Join(e.sstDir(), name)

	if err := writeSSTable(path, entries, e.cfg.SparseEvery); err != nil {
		return fmt.Errorf("flush: write sstable: %w", err)
	}
	if err := e.man.AddSSTable(name); err != nil {
		return fmt.Errorf("flush: update manifest: %w", err)
	}
	e.mem.Clear()

	if !e.debug.SuppressWALReset {
		if err := e.wal.Reset(); err != nil {
			return fmt.Errorf("flush: reset wal: %w", err)
		}
	}

	e.logger.Debug("lsm flush complete", "sstable", name, "entries", len(entries))
	return nil
}

// maybeCompact runs a compaction pass if enough SSTables have piled up.
// The compacting flag guards against reentrancy, mirroring the
// original's own reentrancy guard even though the single-writer mutex
// already rules it out here.
func (e *Engine) maybeCompact() error {
	if e.man.Count() < e.cfg.CompactTrigger {
		return nil
	}
	if e.compacting {
		return nil
	}
	e.compacting = true
	defer func() { e.compacting = false }()
	return compactAll(e.dataDir, e.man, e.cfg.SparseEvery, e.logger)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.wal.Close()
}

// Stats is a read-only snapshot of the engine's current shape.
type Stats struct {
	MemTableBytes   int64
	MemTableEntries int
	SSTableCount    int
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		MemTableBytes:   e.mem.ApproxBytes(),
		MemTableEntries: e.mem.Len(),
		SSTableCount:    e.man.Count(),
	}
}
