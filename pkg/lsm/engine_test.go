package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"minikv/internal/config"
)

func openTestEngine(t *testing.T, dataDir string, cfg config.LSMConfig) *Engine {
	t.Helper()
	e, err := Open(dataDir, cfg, config.DebugConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

func TestEngine_PutGet(t *testing.T) {
	dir := t.TempDir()
	e := openTestEngine(t, dir, config.LSMConfig{MemFlushBytes: 1 << 20, CompactTrigger: 100, SparseEvery: 4})
	defer e.Close()

	if err := e.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	val, found, err := e.Get([]byte("a"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || string(val) != "1" {
		t.Fatalf("Get(a) = %q, %v; want 1, true", val, found)
	}

	_, found, err = e.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("Get(missing): %v", err)
	}
	if found {
		t.Fatalf("Get(missing) found = true, want false")
	}
}

func TestEngine_Overwrite(t *testing.T) {
	dir := t.TempDir()
	e := openTestEngine(t, dir, config.LSMConfig{MemFlushBytes: 1 << 20, CompactTrigger: 100, SparseEvery: 4})
	defer e.Close()

	if err := e.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Put([]byte("a"), []byte("2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	val, found, err := e.Get([]byte("a"))
	if err != nil || !found || string(val) != "2" {
		t.Fatalf("Get(a) = %q, %v, %v; want 2, true, nil", val, found, err)
	}
}

func TestEngine_DeleteTombstone(t *testing.T) {
	dir := t.TempDir()
	e := openTestEngine(t, dir, config.LSMConfig{MemFlushBytes: 1 << 20, CompactTrigger: 100, SparseEvery: 4})
	defer e.Close()

	if err := e.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, found, err := e.Get([]byte("a"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatalf("Get(a) found = true after delete, want false")
	}

	// Deleting an absent key is not an error.
	if err := e.Delete([]byte("never-existed")); err != nil {
		t.Fatalf("Delete(absent): %v", err)
	}
}

func TestEngine_FlushAndRecoverAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LSMConfig{MemFlushBytes: 1, CompactTrigger: 100, SparseEvery: 4}

	e := openTestEngine(t, dir, cfg)
	if err := e.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	stats := e.Stats()
	if stats.SSTableCount == 0 {
		t.Fatalf("expected at least one sstable flushed, got %d", stats.SSTableCount)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestEngine(t, dir, cfg)
	defer reopened.Close()

	val, found, err := reopened.Get([]byte("a"))
	if err != nil || !found || string(val) != "1" {
		t.Fatalf("Get(a) after reopen = %q, %v, %v; want 1, true, nil", val, found, err)
	}
	val, found, err = reopened.Get([]byte("b"))
	if err != nil || !found || string(val) != "2" {
		t.Fatalf("Get(b) after reopen = %q, %v, %v; want 2, true, nil", val, found, err)
	}
}

func TestEngine_RecoversFromWALAfterCrash(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LSMConfig{MemFlushBytes: 1 << 20, CompactTrigger: 100, SparseEvery: 4}

	e := openTestEngine(t, dir, cfg)
	if err := e.Put([]byte("crash-key"), []byte("crash-value")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Simulate an unclean shutdown: no Close, so the WAL is left with
	// the put recorded but the data directory otherwise untouched.

	reopened := openTestEngine(t, dir, cfg)
	defer reopened.Close()

	val, found, err := reopened.Get([]byte("crash-key"))
	if err != nil || !found || string(val) != "crash-value" {
		t.Fatalf("Get after crash-recovery = %q, %v, %v; want crash-value, true, nil", val, found, err)
	}
}

func TestEngine_TolerantOfTornWALTail(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LSMConfig{MemFlushBytes: 1 << 20, CompactTrigger: 100, SparseEvery: 4}

	e := openTestEngine(t, dir, cfg)
	if err := e.Put([]byte("whole"), []byte("record")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Put([]byte("torn"), []byte("this-will-be-cut")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	walPath := filepath.Join(dir, "wal.log")
	info, err := os.Stat(walPath)
	if err != nil {
		t.Fatalf("stat wal: %v", err)
	}
	// Truncate a few bytes off the tail, simulating a crash mid-write
	// of the last record.
	if err := os.Truncate(walPath, info.Size()-3); err != nil {
		t.Fatalf("truncate wal: %v", err)
	}

	reopened := openTestEngine(t, dir, cfg)
	defer reopened.Close()

	val, found, err := reopened.Get([]byte("whole"))
	if err != nil || !found || string(val) != "record" {
		t.Fatalf("Get(whole) = %q, %v, %v; want record, true, nil", val, found, err)
	}
	// The torn record must not have been silently accepted as valid.
	if _, found, _ := reopened.Get([]byte("torn")); found {
		t.Fatalf("Get(torn) found = true; torn tail record should not have replayed")
	}
}

func TestEngine_CompactionDropsTombstonesAndKeepsNewestWins(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LSMConfig{MemFlushBytes: 1, CompactTrigger: 3, SparseEvery: 2}

	e := openTestEngine(t, dir, cfg)
	defer e.Close()

	if err := e.Put([]byte("a"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Put([]byte("a"), []byte("v2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Put([]byte("b"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Delete([]byte("b")); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	val, found, err := e.Get([]byte("a"))
	if err != nil || !found || string(val) != "v2" {
		t.Fatalf("Get(a) = %q, %v, %v; want v2, true, nil", val, found, err)
	}
	if _, found, _ := e.Get([]byte("b")); found {
		t.Fatalf("Get(b) found = true after delete, want false")
	}

	stats := e.Stats()
	if stats.SSTableCount != 1 {
		t.Fatalf("SSTableCount after compaction = %d, want 1", stats.SSTableCount)
	}
}

func TestEngine_FullCompactionDropsTombstoneFromLoneSSTable(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LSMConfig{MemFlushBytes: 1, CompactTrigger: 1, SparseEvery: 2}

	e := openTestEngine(t, dir, cfg)
	defer e.Close()

	if err := e.Put([]byte("a"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// CompactTrigger=1 means a single flushed sstable is still a
	// candidate for full compaction; its tombstone must be dropped
	// rather than surviving forever because only one table was live.
	sstDir := filepath.Join(dir, "sst")
	entries, err := os.ReadDir(sstDir)
	if err != nil {
		t.Fatalf("read sst dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("sst dir has %d files after compacting a lone table, want 1", len(entries))
	}

	sst, err := openSSTable(filepath.Join(sstDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("openSSTable: %v", err)
	}
	all, err := sst.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("sstable after full compaction has %d records, want 0 (tombstone should be dropped)", len(all))
	}
}

func TestMemTable_IsFullActsAsSafetyStopIndependentOfByteSize(t *testing.T) {
	m := newMemTable()
	for i := 0; i < memTableCountCap-1; i++ {
		m.Put(fmt.Sprintf("k%d", i), nil)
		if m.IsFull() {
			t.Fatalf("IsFull() = true after %d entries, want false below the cap", i+1)
		}
	}
	m.Put("last", nil)
	if !m.IsFull() {
		t.Fatalf("IsFull() = false at the count cap, want true")
	}
}

func TestEngine_FlushesOnCountCapEvenWithEmptyValues(t *testing.T) {
	dir := t.TempDir()
	// A byte-size trigger this high will never fire on its own for
	// empty values; only the count-cap safety stop can force a flush.
	cfg := config.LSMConfig{MemFlushBytes: 1 << 30, CompactTrigger: 100, SparseEvery: 4}

	e := openTestEngine(t, dir, cfg)
	defer e.Close()

	for i := 0; i < memTableCountCap; i++ {
		if err := e.Put([]byte(fmt.Sprintf("k%d", i)), nil); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	stats := e.Stats()
	if stats.SSTableCount == 0 {
		t.Fatalf("expected the count-cap safety stop to have flushed at least one sstable")
	}
}
