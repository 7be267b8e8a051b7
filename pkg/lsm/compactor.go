package lsm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// compactAll merges every live SSTable into a single new one, dropping
// tombstones once the merge is complete, then swaps the manifest to
// point at the new table before best-effort deleting the old files. If
// the process crashes after the manifest swap but before the old files
// are removed, the old files are simply orphaned disk space recovered
// on a future compaction — never a correctness problem, since the
// manifest no longer references them.
//
// This runs even when only one SSTable is live: a lone table can still
// hold tombstones that a full compaction must drop.
func compactAll(dataDir string, man *manifest, sparseEvery int, logger *slog.Logger) error {
	names := man.SSTablesNewestFirst()
	if len(names) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(names))
	merged := make(map[string]Record)
	var order []string

	for _, name := range names {
		sst, err := openSSTable(filepath.Join(dataDir, "sst", name))
		if err != nil {
			return fmt.Errorf("compact: open %q: %w", name, err)
		}
		entries, err := sst.ReadAll()
		if err != nil {
			return fmt.Errorf("compact: read %q: %w", name, err)
		}
		for _, e := range entries {
			if seen[e.Key] {
				continue
			}
			seen[e.Key] = true
			if e.Record.Tombstone {
				continue
			}
			merged[e.Key] = e.Record
			order = append(order, e.Key)
		}
	}

	sort.Strings(order)
	outEntries := make([]entry, len(order))
	for i, k := range order {
		outEntries[i] = entry{Key: k, Record: merged[k]}
	}

	id := man.nextID()
	outName := fmt.Sprintf("sst-%06d.dat", id)
	outPath := filepath.Join(dataDir, "sst", outName)
	if err := writeSSTable(outPath, outEntries, sparseEvery); err != nil {
		return fmt.Errorf("compact: write merged sstable: %w", err)
	}

	if err := man.ReplaceAllWith(outName); err != nil {
		return fmt.Errorf("compact: persist manifest: %w", err)
	}

	for _, name := range names {
		if name == outName {
			continue
		}
		path := filepath.Join(dataDir, "sst", name)
		if err := os.Remove(path); err != nil {
			logger.Warn("compaction: failed to remove superseded sstable", "path", path, "err", err)
		}
	}

	logger.Debug("compaction complete", "merged", len(names), "into", outName, "keys", len(order))
	return nil
}
