package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

const (
	sstableMagic   uint32 = 0x5A7A0B1E
	sstableFooterN        = 16 // indexOffset(8) + indexCount(4) + magic(4)
)

// indexEntry is one sparse-index pointer: the key of a record and the
// byte offset at which that record begins in the data section.
type indexEntry struct {
	Key    string
	Offset int64
}

// sstable is an immutable, sorted, on-disk run of records plus a sparse
// index over them, built and read the way SstHelper's write/get/readAll
// do: a data section, an index section, and a fixed 16-byte footer.
type sstable struct {
	path        string
	index       []indexEntry
	indexOffset int64
}

// writeSSTable writes entries (already sorted by key) to path via the
// usual write-to-tmp-then-rename dance, building a sparse index with one
// entry every sparseEvery records.
func writeSSTable(path string, entries []entry, sparseEvery int) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create sstable tmp %q: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	offsets := make([]int64, len(entries))
	var pos int64
	for i, e := range entries {
		offsets[i] = pos
		n, err := encodeRecord(w, e.Key, e.Record)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write sstable record: %w", err)
		}
		pos += n
	}

	indexOffset := pos
	indexCount := 0
	for i := 0; i < len(entries); i += sparseEvery {
		kb := []byte(entries[i].Key)
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], uint32(len(kb)))
		if _, err := w.Write(header[:]); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write sstable index key length: %w", err)
		}
		if _, err := w.Write(kb); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write sstable index key: %w", err)
		}
		var offBuf [8]byte
		binary.BigEndian.PutUint64(offBuf[:], uint64(offsets[i]))
		if _, err := w.Write(offBuf[:]); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write sstable index offset: %w", err)
		}
		indexCount++
	}

	var footer [sstableFooterN]byte
	binary.BigEndian.PutUint64(footer[0:8], uint64(indexOffset))
	binary.BigEndian.PutUint32(footer[8:12], uint32(indexCount))
	binary.BigEndian.PutUint32(footer[12:16], sstableMagic)
	if _, err := w.Write(footer[:]); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write sstable footer: %w", err)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush sstable %q: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsync sstable %q: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close sstable %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename sstable %q to %q: %w", tmp, path, err)
	}
	return nil
}

// openSSTable loads the footer and sparse index of an existing SSTable
// file. It does not read the data section.
func openSSTable(path string) (*sstable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sstable %q: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat sstable %q: %w", path, err)
	}
	size := stat.Size()
	if size < sstableFooterN {
		return nil, fmt.Errorf("%w: sstable %q shorter than its footer", ErrCorrupt, path)
	}

	footer := make([]byte, sstableFooterN)
	if _, err := f.ReadAt(footer, size-sstableFooterN); err != nil {
		return nil, fmt.Errorf("read sstable footer %q: %w", path, err)
	}
	indexOffset := int64(binary.BigEndian.Uint64(footer[0:8]))
	indexCount := int(binary.BigEndian.Uint32(footer[8:12]))
	magic := binary.BigEndian.Uint32(footer[12:16])
	if magic != sstableMagic {
		return nil, fmt.Errorf("%w: sstable %q has bad magic %#x", ErrCorrupt, path, magic)
	}
	if indexOffset < 0 || indexOffset > size-sstableFooterN {
		return nil, fmt.Errorf("%w: sstable %q has out-of-range index offset", ErrCorrupt, path)
	}

	indexSize := size - sstableFooterN - indexOffset
	idxBuf := make([]byte, indexSize)
	if _, err := f.ReadAt(idxBuf, indexOffset); err != nil {
		return nil, fmt.Errorf("read sstable index %q: %w", path, err)
	}

	index := make([]indexEntry, 0, indexCount)
	pos := 0
	for i := 0; i < indexCount; i++ {
		if pos+4 > len(idxBuf) {
			return nil, fmt.Errorf("%w: sstable %q index truncated", ErrCorrupt, path)
		}
		keyLen := int(binary.BigEndian.Uint32(idxBuf[pos : pos+4]))
		pos += 4
		if keyLen < 0 || pos+keyLen+8 > len(idxBuf) {
			return nil, fmt.Errorf("%w: sstable %q index entry truncated", ErrCorrupt, path)
		}
		key := string(idxBuf[pos : pos+keyLen])
		pos += keyLen
		offset := int64(binary.BigEndian.Uint64(idxBuf[pos : pos+8]))
		pos += 8
		index = append(index, indexEntry{Key: key, Offset: offset})
	}

	return &sstable{path: path, index: index, indexOffset: indexOffset}, nil
}

// findStartOffset returns the byte offset to start a linear scan from:
// the offset recorded for the greatest indexed key <= target, or 0 if
// every indexed key is greater than target.
func (s *sstable) findStartOffset(key string) int64 {
	if len(s.index) == 0 {
		return 0
	}
	i := sort.Search(len(s.index), func(i int) bool { return s.index[i].Key > key })
	if i == 0 {
		return 0
	}
	return s.index[i-1].Offset
}

// Get scans forward from the sparse index's floor entry for key. It
// returns found=false on a miss (no tombstone distinction is made here
// — the caller inspects rec.Tombstone).
func (s *sstable) Get(key string) (rec Record, found bool, err error) {
	f, err := os.Open(s.path)
	if err != nil {
		return Record{}, false, fmt.Errorf("open sstable %q: %w", s.path, err)
	}
	defer f.Close()

	start := s.findStartOffset(key)
	sec := io.NewSectionReader(f, start, s.indexOffset-start)
	r := bufio.NewReader(sec)
	for {
		rec, k, _, derr := decodeRecord(r)
		if derr != nil {
			if derr == io.EOF {
				break
			}
			return Record{}, false, fmt.Errorf("%w: sstable %q: %v", ErrCorrupt, s.path, derr)
		}
		if k == key {
			return rec, true, nil
		}
		if k > key {
			break
		}
	}
	return Record{}, false, nil
}

// ReadAll returns every record in the data section, in key order,
// tombstones included. Used by the compactor to merge sstables.
func (s *sstable) ReadAll() ([]entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open sstable %q: %w", s.path, err)
	}
	defer f.Close()

	sec := io.NewSectionReader(f, 0, s.indexOffset)
	r := bufio.NewReader(sec)
	var entries []entry
	for {
		rec, key, _, err := decodeRecord(r)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("%w: sstable %q: %v", ErrCorrupt, s.path, err)
		}
		entries = append(entries, entry{Key: key, Record: rec})
	}
	return entries, nil
}
