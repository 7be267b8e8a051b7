package lsm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// wal is the LSM engine's write-ahead log. Every Put/Delete is appended
// here and fsynced before the call returns, which is what makes the
// MemTable's in-memory state durable without having to fsync the
// MemTable itself.
type wal struct {
	path string
	file *os.File
}

func openWAL(path string) (*wal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wal %q: %w", path, err)
	}
	return &wal{path: path, file: f}, nil
}

func (w *wal) AppendPut(key string, value []byte) error {
	return w.append(key, Record{Value: value})
}

func (w *wal) AppendDelete(key string) error {
	return w.append(key, Record{Tombstone: true})
}

func (w *wal) append(key string, rec Record) error {
	if _, err := encodeRecord(w.file, key, rec); err != nil {
		return fmt.Errorf("wal append: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal fsync: %w", err)
	}
	return nil
}

// replayWALInto applies every well-formed record in the log to mem, in
// order, and returns how many were applied. A torn write at the tail
// (a record whose header or payload is cut short by a crash mid-write)
// is silently ignored rather than treated as an error; anything that
// looks like real corruption — a length field outside the sanity
// bounds — is a hard error, since that can't be explained by a normal
// partial write.
func replayWALInto(path string, mem *memTable) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open wal %q for replay: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	applied := 0
	for {
		rec, key, _, err := decodeRecord(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return applied, fmt.Errorf("wal replay %q: %w", path, err)
		}
		if rec.Tombstone {
			mem.Delete(key)
		} else {
			mem.Put(key, rec.Value)
		}
		applied++
	}
	return applied, nil
}

// Reset truncates the log to empty, used after a successful flush has
// made the log's contents durable in an SSTable.
func (w *wal) Reset() error {
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("wal reset: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal reset seek: %w", err)
	}
	return nil
}

func (w *wal) Close() error {
	return w.file.Close()
}
