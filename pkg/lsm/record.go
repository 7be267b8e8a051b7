package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// sanity bounds applied to any length read off disk before trusting it
// enough to allocate a buffer of that size. Anything outside these
// bounds is treated as corruption, not a torn write.
const (
	maxKeyLen = 10_000_000
	maxValLen = 100_000_000
)

// Record is the tagged-union value stored for a key: either a present
// value, or a tombstone recording that the key was deleted. The zero
// value is NOT a valid "absent" marker — absence is the key simply not
// being present in a MemTable or SSTable.
type Record struct {
	Value     []byte
	Tombstone bool
}

// entry pairs a key with its Record, used when a sorted snapshot of a
// MemTable or SSTable's contents is needed (flush, compaction).
type entry struct {
	Key    string
	Record Record
}

// encodeRecord writes [keyLen:4][valLen:4, -1 for tombstone][key][value?]
// in big-endian, the on-disk framing shared by the WAL and SSTable data
// sections. It returns the number of bytes written.
func encodeRecord(w io.Writer, key string, rec Record) (int64, error) {
	kb := []byte(key)
	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(kb)))
	if rec.Tombstone {
		binary.BigEndian.PutUint32(header[4:8], 0xFFFFFFFF)
	} else {
		binary.BigEndian.PutUint32(header[4:8], uint32(len(rec.Value)))
	}
	if _, err := w.Write(header[:]); err != nil {
		return 0, fmt.Errorf("write record header: %w", err)
	}
	if _, err := w.Write(kb); err != nil {
		return 0, fmt.Errorf("write record key: %w", err)
	}
	n := int64(8 + len(kb))
	if !rec.Tombstone {
		if _, err := w.Write(rec.Value); err != nil {
			return 0, fmt.Errorf("write record value: %w", err)
		}
		n += int64(len(rec.Value))
	}
	return n, nil
}

// decodeRecord reads one record in the framing written by encodeRecord.
// It returns io.EOF only when the header read finds a clean, empty tail
// (no bytes at all); any error encountered mid-record is returned as-is
// (io.ErrUnexpectedEOF on a short read, or a sanity-bound error) so the
// caller can decide whether that counts as a tolerable torn tail or as
// corruption.
func decodeRecord(r *bufio.Reader) (rec Record, key string, n int64, err error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return Record{}, "", 0, err
	}
	keyLen := int32(binary.BigEndian.Uint32(header[0:4]))
	valLenRaw := int32(binary.BigEndian.Uint32(header[4:8]))
	tombstone := valLenRaw == -1

	if keyLen <= 0 || keyLen > maxKeyLen {
		return Record{}, "", 0, fmt.Errorf("record: corrupt key length %d", keyLen)
	}
	if !tombstone && (valLenRaw < 0 || valLenRaw > maxValLen) {
		return Record{}, "", 0, fmt.Errorf("record: corrupt value length %d", valLenRaw)
	}

	keyBuf := make([]byte, keyLen)
	if _, err := io.ReadFull(r, keyBuf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, "", 0, err
	}
	n = int64(8 + keyLen)

	if tombstone {
		return Record{Tombstone: true}, string(keyBuf), n, nil
	}

	valBuf := make([]byte, valLenRaw)
	if _, err := io.ReadFull(r, valBuf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, "", 0, err
	}
	n += int64(valLenRaw)
	return Record{Value: valBuf}, string(keyBuf), n, nil
}
