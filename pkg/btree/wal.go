package btree

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

const maxWALPageSize = 1_000_000

// wal is the B-Tree engine's page-image write-ahead log: each record is
// a whole before-commit page image plus a checksum, so replay can just
// blast the page back into the page file without having to understand
// its contents.
type wal struct {
	path string
	file *os.File
}

func openWAL(path string) (*wal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wal %q: %w", path, err)
	}
	return &wal{path: path, file: f}, nil
}

// AppendPage writes one [pageId:4][pageSize:4][pageBytes][crc32:4]
// record. It does not fsync — callers batch several AppendPage calls
// and fsync once.
func (w *wal) AppendPage(id int32, buf []byte) error {
	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(id))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(buf)))

	crc := crc32.NewIEEE()
	crc.Write(header[:])
	crc.Write(buf)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())

	if _, err := w.file.Write(header[:]); err != nil {
		return fmt.Errorf("wal append page %d: %w", id, err)
	}
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("wal append page %d: %w", id, err)
	}
	if _, err := w.file.Write(sum[:]); err != nil {
		return fmt.Errorf("wal append page %d: %w", id, err)
	}
	return nil
}

func (w *wal) Fsync() error {
	return w.file.Sync()
}

// replayWALInto applies every record whose checksum verifies to pf, in
// order, and returns how many were applied. Both a torn record (cut
// short by a crash mid-write) and a record whose checksum fails to
// verify are treated as the tail of the log not having committed
// cleanly, and replay simply stops there rather than erroring — a
// checksum mismatch on this particular log is expected on an unclean
// shutdown, not a sign of independent disk corruption.
func replayWALInto(path string, pf *pageFile) (int, error) {
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
		header := make([]byte, 8)
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return applied, fmt.Errorf("wal replay %q: %w", path, err)
		}
		pageID := int32(binary.BigEndian.Uint32(header[0:4]))
		pageSize := int32(binary.BigEndian.Uint32(header[4:8]))
		if pageID < 0 || pageSize <= 0 || pageSize > maxWALPageSize {
			return applied, fmt.Errorf("%w: wal replay %q: record header (pageId=%d pageSize=%d)", ErrCorrupt, path, pageID, pageSize)
		}

		payload := make([]byte, pageSize)
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return applied, fmt.Errorf("wal replay %q: %w", path, err)
		}

		sumBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, sumBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return applied, fmt.Errorf("wal replay %q: %w", path, err)
		}

		crc := crc32.NewIEEE()
		crc.Write(header)
		crc.Write(payload)
		if crc.Sum32() != binary.BigEndian.Uint32(sumBuf) {
			break
		}

		if err := pf.WritePage(pageID, payload); err != nil {
			return applied, fmt.Errorf("wal replay %q: %w", path, err)
		}
		applied++
	}
	return applied, nil
}

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
