package btree

import (
	"fmt"
	"os"
)

// pageFile is a flat file of fixed-size pages addressed by page id:
// page id's bytes live at offset id*pageSize.
type pageFile struct {
	file     *os.File
	pageSize int32
}

func openPageFile(path string, pageSize int32) (*pageFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open page file %q: %w", path, err)
	}
	return &pageFile{file: f, pageSize: pageSize}, nil
}

// PageExists reports whether id's full page has been written, replacing
// the try/read-and-catch-EOF pattern with a direct boolean check.
func (pf *pageFile) PageExists(id int32) bool {
	info, err := pf.file.Stat()
	if err != nil {
		return false
	}
	offset := int64(id) * int64(pf.pageSize)
	return info.Size() >= offset+int64(pf.pageSize)
}

// ReadPage reads id's page. A short read — the page file ends before a
// full page's worth of bytes at that offset — means the page was never
// fully written, which callers should check for with PageExists before
// calling ReadPage on a page they aren't sure exists.
func (pf *pageFile) ReadPage(id int32) ([]byte, error) {
	buf := make([]byte, pf.pageSize)
	offset := int64(id) * int64(pf.pageSize)
	n, err := pf.file.ReadAt(buf, offset)
	if n < len(buf) {
		return nil, fmt.Errorf("btree: page %d does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", id, err)
	}
	return buf, nil
}

// WritePage writes buf (which must be exactly pageSize bytes) at id's
// offset.
func (pf *pageFile) WritePage(id int32, buf []byte) error {
	if int32(len(buf)) != pf.pageSize {
		return fmt.Errorf("btree: write page %d: buffer is %d bytes, want %d", id, len(buf), pf.pageSize)
	}
	offset := int64(id) * int64(pf.pageSize)
	if _, err := pf.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	return nil
}

func (pf *pageFile) Fsync() error {
	return pf.file.Sync()
}

func (pf *pageFile) Close() error {
	return pf.file.Close()
}
