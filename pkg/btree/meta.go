package btree

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const metaMagic uint32 = 0xBEEFBEEF

// meta is the B-Tree engine's small text metadata file: which page is
// the root, which page id to hand out next, and the fixed page size the
// tree was created with. Like the LSM manifest, it is persisted with a
// write-to-tmp-then-rename so a crash mid-write never corrupts it.
type meta struct {
	path       string
	rootPageID int32
	nextPageID int32
	pageSize   int32
	version    int
}

func loadOrCreateMeta(path string, defaultPageSize int32) (*meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			m := &meta{path: path, rootPageID: 0, nextPageID: 1, pageSize: defaultPageSize, version: 1}
			if err := m.persistAtomically(); err != nil {
				return nil, err
			}
			return m, nil
		}
		return nil, fmt.Errorf("read meta %q: %w", path, err)
	}

	m := &meta{path: path}
	sawMagic := false
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "rootPageId="):
			v, err := strconv.ParseInt(strings.TrimPrefix(line, "rootPageId="), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("meta %q: bad rootPageId line %q: %w", path, line, err)
			}
			m.rootPageID = int32(v)
		case strings.HasPrefix(line, "nextPageId="):
			v, err := strconv.ParseInt(strings.TrimPrefix(line, "nextPageId="), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("meta %q: bad nextPageId line %q: %w", path, line, err)
			}
			m.nextPageID = int32(v)
		case strings.HasPrefix(line, "pageSize="):
			v, err := strconv.ParseInt(strings.TrimPrefix(line, "pageSize="), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("meta %q: bad pageSize line %q: %w", path, line, err)
			}
			m.pageSize = int32(v)
		case strings.HasPrefix(line, "version="):
			v, err := strconv.Atoi(strings.TrimPrefix(line, "version="))
			if err != nil {
				return nil, fmt.Errorf("meta %q: bad version line %q: %w", path, line, err)
			}
			m.version = v
		case strings.HasPrefix(line, "magic="):
			v, err := strconv.ParseUint(strings.TrimPrefix(line, "magic="), 0, 32)
			if err != nil {
				return nil, fmt.Errorf("meta %q: bad magic line %q: %w", path, line, err)
			}
			if uint32(v) != metaMagic {
				return nil, fmt.Errorf("%w: meta %q has wrong magic %#x", ErrCorrupt, path, v)
			}
			sawMagic = true
		default:
			return nil, fmt.Errorf("meta %q: unrecognized line %q", path, line)
		}
	}
	if !sawMagic {
		return nil, fmt.Errorf("%w: meta %q missing magic line", ErrCorrupt, path)
	}
	return m, nil
}

func (m *meta) persistAtomically() error {
	var b strings.Builder
	fmt.Fprintf(&b, "rootPageId=%d\n", m.rootPageID)
	fmt.Fprintf(&b, "nextPageId=%d\n", m.nextPageID)
	fmt.Fprintf(&b, "pageSize=%d\n", m.pageSize)
	fmt.Fprintf(&b, "version=%d\n", m.version)
	fmt.Fprintf(&b, "magic=0x%X\n", metaMagic)

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write meta tmp %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("rename meta %q to %q: %w", tmp, m.path, err)
	}
	return nil
}

func (m *meta) allocPageID() int32 {
	id := m.nextPageID
	m.nextPageID++
	return id
}
