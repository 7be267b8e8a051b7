package btree

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"minikv/internal/config"
)

// pathEntry records one step taken while descending to a leaf: the
// page visited and which child index was followed, so a split can be
// propagated back up without re-descending.
type pathEntry struct {
	pageID   int32
	childIdx int
}

// pageWrite is one page's worth of pending, not-yet-committed change.
type pageWrite struct {
	id  int32
	buf []byte
}

// promotion is what a split hands back to its parent: the separator
// key for the new right sibling, and the new sibling's page id.
type promotion struct {
	key     string
	childID int32
}

// Engine is the B-Tree-backed implementation of kv.KV.
type Engine struct {
	mu      sync.Mutex
	dataDir string
	cfg     config.BTreeConfig
	debug   config.DebugConfig
	logger  *slog.Logger

	meta   *meta
	pf     *pageFile
	wal    *wal
	closed bool
}

// Open loads (or creates) the Meta file and page file, replays any
// WAL-B records left from an unclean shutdown, and ensures page 0
// exists as an empty leaf root if this is a brand-new store.
func Open(dataDir string, cfg config.BTreeConfig, debug config.DebugConfig) (*Engine, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 4096
	}
	if cfg.MaxKeysPerPage <= 0 {
		cfg.MaxKeysPerPage = 3
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", dataDir, err)
	}

	logger := slog.Default()

	m, err := loadOrCreateMeta(filepath.Join(dataDir, "meta.txt"), cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}

	pf, err := openPageFile(filepath.Join(dataDir, "btree.data"), m.pageSize)
	if err != nil {
		return nil, fmt.Errorf("open page file: %w", err)
	}

	w, err := openWAL(filepath.Join(dataDir, "wal.log"))
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("open wal: %w", err)
	}

	redone, err := replayWALInto(w.path, pf)
	if err != nil {
		pf.Close()
		w.Close()
		return nil, fmt.Errorf("replay wal: %w", err)
	}
	if redone > 0 {
		if err := pf.Fsync(); err != nil {
			pf.Close()
			w.Close()
			return nil, fmt.Errorf("fsync after wal replay: %w", err)
		}
		if !debug.SuppressWALReset {
			if err := w.Reset(); err != nil {
				pf.Close()
				w.Close()
				return nil, fmt.Errorf("reset wal after replay: %w", err)
			}
		}
	}
	logger.Debug("btree wal replay complete", "applied", redone)

	e := &Engine{
		dataDir: dataDir,
		cfg:     cfg,
		debug:   debug,
		logger:  logger,
		meta:    m,
		pf:      pf,
		wal:     w,
	}

	if !pf.PageExists(0) {
		root := &page{id: 0, isLeaf: true, leaf: &leafPage{}}
		buf, err := encodePage(root, m.pageSize)
		if err != nil {
			pf.Close()
			w.Close()
			return nil, fmt.Errorf("encode empty root: %w", err)
		}
		if err := e.commit([]pageWrite{{id: 0, buf: buf}}); err != nil {
			pf.Close()
			w.Close()
			return nil, fmt.Errorf("create empty root: %w", err)
		}
	}

	return e, nil
}

func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, false, ErrClosed
	}

	ks := string(key)
	pageID := e.meta.rootPageID
	for {
		buf, err := e.pf.ReadPage(pageID)
		if err != nil {
			return nil, false, fmt.Errorf("get: %w", err)
		}
		p, err := decodePage(pageID, buf)
		if err != nil {
			return nil, false, err
		}
		if p.isLeaf {
			val, found := p.findKeyIndex(ks)
			return val, found, nil
		}
		pageID = p.internal.children[p.childIndexFor(ks)]
	}
}

func (e *Engine) Put(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	ks := string(key)
	var path []pathEntry
	var batch []pageWrite

	pageID := e.meta.rootPageID
	for {
		buf, err := e.pf.ReadPage(pageID)
		if err != nil {
			return fmt.Errorf("put: %w", err)
		}
		p, err := decodePage(pageID, buf)
		if err != nil {
			return err
		}

		if p.isLeaf {
			p.insertKey(ks, value)
			encoded, err := encodePage(p, e.meta.pageSize)
			if err != nil {
				return fmt.Errorf("put: encode leaf: %w", err)
			}
			replaceOrAppendWrite(&batch, pageWrite{id: p.id, buf: encoded})

			var promo *promotion
			if p.isFull(e.cfg.MaxKeysPerPage) {
				promo, err = e.leafSplit(p, &batch)
				if err != nil {
					return fmt.Errorf("put: leaf split: %w", err)
				}
			}
			if promo != nil {
				if err := e.propagateSplit(promo, path, &batch); err != nil {
					return fmt.Errorf("put: propagate split: %w", err)
				}
			}
			break
		}

		idx := p.childIndexFor(ks)
		path = append(path, pathEntry{pageID: pageID, childIdx: idx})
		pageID = p.internal.children[idx]
	}

	if err := e.commit(batch); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

// Delete is not implemented: the original this engine is grounded on
// never rebalances on underflow, so deleting a key is not a supported
// operation.
func (e *Engine) Delete(key []byte) error {
	return ErrUnsupported
}

func (e *Engine) leafSplit(p *page, batch *[]pageWrite) (*promotion, error) {
	mid := len(p.leaf.keys) / 2
	rightID := e.meta.allocPageID()
	right := &page{
		id:     rightID,
		isLeaf: true,
		leaf: &leafPage{
			keys:   append([]string{}, p.leaf.keys[mid:]...),
			values: append([][]byte{}, p.leaf.values[mid:]...),
		},
	}
	p.leaf.keys = p.leaf.keys[:mid]
	p.leaf.values = p.leaf.values[:mid]

	leftBuf, err := encodePage(p, e.meta.pageSize)
	if err != nil {
		return nil, err
	}
	rightBuf, err := encodePage(right, e.meta.pageSize)
	if err != nil {
		return nil, err
	}
	replaceOrAppendWrite(batch, pageWrite{id: p.id, buf: leftBuf})
	*batch = append(*batch, pageWrite{id: rightID, buf: rightBuf})

	return &promotion{key: right.leaf.keys[0], childID: rightID}, nil
}

func (e *Engine) internalSplit(p *page, batch *[]pageWrite) (*promotion, error) {
	mid := len(p.internal.keys) / 2
	promotedKey := p.internal.keys[mid]

	rightID := e.meta.allocPageID()
	right := &page{
		id:     rightID,
		isLeaf: false,
		internal: &internalPage{
			keys:     append([]string{}, p.internal.keys[mid+1:]...),
			children: append([]int32{}, p.internal.children[mid+1:]...),
		},
	}
	p.internal.keys = p.internal.keys[:mid]
	p.internal.children = p.internal.children[:mid+1]

	leftBuf, err := encodePage(p, e.meta.pageSize)
	if err != nil {
		return nil, err
	}
	rightBuf, err := encodePage(right, e.meta.pageSize)
	if err != nil {
		return nil, err
	}
	replaceOrAppendWrite(batch, pageWrite{id: p.id, buf: leftBuf})
	*batch = append(*batch, pageWrite{id: rightID, buf: rightBuf})

	return &promotion{key: promotedKey, childID: rightID}, nil
}

// propagateSplit walks back up the descent path, inserting each
// promotion into its parent and re-splitting the parent if that
// insertion overflowed it. If a promotion survives past the root, a
// brand-new internal root is allocated above the old one.
func (e *Engine) propagateSplit(promo *promotion, path []pathEntry, batch *[]pageWrite) error {
	for promo != nil && len(path) > 0 {
		last := path[len(path)-1]
		path = path[:len(path)-1]

		buf, err := e.pf.ReadPage(last.pageID)
		if err != nil {
			return err
		}
		parent, err := decodePage(last.pageID, buf)
		if err != nil {
			return err
		}

		parent.internal.keys = insertStringAt(parent.internal.keys, last.childIdx, promo.key)
		parent.internal.children = insertInt32At(parent.internal.children, last.childIdx+1, promo.childID)

		encoded, err := encodePage(parent, e.meta.pageSize)
		if err != nil {
			return fmt.Errorf("encode parent %d: %w", parent.id, err)
		}
		replaceOrAppendWrite(batch, pageWrite{id: parent.id, buf: encoded})

		if parent.isFull(e.cfg.MaxKeysPerPage) {
			promo, err = e.internalSplit(parent, batch)
			if err != nil {
				return err
			}
		} else {
			promo = nil
		}
	}

	if promo != nil {
		newRootID := e.meta.allocPageID()
		oldRootID := e.meta.rootPageID
		newRoot := &page{
			id:     newRootID,
			isLeaf: false,
			internal: &internalPage{
				keys:     []string{promo.key},
				children: []int32{oldRootID, promo.childID},
			},
		}
		encoded, err := encodePage(newRoot, e.meta.pageSize)
		if err != nil {
			return fmt.Errorf("encode new root: %w", err)
		}
		*batch = append(*batch, pageWrite{id: newRootID, buf: encoded})
		e.meta.rootPageID = newRootID
	}
	return nil
}

func replaceOrAppendWrite(batch *[]pageWrite, w pageWrite) {
	for i := range *batch {
		if (*batch)[i].id == w.id {
			(*batch)[i] = w
			return
		}
	}
	*batch = append(*batch, w)
}

// commit appends every write to the WAL, fsyncs once, applies every
// write to the page file, fsyncs once, persists Meta atomically, and
// (unless suppressed for debugging) resets the WAL. A crash at any
// point before the Meta rewrite leaves the WAL holding the same batch,
// ready to be replayed on the next Open.
func (e *Engine) commit(writes []pageWrite) error {
	for _, w := range writes {
		if err := e.wal.AppendPage(w.id, w.buf); err != nil {
			return fmt.Errorf("commit: wal append: %w", err)
		}
	}
	if err := e.wal.Fsync(); err != nil {
		return fmt.Errorf("commit: wal fsync: %w", err)
	}

	for _, w := range writes {
		if err := e.pf.WritePage(w.id, w.buf); err != nil {
			return fmt.Errorf("commit: write page: %w", err)
		}
	}
	if err := e.pf.Fsync(); err != nil {
		return fmt.Errorf("commit: page fsync: %w", err)
	}

	if err := e.meta.persistAtomically(); err != nil {
		return fmt.Errorf("commit: persist meta: %w", err)
	}

	if !e.debug.SuppressWALReset {
		if err := e.wal.Reset(); err != nil {
			return fmt.Errorf("commit: reset wal: %w", err)
		}
	}
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.pf.Close(); err != nil {
		e.wal.Close()
		return err
	}
	return e.wal.Close()
}

// Stats is a read-only snapshot of the engine's current shape.
type Stats struct {
	PageCount int64
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	info, err := e.pf.file.Stat()
	if err != nil {
		return Stats{}
	}
	return Stats{PageCount: info.Size() / int64(e.meta.pageSize)}
}
