package lsm

import (
	"github.com/zhangyunhao116/skipmap"
)

// memTableCountCap is the coarse entry-count safety stop: flushing is
// normally driven by ApproxBytes, but a table loaded with many
// tombstones or tiny values can grow without tripping the byte-size
// trigger at all, so a count cap backs it up.
const memTableCountCap = 4

// memTable is the in-memory, sorted store of the most recent writes. It
// is not safe for concurrent use on its own; the Engine's single mutex
// is what makes it safe, matching the "synchronized" methods on the
// original MemTable.
type memTable struct {
	data *skipmap.FuncMap[string, Record]
}

func newMemTable() *memTable {
	return &memTable{
		data: skipmap.NewFunc[string, Record](func(a, b string) bool { return a < b }),
	}
}

func (m *memTable) Put(key string, value []byte) {
	m.data.Store(key, Record{Value: value})
}

func (m *memTable) Delete(key string) {
	m.data.Store(key, Record{Tombstone: true})
}

// Get returns the record for key and whether it was present at all.
func (m *memTable) Get(key string) (Record, bool) {
	return m.data.Load(key)
}

func (m *memTable) IsEmpty() bool {
	return m.data.Len() == 0
}

func (m *memTable) Len() int {
	return m.data.Len()
}

// IsFull reports whether the table has reached the coarse entry-count
// cap, the safety-stop flush trigger that backs up the normal
// byte-size trigger.
func (m *memTable) IsFull() bool {
	return m.data.Len() >= memTableCountCap
}

// ApproxBytes recomputes the table's approximate size by summing key
// bytes plus non-tombstone value bytes over every entry, matching the
// original MemTable.approxBytes()'s live recomputation rather than an
// incrementally maintained counter.
func (m *memTable) ApproxBytes() int64 {
	var total int64
	m.data.Range(func(key string, rec Record) bool {
		total += int64(len(key))
		if !rec.Tombstone {
			total += int64(len(rec.Value))
		}
		return true
	})
	return total
}

// Snapshot returns every entry in key order, tombstones included. The
// caller decides whether to keep or strip tombstones.
func (m *memTable) Snapshot() []entry {
	entries := make([]entry, 0, m.data.Len())
	m.data.Range(func(key string, rec Record) bool {
		entries = append(entries, entry{Key: key, Record: rec})
		return true
	})
	return entries
}

// Clear discards all entries, replacing the backing map with a fresh
// one rather than deleting keys one at a time.
func (m *memTable) Clear() {
	m.data = skipmap.NewFunc[string, Record](func(a, b string) bool { return a < b })
}
