package btree

// sanity bounds applied to any key or value length read off a page
// before trusting it enough to allocate a buffer of that size.
const (
	maxKeyLen = 10_000_000
	maxValLen = 100_000_000
)

// leafPage holds keys and their values, in sorted, parallel slices.
type leafPage struct {
	keys   []string
	values [][]byte
}

// internalPage holds keys and child page ids. The invariant
// len(children) == len(keys)+1 always holds for a non-degenerate page:
// children[i] is the subtree for keys >= keys[i-1] and < keys[i]; the
// first child has no lower bound and the last child holds every key
// >= the last separator.
type internalPage struct {
	keys     []string
	children []int32
}

// page is the tagged union of the two page shapes. Exactly one of leaf
// or internal is non-nil, selected by isLeaf.
type page struct {
	id       int32
	isLeaf   bool
	leaf     *leafPage
	internal *internalPage
}

// insertKey inserts key/value into a leaf page in sorted position,
// overwriting the existing value on an exact key match.
func (p *page) insertKey(key string, value []byte) {
	idx, exact := binarySearchKeys(p.leaf.keys, key)
	if exact {
		p.leaf.values[idx] = value
		return
	}
	p.leaf.keys = insertStringAt(p.leaf.keys, idx, key)
	p.leaf.values = insertBytesAt(p.leaf.values, idx, value)
}

// findKeyIndex looks up key in a leaf page.
func (p *page) findKeyIndex(key string) ([]byte, bool) {
	idx, exact := binarySearchKeys(p.leaf.keys, key)
	if !exact {
		return nil, false
	}
	return p.leaf.values[idx], true
}

// childIndexFor returns which child of an internal page to descend into
// for key: on an exact match against a separator key, the right-hand
// child (idx+1), otherwise the child at the insertion point.
func (p *page) childIndexFor(key string) int {
	idx, exact := binarySearchKeys(p.internal.keys, key)
	if exact {
		return idx + 1
	}
	return idx
}

func (p *page) isFull(maxKeys int) bool {
	if p.isLeaf {
		return len(p.leaf.keys) >= maxKeys
	}
	return len(p.internal.keys) >= maxKeys
}

// binarySearchKeys returns the index of target in keys if present, or
// the index at which it would be inserted to keep keys sorted.
func binarySearchKeys(keys []string, target string) (idx int, exact bool) {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case keys[mid] == target:
			return mid, true
		case keys[mid] < target:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

func insertStringAt(s []string, idx int, v string) []string {
	s = append(s, "")
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func insertBytesAt(s [][]byte, idx int, v []byte) [][]byte {
	s = append(s, nil)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func insertInt32At(s []int32, idx int, v int32) []int32 {
	s = append(s, 0)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}
