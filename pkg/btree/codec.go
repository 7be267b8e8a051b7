package btree

import (
	"encoding/binary"
	"fmt"
)

const (
	pageMagic       uint32 = 0xDEADBEEF
	supportedVersion uint32 = 1
	headerSize             = 32
	reservedSize           = 16
	flagLeaf        uint32 = 1 << 0
)

// encodePage serializes p into a buffer exactly pageSize bytes long.
// Writing past pageSize is a "page overflow" error — the caller is
// expected to have already split a page before it grows that large.
func encodePage(p *page, pageSize int32) ([]byte, error) {
	buf := make([]byte, 0, pageSize)

	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[0:4], pageMagic)
	binary.BigEndian.PutUint32(header[4:8], supportedVersion)
	var flags uint32
	if p.isLeaf {
		flags |= flagLeaf
	}
	binary.BigEndian.PutUint32(header[8:12], flags)
	var keyCount int
	if p.isLeaf {
		keyCount = len(p.leaf.keys)
	} else {
		keyCount = len(p.internal.keys)
	}
	binary.BigEndian.PutUint32(header[12:16], uint32(keyCount))
	buf = append(buf, header[:]...)

	writeUint32 := func(v uint32) error {
		if len(buf)+4 > int(pageSize) {
			return fmt.Errorf("btree: page %d overflow", p.id)
		}
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
		return nil
	}
	writeBytes := func(b []byte) error {
		if len(buf)+len(b) > int(pageSize) {
			return fmt.Errorf("btree: page %d overflow", p.id)
		}
		buf = append(buf, b...)
		return nil
	}

	if p.isLeaf {
		for i, key := range p.leaf.keys {
			kb := []byte(key)
			if err := writeUint32(uint32(len(kb))); err != nil {
				return nil, err
			}
			if err := writeBytes(kb); err != nil {
				return nil, err
			}
			vb := p.leaf.values[i]
			if err := writeUint32(uint32(len(vb))); err != nil {
				return nil, err
			}
			if err := writeBytes(vb); err != nil {
				return nil, err
			}
		}
	} else if keyCount > 0 {
		if err := writeUint32(uint32(p.internal.children[0])); err != nil {
			return nil, err
		}
		for i, key := range p.internal.keys {
			kb := []byte(key)
			if err := writeUint32(uint32(len(kb))); err != nil {
				return nil, err
			}
			if err := writeBytes(kb); err != nil {
				return nil, err
			}
			if err := writeUint32(uint32(p.internal.children[i+1])); err != nil {
				return nil, err
			}
		}
	}

	out := make([]byte, pageSize)
	copy(out, buf)
	return out, nil
}

// decodePage parses a pageSize-length buffer read from the page file
// back into a page, validating the header and, for internal pages, the
// children = keys+1 invariant.
func decodePage(id int32, buf []byte) (*page, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: page %d shorter than its header", ErrCorrupt, id)
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != pageMagic {
		return nil, fmt.Errorf("%w: page %d has bad magic %#x", ErrCorrupt, id, magic)
	}
	version := binary.BigEndian.Uint32(buf[4:8])
	if version != supportedVersion {
		return nil, fmt.Errorf("%w: page %d has unsupported version %d", ErrCorrupt, id, version)
	}
	flags := binary.BigEndian.Uint32(buf[8:12])
	isLeaf := flags&flagLeaf != 0
	keyCount := int(binary.BigEndian.Uint32(buf[12:16]))
	pos := headerSize

	readUint32 := func() (uint32, error) {
		if pos+4 > len(buf) {
			return 0, fmt.Errorf("%w: page %d truncated", ErrCorrupt, id)
		}
		v := binary.BigEndian.Uint32(buf[pos : pos+4])
		pos += 4
		return v, nil
	}
	readBytes := func(n int) ([]byte, error) {
		if n < 0 || pos+n > len(buf) {
			return nil, fmt.Errorf("%w: page %d truncated", ErrCorrupt, id)
		}
		b := make([]byte, n)
		copy(b, buf[pos:pos+n])
		pos += n
		return b, nil
	}

	if isLeaf {
		keys := make([]string, 0, keyCount)
		values := make([][]byte, 0, keyCount)
		for i := 0; i < keyCount; i++ {
			kLen, err := readUint32()
			if err != nil {
				return nil, err
			}
			if kLen == 0 || kLen > maxKeyLen {
				return nil, fmt.Errorf("%w: page %d bad key length %d", ErrCorrupt, id, kLen)
			}
			kb, err := readBytes(int(kLen))
			if err != nil {
				return nil, err
			}
			vLen, err := readUint32()
			if err != nil {
				return nil, err
			}
			if vLen > maxValLen {
				return nil, fmt.Errorf("%w: page %d bad value length %d", ErrCorrupt, id, vLen)
			}
			vb, err := readBytes(int(vLen))
			if err != nil {
				return nil, err
			}
			keys = append(keys, string(kb))
			values = append(values, vb)
		}
		return &page{id: id, isLeaf: true, leaf: &leafPage{keys: keys, values: values}}, nil
	}

	if keyCount == 0 {
		return &page{id: id, isLeaf: false, internal: &internalPage{}}, nil
	}

	children := make([]int32, 0, keyCount+1)
	child0, err := readUint32()
	if err != nil {
		return nil, err
	}
	children = append(children, int32(child0))

	keys := make([]string, 0, keyCount)
	for i := 0; i < keyCount; i++ {
		kLen, err := readUint32()
		if err != nil {
			return nil, err
		}
		if kLen == 0 || kLen > maxKeyLen {
			return nil, fmt.Errorf("%w: page %d bad key length %d", ErrCorrupt, id, kLen)
		}
		kb, err := readBytes(int(kLen))
		if err != nil {
			return nil, err
		}
		childI, err := readUint32()
		if err != nil {
			return nil, err
		}
		keys = append(keys, string(kb))
		children = append(children, int32(childI))
	}

	if len(children) != len(keys)+1 {
		return nil, fmt.Errorf("%w: page %d violates children=keys+1 (got %d children, %d keys)", ErrCorrupt, id, len(children), len(keys))
	}
	return &page{id: id, isLeaf: false, internal: &internalPage{keys: keys, children: children}}, nil
}
