package lsm

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSSTable_WriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sst-000001.dat")

	entries := []entry{
		{Key: "alpha", Record: Record{Value: []byte("1")}},
		{Key: "bravo", Record: Record{Tombstone: true}},
		{Key: "charlie", Record: Record{Value: []byte("3")}},
		{Key: "delta", Record: Record{Value: []byte("4")}},
		{Key: "echo", Record: Record{Value: []byte("5")}},
	}

	if err := writeSSTable(path, entries, 2); err != nil {
		t.Fatalf("writeSSTable: %v", err)
	}

	sst, err := openSSTable(path)
	if err != nil {
		t.Fatalf("openSSTable: %v", err)
	}

	rec, found, err := sst.Get("charlie")
	if err != nil || !found || string(rec.Value) != "3" {
		t.Fatalf("Get(charlie) = %+v, %v, %v; want value 3, true, nil", rec, found, err)
	}

	rec, found, err = sst.Get("bravo")
	if err != nil || !found || !rec.Tombstone {
		t.Fatalf("Get(bravo) = %+v, %v, %v; want tombstone, true, nil", rec, found, err)
	}

	_, found, err = sst.Get("nonexistent")
	if err != nil || found {
		t.Fatalf("Get(nonexistent) = found %v, err %v; want false, nil", found, err)
	}

	all, err := sst.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != len(entries) {
		t.Fatalf("ReadAll returned %d entries, want %d", len(all), len(entries))
	}
	for i, e := range all {
		if e.Key != entries[i].Key {
			t.Fatalf("ReadAll()[%d].Key = %q, want %q (order must be preserved)", i, e.Key, entries[i].Key)
		}
	}
}

func TestSSTable_BadMagicRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sst-000001.dat")
	if err := writeSSTable(path, []entry{{Key: "k", Record: Record{Value: []byte("v")}}}, 4); err != nil {
		t.Fatalf("writeSSTable: %v", err)
	}

	// Corrupt the magic bytes in the footer.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := openSSTable(path); err == nil {
		t.Fatalf("openSSTable with corrupted magic succeeded, want error")
	}
}
