package store

import (
	"bytes"
	"path/filepath"
	"testing"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	if _, ok, err := kv.Get([]byte("missing")); err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
	if err := kv.Put([]byte("a/2"), []byte("two")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := kv.Put([]byte("a/1"), []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := kv.Put([]byte("b/1"), []byte{0x00, 0xFF}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := kv.Put([]byte("a/2"), []byte("two-v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	v, ok, err := kv.Get([]byte("a/2"))
	if err != nil || !ok || string(v) != "two-v2" {
		t.Fatalf("unexpected get: %q ok=%v err=%v", v, ok, err)
	}

	entries, err := kv.List([]byte("a/"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || string(entries[0].Key) != "a/1" || string(entries[1].Key) != "a/2" {
		t.Fatalf("unexpected list: %+v", entries)
	}

	if err := kv.Delete([]byte("a/1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := kv.Delete([]byte("a/1")); err != nil {
		t.Fatalf("delete is idempotent, got %v", err)
	}
	if _, ok, _ := kv.Get([]byte("a/1")); ok {
		t.Fatalf("deleted key still present")
	}
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestMemoryKVReturnsCopies(t *testing.T) {
	kv := NewMemory()
	val := []byte("abc")
	if err := kv.Put([]byte("k"), val); err != nil {
		t.Fatalf("put: %v", err)
	}
	val[0] = 'x'
	got, _, _ := kv.Get([]byte("k"))
	if string(got) != "abc" {
		t.Fatalf("store aliased caller buffer: %q", got)
	}
}

func TestFileKVPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "failed.json")
	kv, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseKV(t, kv)

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok, err := reopened.Get([]byte("b/1"))
	if err != nil || !ok || !bytes.Equal(v, []byte{0x00, 0xFF}) {
		t.Fatalf("binary value not persisted: %x ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := reopened.Get([]byte("a/1")); ok {
		t.Fatalf("delete not persisted")
	}
	entries, _ := reopened.List(nil)
	if len(entries) != 2 {
		t.Fatalf("unexpected entries after reopen: %d", len(entries))
	}
}
