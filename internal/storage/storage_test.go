package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func testKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, err := kv.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing key, got %v", err)
	}

	if err := kv.Put(ctx, "transcriptionHistory", []byte(`["a"]`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := kv.Put(ctx, "transcriptionHistory", []byte(`["b","a"]`)); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}

	got, err := kv.Get(ctx, "transcriptionHistory")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `["b","a"]` {
		t.Errorf("Expected latest value, got %s", got)
	}

	if err := kv.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestMemory(t *testing.T) {
	testKV(t, NewMemory())
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	m := NewMemory()
	m.Put(context.Background(), "k", []byte("abc"))

	v, _ := m.Get(context.Background(), "k")
	v[0] = 'x'

	again, _ := m.Get(context.Background(), "k")
	if string(again) != "abc" {
		t.Errorf("Expected stored value to be unaffected, got %s", again)
	}
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "data", "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()

	testKV(t, s)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if err := s.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()

	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Errorf("Expected persisted value 'v', got %q (%v)", got, err)
	}
}
