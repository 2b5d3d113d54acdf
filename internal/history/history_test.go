package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/storage"
)

// failingKV accepts nothing.
type failingKV struct {
	puts int
}

func (f *failingKV) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (f *failingKV) Put(context.Context, string, []byte) error {
	f.puts++
	return errors.New("quota exceeded")
}
func (f *failingKV) Ping(context.Context) error { return errors.New("disk gone") }
func (f *failingKV) Close() error               { return nil }

// slowKV stalls its first Put until the caller has had time to race it.
type slowKV struct {
	*storage.Memory
	once    sync.Once
	entered chan struct{}
}

func newSlowKV() *slowKV {
	return &slowKV{Memory: storage.NewMemory(), entered: make(chan struct{})}
}

func (k *slowKV) Put(ctx context.Context, key string, value []byte) error {
	first := false
	k.once.Do(func() { first = true })
	if first {
		close(k.entered)
		time.Sleep(50 * time.Millisecond)
	}
	return k.Memory.Put(ctx, key, value)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLoad_MissingKey(t *testing.T) {
	s := Load(context.Background(), storage.NewMemory(), DefaultKey)
	if got := s.Entries(); len(got) != 0 {
		t.Errorf("Expected empty history, got %v", got)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	kv := storage.NewMemory()
	kv.Put(context.Background(), DefaultKey, []byte("{not json"))

	s := Load(context.Background(), kv, DefaultKey)
	if got := s.Entries(); got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil history, got %#v", got)
	}
}

func TestLoad_NullIsEmpty(t *testing.T) {
	kv := storage.NewMemory()
	kv.Put(context.Background(), DefaultKey, []byte("null"))

	if got := Load(context.Background(), kv, DefaultKey).Entries(); len(got) != 0 {
		t.Errorf("Expected empty history, got %v", got)
	}
}

func TestAppend_NewestFirst(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := Load(ctx, kv, DefaultKey)

	s.Append(ctx, "E1")
	s.Append(ctx, "E2")

	if got := s.Entries(); !equal(got, []string{"E2", "E1"}) {
		t.Errorf("Expected [E2 E1], got %v", got)
	}

	raw, _ := kv.Get(ctx, DefaultKey)
	if string(raw) != `["E2","E1"]` {
		t.Errorf("Expected persisted JSON list, got %s", raw)
	}

	reloaded := Load(ctx, kv, DefaultKey)
	if got := reloaded.Entries(); !equal(got, []string{"E2", "E1"}) {
		t.Errorf("Expected reloaded [E2 E1], got %v", got)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := Load(ctx, kv, DefaultKey)
	s.Append(ctx, "E1")

	if got := s.Clear(ctx); len(got) != 0 {
		t.Errorf("Expected Clear to return empty list, got %v", got)
	}
	raw, _ := kv.Get(ctx, DefaultKey)
	if string(raw) != `[]` {
		t.Errorf("Expected persisted empty list, got %s", raw)
	}
}

func TestConcurrentWrites_StorageMatchesMemory(t *testing.T) {
	tests := []struct {
		name   string
		second func(ctx context.Context, s *Store)
	}{
		{"append append", func(ctx context.Context, s *Store) { s.Append(ctx, "E2") }},
		{"append clear", func(ctx context.Context, s *Store) { s.Clear(ctx) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := newSlowKV()
			s := Load(ctx, kv, DefaultKey)

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Append(ctx, "E1")
			}()
			<-kv.entered
			tt.second(ctx, s)
			wg.Wait()

			stored := Load(ctx, kv, DefaultKey).Entries()
			if got := s.Entries(); !equal(stored, got) {
				t.Errorf("Expected storage %v to match memory, got %v", got, stored)
			}
		})
	}
}

func TestStorageFailure_KeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{}
	s := Load(ctx, kv, DefaultKey)

	s.Append(ctx, "Halo dunia")
	if got := s.Entries(); !equal(got, []string{"Halo dunia"}) {
		t.Errorf("Expected in-memory append despite storage failure, got %v", got)
	}
	s.Clear(ctx)
	if got := s.Entries(); len(got) != 0 {
		t.Errorf("Expected in-memory clear despite storage failure, got %v", got)
	}
	if kv.puts != 2 {
		t.Errorf("Expected 2 write attempts, got %d", kv.puts)
	}
}

func TestEntries_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := Load(ctx, storage.NewMemory(), DefaultKey)
	s.Append(ctx, "a")

	got := s.Entries()
	got[0] = "mutated"
	if s.Entries()[0] != "a" {
		t.Error("Expected Entries to return a copy")
	}
}

func TestRegistry_NamespacesClients(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	r := NewRegistry(kv, "")

	r.For(ctx, "alice").Append(ctx, "dari alice")
	r.For(ctx, "bob").Append(ctx, "dari bob")

	if r.For(ctx, "alice") != r.For(ctx, "alice") {
		t.Error("Expected the same store for repeated lookups")
	}
	if got := r.For(ctx, "alice").Entries(); !equal(got, []string{"dari alice"}) {
		t.Errorf("Expected alice's entries only, got %v", got)
	}

	raw, err := kv.Get(ctx, "transcriptionHistory:bob")
	if err != nil || string(raw) != `["dari bob"]` {
		t.Errorf("Expected bob's namespaced key, got %s (%v)", raw, err)
	}
}

func TestValidClientID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"browser-1", true},
		{"a_b", true},
		{"", false},
		{"has space", false},
		{"../etc", false},
	}
	for _, tt := range tests {
		if got := ValidClientID(tt.id); got != tt.want {
			t.Errorf("ValidClientID(%q): expected %v, got %v", tt.id, tt.want, got)
		}
	}
}
