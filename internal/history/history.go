// Package history keeps finalized transcripts, newest first, mirrored to a
// key-value store.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/failure"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/storage"
)

// DefaultKey is the storage key holding the serialized list.
const DefaultKey = "transcriptionHistory"

// Store is the in-memory list of transcripts. Storage is a best-effort
// mirror: the in-memory list is authoritative for the current process.
type Store struct {
	kv      storage.KV
	key     string
	logger  zerolog.Logger
	// writeMu orders mutation plus Put so storage ends with the last list.
	writeMu sync.Mutex
	mu      sync.RWMutex
	entries []string
}

// Load reads the persisted list under key. A missing key, unreadable storage
// or invalid JSON all yield an empty store.
func Load(ctx context.Context, kv storage.KV, key string) *Store {
	s := &Store{
		kv:      kv,
		key:     key,
		logger:  observability.WithComponent("history").With().Str("key", key).Logger(),
		entries: []string{},
	}

	raw, err := kv.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return s
	case err != nil:
		s.storageFailed("load", err)
		return s
	}

	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil || entries == nil {
		if err != nil {
			s.logger.Warn().Err(err).Msg("Discarding unreadable history")
		}
		return s
	}
	s.entries = entries
	return s
}

// Entries returns a copy of the list, newest first.
func (s *Store) Entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}

// Append prepends entry and persists the full list.
func (s *Store) Append(ctx context.Context, entry string) []string {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.entries = append([]string{entry}, s.entries...)
	snapshot := append([]string(nil), s.entries...)
	s.mu.Unlock()

	observability.RecordHistoryCommit()
	s.persist(ctx, snapshot)
	return snapshot
}

// Clear empties the list and persists it.
func (s *Store) Clear(ctx context.Context) []string {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.entries = []string{}
	s.mu.Unlock()

	s.persist(ctx, []string{})
	return []string{}
}

func (s *Store) persist(ctx context.Context, entries []string) {
	raw, err := json.Marshal(entries)
	if err != nil {
		s.storageFailed("encode", err)
		return
	}
	if err := s.kv.Put(ctx, s.key, raw); err != nil {
		s.storageFailed("save", err)
	}
}

func (s *Store) storageFailed(op string, err error) {
	observability.RecordStorageFailure(op)
	s.logger.Error().
		Err(failure.New(failure.ErrStorage, "history."+op, "", err)).
		Str("op", op).
		Msg("History storage failed")
}
