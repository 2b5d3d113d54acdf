package history

import (
	"context"
	"regexp"
	"sync"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/storage"
)

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidClientID reports whether id can be used as a history namespace.
func ValidClientID(id string) bool {
	return clientIDPattern.MatchString(id)
}

// Registry hands out one Store per browser client, all sharing one KV.
// A client's store is loaded on first use and kept for the process lifetime.
type Registry struct {
	kv      storage.KV
	baseKey string
	mu      sync.Mutex
	stores  map[string]*Store
}

// NewRegistry creates a registry namespacing keys as "<baseKey>:<client>".
func NewRegistry(kv storage.KV, baseKey string) *Registry {
	if baseKey == "" {
		baseKey = DefaultKey
	}
	return &Registry{kv: kv, baseKey: baseKey, stores: make(map[string]*Store)}
}

// For returns the store for client, loading it on first use.
func (r *Registry) For(ctx context.Context, client string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[client]; ok {
		return s
	}
	key := r.baseKey
	if client != "" {
		key = r.baseKey + ":" + client
	}
	s := Load(ctx, r.kv, key)
	r.stores[client] = s
	return s
}

// Ping checks the backing storage; used for readiness.
func (r *Registry) Ping(ctx context.Context) (bool, error) {
	if err := r.kv.Ping(ctx); err != nil {
		return false, err
	}
	return true, nil
}
