package store

import (
	"context"
	"sync"
)

const (
	// StoreName is the key the store snapshot is persisted under.
	StoreName = "chat-store"
	// SchemaVersion is the version written into every persisted envelope.
	// Envelopes carrying any other version are discarded on load.
	SchemaVersion = 1
)

// Driver is the durable key/value backend of the store.
// Load returns (nil, nil) when nothing has been saved under key.
type Driver interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Close() error
}

// envelope is the versioned wrapper around the persisted state.
type envelope struct {
	Version int   `json:"version"`
	State   State `json:"state"`
}

// MemoryDriver keeps snapshots in process memory. It backs the "memory" driver and tests.
type MemoryDriver struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{data: make(map[string][]byte)}
}

func (d *MemoryDriver) Load(_ context.Context, key string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (d *MemoryDriver) Save(_ context.Context, key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[key] = append([]byte(nil), value...)
	return nil
}

func (d *MemoryDriver) Close() error {
	return nil
}
