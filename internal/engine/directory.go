package engine

import (
	"context"
	"sync"
)

// MemDirectory is the in-memory user directory, flushed to users.json
// whenever a new name is remembered.
type MemDirectory struct {
	mu        sync.RWMutex
	names     map[string]string
	persister *Persistence
}

// NewMemDirectory initializes a directory from previously loaded names.
func NewMemDirectory(names map[string]string, p *Persistence) *MemDirectory {
	if names == nil {
		names = make(map[string]string)
	}
	return &MemDirectory{names: names, persister: p}
}

func (d *MemDirectory) Name(_ context.Context, userID string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[userID]
	return name, ok, nil
}

func (d *MemDirectory) Remember(_ context.Context, userID, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.names[userID]; ok {
		return nil
	}
	d.names[userID] = name
	if d.persister == nil {
		return nil
	}
	if err := d.persister.SaveNames(d.names); err != nil {
		delete(d.names, userID)
		return err
	}
	return nil
}

func (d *MemDirectory) Names(_ context.Context) (map[string]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]string, len(d.names))
	for k, v := range d.names {
		out[k] = v
	}
	return out, nil
}
