package state

import (
	"context"
	"fmt"
	"sync"
)

// MemoryArtifacts is an in-process ArtifactStore.
type MemoryArtifacts struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryArtifacts creates an empty artifact store.
func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{blobs: make(map[string][]byte)}
}

var _ ArtifactStore = (*MemoryArtifacts)(nil)

// Put stores a blob under the given artifact id.
func (a *MemoryArtifacts) Put(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.blobs[id] = append([]byte(nil), data...)
	return nil
}

// Get retrieves a blob by artifact id.
func (a *MemoryArtifacts) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	data, ok := a.blobs[id]
	if !ok {
		return nil, fmt.Errorf("artifact %s not found", id)
	}
	return append([]byte(nil), data...), nil
}
