package rag

import (
	"context"
	"fmt"
	"strings"
)

// Index backend identifiers.
const (
	BackendMemory = "memory"
	BackendQdrant = "qdrant"
)

// IndexConfig selects and configures a VectorIndex backend.
type IndexConfig struct {
	// Backend is "memory" (default) or "qdrant".
	Backend string

	// SnapshotPath is the memory index snapshot file. When set, OpenIndex
	// loads it and Persist writes back to it.
	SnapshotPath string

	// Qdrant holds connection settings for the qdrant backend.
	Qdrant QdrantConfig

	// Discard opens the index without its previous contents: the snapshot is
	// not loaded and a Qdrant collection built for another model or size is
	// dropped and recreated. Set it for rebuilds, which is the only way to
	// switch embedding model.
	Discard bool
}

// Persister is implemented by indexes that keep their state in a local file
// and must be flushed after mutation.
type Persister interface {
	Persist() error
}

// Pinger is implemented by indexes backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpenIndex constructs the configured VectorIndex for vectors of the given
// model tag and dimension. Callers own the returned index and must Close it.
func OpenIndex(ctx context.Context, cfg IndexConfig, model string, dimensions int) (VectorIndex, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		idx, err := NewMemoryIndex(model, dimensions)
		if err != nil {
			return nil, err
		}
		idx.snapshotPath = cfg.SnapshotPath
		if cfg.Discard {
			return idx, nil
		}
		if err := idx.Load(cfg.SnapshotPath); err != nil {
			return nil, indexErr("open", err)
		}
		return idx, nil
	case BackendQdrant:
		return NewQdrantIndex(ctx, cfg.Qdrant, model, dimensions, cfg.Discard)
	default:
		return nil, fmt.Errorf("rag: unsupported index backend %q (supported: memory, qdrant)", cfg.Backend)
	}
}

// Flush persists idx if it is backed by a local snapshot file.
func Flush(idx VectorIndex) error {
	if p, ok := idx.(Persister); ok {
		if err := p.Persist(); err != nil {
			return indexErr("persist", err)
		}
	}
	return nil
}
