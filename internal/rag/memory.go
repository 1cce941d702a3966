package rag

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// snapshotMagic identifies a memory index snapshot file.
const snapshotMagic = "GQAIDX01"

// MemoryIndex is an in-process VectorIndex using brute-force cosine search.
// It suits small corpora, local runs, and tests. The contents can be written
// to and restored from a snapshot file so an index is built once and queried
// by later processes.
type MemoryIndex struct {
	// model is the embedder version tag every stored vector must carry.
	model string

	// dimensions is the fixed vector length.
	dimensions int

	// snapshotPath is where Persist writes the index. Empty disables it.
	snapshotPath string

	mu      sync.RWMutex
	entries map[string]IndexEntry
}

// NewMemoryIndex creates an empty index for vectors of the given model tag
// and dimension.
func NewMemoryIndex(model string, dimensions int) (*MemoryIndex, error) {
	if model == "" {
		return nil, fmt.Errorf("rag: memory index model tag must not be empty")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("rag: memory index dimensions must be positive, got %d", dimensions)
	}
	return &MemoryIndex{
		model:      model,
		dimensions: dimensions,
		entries:    make(map[string]IndexEntry),
	}, nil
}

// Upsert validates every entry before storing any of them, then replaces
// entries by chunk id.
func (m *MemoryIndex) Upsert(ctx context.Context, entries ...IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return indexErr("upsert", err)
	}
	for _, e := range entries {
		if err := m.check(e.Vector); err != nil {
			return indexErr("upsert", fmt.Errorf("chunk %s: %w", e.ChunkID, err))
		}
		if e.ChunkID == "" {
			return indexErr("upsert", errors.New("chunk id must not be empty"))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		vals := make([]float32, len(e.Vector.Values))
		copy(vals, e.Vector.Values)
		e.Vector.Values = vals
		m.entries[e.ChunkID] = e
	}
	return nil
}

// Delete removes entries by chunk id.
func (m *MemoryIndex) Delete(ctx context.Context, chunkIDs ...string) error {
	if err := ctx.Err(); err != nil {
		return indexErr("delete", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range chunkIDs {
		delete(m.entries, id)
	}
	return nil
}

// DeleteDocument removes every entry whose payload references documentID.
func (m *MemoryIndex) DeleteDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return indexErr("delete document", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.Payload.DocumentID == documentID {
			delete(m.entries, id)
		}
	}
	return nil
}

// Search scores every stored vector against query and returns the top k.
func (m *MemoryIndex) Search(ctx context.Context, query Vector, k int) ([]SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, indexErr("search", err)
	}
	if err := m.check(query); err != nil {
		return nil, indexErr("search", err)
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	hits := make([]SearchHit, 0, len(m.entries))
	for id, e := range m.entries {
		hits = append(hits, SearchHit{
			ChunkID: id,
			Score:   Cosine(query.Values, e.Vector.Values),
			Payload: e.Payload,
		})
	}
	m.mu.RUnlock()

	SortHits(hits)
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Reset drops all entries.
func (m *MemoryIndex) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return indexErr("reset", err)
	}
	m.mu.Lock()
	m.entries = make(map[string]IndexEntry)
	m.mu.Unlock()
	return nil
}

// Info reports the index configuration.
func (m *MemoryIndex) Info(_ context.Context) (IndexInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return IndexInfo{
		Backend:    "memory",
		Model:      m.model,
		Dimensions: m.dimensions,
		Entries:    len(m.entries),
	}, nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error { return nil }

// Persist writes the index to its configured snapshot path.
func (m *MemoryIndex) Persist() error {
	return m.Save(m.snapshotPath)
}

func (m *MemoryIndex) check(v Vector) error {
	if v.Model != m.model {
		return fmt.Errorf("%w: got %q, index has %q", ErrModelMismatch, v.Model, m.model)
	}
	if len(v.Values) != m.dimensions {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(v.Values), m.dimensions)
	}
	return nil
}

// SortHits orders hits by descending score, breaking ties by chunk id so
// results are deterministic.
func SortHits(hits []SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
}

// Save writes the index to path, creating the parent directory if needed.
// The file is written to a temporary name and renamed so a crash never
// leaves a half-written snapshot behind.
//
// Format (little endian): magic, model tag (len-prefixed), dimensions (u32),
// count (u32), then per entry: chunk id (len-prefixed), vector
// (dimensions*4 bytes), payload JSON (len-prefixed).
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("rag: create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("rag: create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := bufio.NewWriter(tmp)
	werr := func() error {
		if _, err := w.WriteString(snapshotMagic); err != nil {
			return err
		}
		if err := writeString(w, m.model); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(ids))); err != nil {
			return err
		}
		for _, id := range ids {
			e := m.entries[id]
			if err := writeString(w, id); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, e.Vector.Values); err != nil {
				return err
			}
			raw, err := json.Marshal(e.Payload)
			if err != nil {
				return err
			}
			if err := writeString(w, string(raw)); err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	m.mu.RUnlock()

	if werr != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("rag: write snapshot: %w", werr)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rag: close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rag: commit snapshot: %w", err)
	}
	return nil
}

// Load replaces the index contents with the snapshot at path. A missing file
// leaves the index unchanged and is not an error. A snapshot built by a
// different model or dimension is rejected with ErrModelMismatch or
// ErrDimensionMismatch.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("rag: open snapshot: %w", err)
	}
	defer f.Close() //nolint:errcheck

	r := bufio.NewReader(f)
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != snapshotMagic {
		return fmt.Errorf("rag: %s is not an index snapshot", path)
	}
	model, err := readString(r)
	if err != nil {
		return fmt.Errorf("rag: read snapshot model: %w", err)
	}
	if model != m.model {
		return fmt.Errorf("rag: snapshot %s: %w: file has %q, index has %q", path, ErrModelMismatch, model, m.model)
	}
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("rag: read snapshot dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("rag: snapshot %s: %w: file has %d, index has %d", path, ErrDimensionMismatch, dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("rag: read snapshot count: %w", err)
	}

	entries := make(map[string]IndexEntry, n)
	for i := uint32(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return fmt.Errorf("rag: read snapshot entry %d: %w", i, err)
		}
		vals := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vals); err != nil {
			return fmt.Errorf("rag: read snapshot vector %d: %w", i, err)
		}
		raw, err := readString(r)
		if err != nil {
			return fmt.Errorf("rag: read snapshot payload %d: %w", i, err)
		}
		var p Payload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return fmt.Errorf("rag: decode snapshot payload %d: %w", i, err)
		}
		entries[id] = IndexEntry{
			ChunkID: id,
			Vector:  Vector{Values: vals, Model: model},
			Payload: p,
		}
	}

	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// maxSnapshotString bounds a single length-prefixed field so a corrupt file
// cannot trigger a huge allocation.
const maxSnapshotString = math.MaxInt32 / 4

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxSnapshotString {
		return "", fmt.Errorf("field length %d out of range", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
