package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys stored with every Qdrant point.
const (
	payloadModel      = "model"
	payloadDocumentID = "document_id"
	payloadTitle      = "title"
	payloadOrigin     = "origin"
	payloadText       = "text"
	payloadSeq        = "seq"
	payloadStart      = "start"
	payloadEnd        = "end"
)

// QdrantConfig holds connection parameters for a Qdrant vector index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements VectorIndex backed by a Qdrant collection. Every
// point carries the embedder model tag in its payload and searches filter on
// it, so vectors from another model version are never compared.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg QdrantConfig

	// model is the embedder version tag of this index.
	model string

	// dimensions is the vector size of the collection.
	dimensions int
}

// NewQdrantIndex connects to Qdrant and ensures the target collection exists
// with the expected vector size, creating it if necessary. An existing
// collection holding another model's points, or sized for another dimension,
// is rejected unless discard is set, in which case it is recreated.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, model string, dimensions int, discard bool) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name must not be empty")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("qdrant: dimensions must be positive, got %d", dimensions)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg, model: model, dimensions: dimensions}
	if err := idx.ensureCollection(ctx, discard); err != nil {
		client.Close() //nolint:errcheck
		return nil, err
	}
	return idx, nil
}

// ensureCollection creates the collection if it does not exist, and checks
// the vector size and stored model of an existing one.
func (s *QdrantIndex) ensureCollection(ctx context.Context, discard bool) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return indexErr("open", fmt.Errorf("qdrant: failed to check collection existence: %w", err))
	}
	if !exists {
		return s.createCollection(ctx)
	}

	info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
	if err != nil {
		return indexErr("open", fmt.Errorf("qdrant: failed to read collection %q: %w", s.cfg.Collection, err))
	}
	size := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())

	var stored string
	if size == 0 || size == s.dimensions {
		if stored, err = s.foreignModel(ctx); err != nil {
			return indexErr("open", err)
		}
	}

	recreate, err := reconcileCollection(s.cfg.Collection, size, stored, s.dimensions, s.model, discard)
	if err != nil {
		return indexErr("open", err)
	}
	if !recreate {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
		return indexErr("open", fmt.Errorf("qdrant: failed to drop collection %q: %w", s.cfg.Collection, err))
	}
	return s.createCollection(ctx)
}

// foreignModel returns the model tag of any point not written by this
// index's model, or "" when every point matches.
func (s *QdrantIndex) foreignModel(ctx context.Context) (string, error) {
	limit := uint32(1)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter: &qdrant.Filter{
			MustNot: []*qdrant.Condition{qdrant.NewMatch(payloadModel, s.model)},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayloadInclude(payloadModel),
	})
	if err != nil {
		return "", fmt.Errorf("qdrant: failed to read stored model of %q: %w", s.cfg.Collection, err)
	}
	if len(points) == 0 {
		return "", nil
	}
	if m := points[0].GetPayload()[payloadModel].GetStringValue(); m != "" {
		return m, nil
	}
	return "unknown", nil
}

// reconcileCollection decides what to do with an existing collection of the
// given vector size whose points include storedModel ("" when all points
// carry model). It reports whether the collection must be recreated, or an
// error when it is incompatible and discard is not set.
func reconcileCollection(name string, size int, storedModel string, dimensions int, model string, discard bool) (bool, error) {
	switch {
	case size != 0 && size != dimensions:
		if discard {
			return true, nil
		}
		return false, fmt.Errorf("qdrant: collection %q: %w: has %d, want %d (re-run ingest with --rebuild)",
			name, ErrDimensionMismatch, size, dimensions)
	case storedModel != "":
		if discard {
			return true, nil
		}
		return false, fmt.Errorf("qdrant: collection %q: %w: holds %q, embedder is %q (re-run ingest with --rebuild)",
			name, ErrModelMismatch, storedModel, model)
	}
	return false, nil
}

func (s *QdrantIndex) createCollection(ctx context.Context) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return indexErr("open", fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err))
	}

	// Keyword indexes make the model and document filters cheap.
	for _, field := range []string{payloadModel, payloadDocumentID} {
		wait := true
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.cfg.Collection,
			Wait:           &wait,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return indexErr("open", fmt.Errorf("qdrant: failed to index payload field %q: %w", field, err))
		}
	}
	return nil
}

// Upsert stores entries as points and waits until the write is applied.
func (s *QdrantIndex) Upsert(ctx context.Context, entries ...IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		if e.Vector.Model != s.model {
			return indexErr("upsert", fmt.Errorf("chunk %s: %w: got %q, index has %q", e.ChunkID, ErrModelMismatch, e.Vector.Model, s.model))
		}
		if len(e.Vector.Values) != s.dimensions {
			return indexErr("upsert", fmt.Errorf("chunk %s: %w: got %d, index has %d", e.ChunkID, ErrDimensionMismatch, len(e.Vector.Values), s.dimensions))
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(e.ChunkID),
			Vectors: qdrant.NewVectors(e.Vector.Values...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadModel:      s.model,
				payloadDocumentID: e.Payload.DocumentID,
				payloadTitle:      e.Payload.Title,
				payloadOrigin:     e.Payload.Origin,
				payloadText:       e.Payload.Text,
				payloadSeq:        e.Payload.Seq,
				payloadStart:      e.Payload.Start,
				payloadEnd:        e.Payload.End,
			}),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return indexErr("upsert", fmt.Errorf("qdrant: upsert failed: %w", err))
	}
	return nil
}

// Search performs a cosine similarity search restricted to points of this
// index's model tag.
func (s *QdrantIndex) Search(ctx context.Context, query Vector, k int) ([]SearchHit, error) {
	if query.Model != s.model {
		return nil, indexErr("search", fmt.Errorf("%w: got %q, index has %q", ErrModelMismatch, query.Model, s.model))
	}
	if len(query.Values) != s.dimensions {
		return nil, indexErr("search", fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(query.Values), s.dimensions))
	}
	if k <= 0 {
		return nil, nil
	}

	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query.Values...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadModel, s.model)},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, indexErr("search", fmt.Errorf("qdrant: search failed: %w", err))
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hit := SearchHit{ChunkID: r.GetId().GetUuid(), Score: r.GetScore()}
		if p := r.GetPayload(); p != nil {
			hit.Payload = Payload{
				DocumentID: p[payloadDocumentID].GetStringValue(),
				Title:      p[payloadTitle].GetStringValue(),
				Origin:     p[payloadOrigin].GetStringValue(),
				Text:       p[payloadText].GetStringValue(),
				Seq:        int(p[payloadSeq].GetIntegerValue()),
				Start:      int(p[payloadStart].GetIntegerValue()),
				End:        int(p[payloadEnd].GetIntegerValue()),
			}
		}
		hits = append(hits, hit)
	}
	SortHits(hits)
	return hits, nil
}

// Delete removes points by chunk id.
func (s *QdrantIndex) Delete(ctx context.Context, chunkIDs ...string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return indexErr("delete", fmt.Errorf("qdrant: delete failed: %w", err))
	}
	return nil
}

// DeleteDocument removes every point whose document_id payload matches.
func (s *QdrantIndex) DeleteDocument(ctx context.Context, documentID string) error {
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentID, documentID)},
		}),
	})
	if err != nil {
		return indexErr("delete document", fmt.Errorf("qdrant: delete document %s failed: %w", documentID, err))
	}
	return nil
}

// Reset drops and recreates the collection.
func (s *QdrantIndex) Reset(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return indexErr("reset", fmt.Errorf("qdrant: failed to check collection existence: %w", err))
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
			return indexErr("reset", fmt.Errorf("qdrant: failed to drop collection %q: %w", s.cfg.Collection, err))
		}
	}
	return s.createCollection(ctx)
}

// Info reports the collection configuration and the number of points of
// this index's model.
func (s *QdrantIndex) Info(ctx context.Context) (IndexInfo, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadModel, s.model)},
		},
		Exact: &exact,
	})
	if err != nil {
		return IndexInfo{}, indexErr("info", fmt.Errorf("qdrant: count failed: %w", err))
	}
	return IndexInfo{
		Backend:    "qdrant",
		Model:      s.model,
		Dimensions: s.dimensions,
		Entries:    int(n),
	}, nil
}

// Ping checks that the Qdrant server is reachable.
func (s *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}
