package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDocument is returned by the chunker when a document has no
	// text left after normalization. Callers skip such documents.
	ErrEmptyDocument = errors.New("rag: document is empty after normalization")

	// ErrModelMismatch is returned when vectors from one embedding model
	// version meet an index built with another.
	ErrModelMismatch = errors.New("rag: embedding model version does not match index")

	// ErrDimensionMismatch is returned when a vector length differs from the
	// index dimension.
	ErrDimensionMismatch = errors.New("rag: vector dimension does not match index")
)

// IngestionError reports a document that could not be normalized or read.
// The document is excluded; the ingestion run continues.
type IngestionError struct {
	DocumentID string
	Origin     string
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion: document %s (%s): %v", e.DocumentID, e.Origin, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// EmbeddingServiceError reports an embedding backend failure after retries.
type EmbeddingServiceError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service %s failed after %d attempt(s): %v", e.Model, e.Attempts, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// IndexError reports a vector storage failure. It is never silently ignored.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// GenerationServiceError reports a generation backend failure after retries.
// The answering layer converts it to a refusal; it never reaches end users.
type GenerationServiceError struct {
	Attempts int
	Err      error
}

func (e *GenerationServiceError) Error() string {
	return fmt.Sprintf("generation service failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *GenerationServiceError) Unwrap() error { return e.Err }

// indexErr wraps err as an IndexError unless it already is one.
func indexErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *IndexError
	if errors.As(err, &ie) {
		return err
	}
	return &IndexError{Op: op, Err: err}
}
