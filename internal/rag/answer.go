package rag

// Citation attributes part of an answer to a source passage.
type Citation struct {
	Marker     string   `json:"marker"`
	DocumentID string   `json:"document_id"`
	Title      string   `json:"title"`
	Origin     string   `json:"origin,omitempty"`
	ChunkIDs   []string `json:"chunk_ids"`
}

// Reason records why an answer was produced the way it was. It is used for
// logs and metrics and never shown to end users.
type Reason string

const (
	ReasonGrounded         Reason = "grounded"
	ReasonNoContext        Reason = "no_context"
	ReasonModelRefused     Reason = "model_refused"
	ReasonGenerationFailed Reason = "generation_failed"
	ReasonEmptyQuery       Reason = "empty_query"
	ReasonRetrievalFailed  Reason = "retrieval_failed"
	ReasonQuestionTooLong  Reason = "question_too_long"
)

// Answer is the final user-facing response. A grounded answer carries at
// least one citation; a refusal carries the fixed refusal text and none.
type Answer struct {
	Text      string
	Citations []Citation
	Grounded  bool
	Reason    Reason
}
