// Package qa is the application facade of groundqa. It wires retrieval,
// context assembly and grounded generation into Ask, and the ingestion
// pipeline into Ingest. Every other surface (CLI, HTTP) goes through it.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/54b3r/groundqa-go/internal/catalog"
	"github.com/54b3r/groundqa-go/internal/grounded"
	"github.com/54b3r/groundqa-go/internal/ingestion"
	"github.com/54b3r/groundqa-go/internal/logging"
	"github.com/54b3r/groundqa-go/internal/rag"
)

const (
	// DefaultMaxQuestionLength is the longest question, in characters, that
	// Ask will answer.
	DefaultMaxQuestionLength = 500

	// DefaultMaxCitations caps the sources returned with one answer.
	DefaultMaxCitations = 3

	// DefaultSimilarQuestions is the number of suggested follow-up questions.
	DefaultSimilarQuestions = 3
)

// ErrQuestionTooLong is returned by CheckQuestion for over-long questions.
var ErrQuestionTooLong = errors.New("question too long")

// Config holds the dependencies required to construct a Service.
type Config struct {
	// Retriever finds the chunks relevant to a question.
	Retriever rag.Searcher

	// Controller produces the grounded answer or the refusal.
	Controller *grounded.Controller

	// Index is the vector index behind Retriever. Used for Status only and
	// may be nil.
	Index rag.VectorIndex

	// Pipeline ingests documents. May be nil for query-only services.
	Pipeline *ingestion.Pipeline

	// Catalog records sources and answered questions. May be nil.
	Catalog *catalog.Store

	// TopK is the number of chunks retrieved per question.
	// Defaults to rag.DefaultTopK if zero.
	TopK int

	// MinScore is the relevance floor. Zero is a valid floor; a negative
	// value selects rag.DefaultMinScore, matching rag.Retriever.
	MinScore float32

	// MaxContextLength caps the context block in characters. The effective
	// budget is the smaller of this and what the prompt budget leaves.
	// Defaults to rag.DefaultMaxContextLength if zero.
	MaxContextLength int

	// MaxQuestionLength is the longest question in characters. Longer ones
	// are refused. Defaults to DefaultMaxQuestionLength if zero.
	MaxQuestionLength int

	// MaxCitations caps the citations returned per answer.
	// Defaults to DefaultMaxCitations if zero.
	MaxCitations int

	// SimilarQuestions is the number of follow-up questions suggested from
	// the retrieved passages. Defaults to DefaultSimilarQuestions if zero;
	// negative disables suggestions.
	SimilarQuestions int
}

// Response is the user-facing result of Ask.
type Response struct {
	Answer    string         `json:"answer"`
	Citations []rag.Citation `json:"citations"`
	Grounded  bool           `json:"grounded"`

	// SimilarQuestions are questions phrased in the retrieved passages that
	// the corpus can likely answer.
	SimilarQuestions []string `json:"similar_questions"`

	// Reason explains the outcome for logs and metrics.
	Reason rag.Reason `json:"-"`
}

// Service answers questions from the indexed corpus.
type Service struct {
	retriever        rag.Searcher
	assembler        *rag.Assembler
	controller       *grounded.Controller
	index            rag.VectorIndex
	pipeline         *ingestion.Pipeline
	catalog          *catalog.Store
	topK             int
	minScore         float32
	maxContextLength int
	maxQuestion      int
	maxCitations     int
	similar          int
}

// New constructs a Service from the provided Config.
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qa: config must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("qa: Retriever must not be nil")
	}
	if cfg.Controller == nil {
		return nil, fmt.Errorf("qa: Controller must not be nil")
	}
	s := &Service{
		retriever:        cfg.Retriever,
		assembler:        rag.NewAssembler(),
		controller:       cfg.Controller,
		index:            cfg.Index,
		pipeline:         cfg.Pipeline,
		catalog:          cfg.Catalog,
		topK:             cfg.TopK,
		minScore:         cfg.MinScore,
		maxContextLength: cfg.MaxContextLength,
		maxQuestion:      cfg.MaxQuestionLength,
		maxCitations:     cfg.MaxCitations,
		similar:          cfg.SimilarQuestions,
	}
	if s.topK <= 0 {
		s.topK = rag.DefaultTopK
	}
	if s.minScore < 0 {
		s.minScore = rag.DefaultMinScore
	}
	if s.maxContextLength <= 0 {
		s.maxContextLength = rag.DefaultMaxContextLength
	}
	if s.maxQuestion <= 0 {
		s.maxQuestion = DefaultMaxQuestionLength
	}
	if s.maxCitations <= 0 {
		s.maxCitations = DefaultMaxCitations
	}
	if s.similar == 0 {
		s.similar = DefaultSimilarQuestions
	}
	return s, nil
}

// MaxQuestionLength is the longest question, in characters, Ask answers.
func (s *Service) MaxQuestionLength() int { return s.maxQuestion }

// CheckQuestion reports ErrQuestionTooLong for a question Ask would refuse
// for its length. Callers with an error channel (HTTP, CLI) use it to tell
// the user instead of returning the refusal.
func (s *Service) CheckQuestion(query string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(query)); n > s.maxQuestion {
		return fmt.Errorf("%w: %d characters, max %d", ErrQuestionTooLong, n, s.maxQuestion)
	}
	return nil
}

// Ask answers query from the corpus. It never fails: empty or over-long
// questions, retrieval errors, irrelevant questions and backend outages all
// produce the refusal.
func (s *Service) Ask(ctx context.Context, query string) Response {
	start := time.Now()
	q := strings.TrimSpace(query)

	var (
		ans    rag.Answer
		result rag.RetrievalResult
	)
	switch {
	case q == "":
		ans = grounded.RefusalAnswer(rag.ReasonEmptyQuery)
	case s.CheckQuestion(q) != nil:
		ans = grounded.RefusalAnswer(rag.ReasonQuestionTooLong)
	default:
		ans, result = s.answer(ctx, q)
	}
	elapsed := time.Since(start)

	citations := ans.Citations
	if len(citations) > s.maxCitations {
		citations = citations[:s.maxCitations]
	}
	if citations == nil {
		citations = []rag.Citation{}
	}
	similar := similarQuestions(q, result.Hits, s.similar)

	logging.FromContext(ctx).Info("qa: answered",
		slog.String("reason", string(ans.Reason)),
		slog.Bool("grounded", ans.Grounded),
		slog.Int("citations", len(citations)),
		slog.Int("similar_questions", len(similar)),
		slog.Duration("duration", elapsed),
	)
	ans.Citations = citations
	s.record(ctx, q, ans, elapsed)

	return Response{
		Answer:           ans.Text,
		Citations:        citations,
		Grounded:         ans.Grounded,
		SimilarQuestions: similar,
		Reason:           ans.Reason,
	}
}

func (s *Service) answer(ctx context.Context, query string) (rag.Answer, rag.RetrievalResult) {
	log := logging.FromContext(ctx)

	result, err := s.retriever.Retrieve(ctx, query, s.topK, s.minScore)
	if err != nil {
		log.Warn("qa: retrieval failed, refusing", slog.String("error", err.Error()))
		return grounded.RefusalAnswer(rag.ReasonRetrievalFailed), rag.RetrievalResult{}
	}
	log.Debug("qa: retrieved",
		slog.Int("hits", len(result.Hits)),
		slog.Int("below_floor", result.Dropped),
	)
	if result.Empty() {
		return grounded.RefusalAnswer(rag.ReasonNoContext), result
	}

	block := s.assembler.Assemble(result, s.contextBudget(query))
	return s.controller.Answer(ctx, query, block), result
}

// contextBudget is the character budget for the context block of query.
func (s *Service) contextBudget(query string) int {
	// A non-positive budget would select the assembler default; one
	// character yields an empty block and therefore the refusal.
	return max(1, min(s.maxContextLength, s.controller.ContextBudget(query)))
}

func (s *Service) record(ctx context.Context, query string, ans rag.Answer, elapsed time.Duration) {
	if s.catalog == nil {
		return
	}
	err := s.catalog.RecordQuery(context.WithoutCancel(ctx), catalog.Query{
		Question:  query,
		Grounded:  ans.Grounded,
		Reason:    string(ans.Reason),
		Citations: len(ans.Citations),
		Duration:  elapsed,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("qa: could not record query", slog.String("error", err.Error()))
	}
}

// Ingest indexes docs through the ingestion pipeline. Per-document failures
// are reported in the summary; only index failures return an error.
func (s *Service) Ingest(ctx context.Context, docs []rag.Document, opts ingestion.Options) (ingestion.Summary, error) {
	if s.pipeline == nil {
		return ingestion.Summary{}, fmt.Errorf("qa: ingestion is not configured")
	}
	return s.pipeline.Ingest(ctx, docs, opts)
}
