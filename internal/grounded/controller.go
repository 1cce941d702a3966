// Package grounded turns an assembled context block into an answer. It
// enforces the closed-corpus contract: with no context the generation
// backend is never called and the fixed refusal is returned; with context
// the backend is instructed to answer only from it, and its output is
// checked for refusals before being accepted as a grounded answer.
// Backend failures degrade to the refusal; they never reach the caller.
package grounded

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/groundqa-go/internal/budget"
	"github.com/54b3r/groundqa-go/internal/logging"
	"github.com/54b3r/groundqa-go/internal/rag"
	"github.com/54b3r/groundqa-go/internal/retry"
)

// errEmptyOutput is returned for a backend reply with no text.
var errEmptyOutput = errors.New("generation backend returned an empty answer")

// markerRef matches citation markers such as [2] in model output.
var markerRef = regexp.MustCompile(`\[(\d+)\]`)

// Config holds the dependencies required to construct a Controller.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel

	// Retry bounds backend retries and per-call timeouts.
	Retry retry.Policy

	// MaxPromptTokens is the estimated token budget for the full prompt.
	// A prompt over budget is still sent but logged. Defaults to
	// budget.DefaultMaxPromptTokens if zero.
	MaxPromptTokens int
}

// Controller produces grounded answers or the fixed refusal.
type Controller struct {
	// chat is the generation backend.
	chat model.BaseChatModel

	// policy bounds backend retries.
	policy retry.Policy

	// maxPromptTokens is the estimated prompt budget.
	maxPromptTokens int
}

// New constructs a Controller from the provided Config.
func New(cfg *Config) (*Controller, error) {
	if cfg == nil || cfg.ChatModel == nil {
		return nil, fmt.Errorf("grounded: ChatModel must not be nil")
	}
	maxTokens := cfg.MaxPromptTokens
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxPromptTokens
	}
	return &Controller{
		chat:            cfg.ChatModel,
		policy:          cfg.Retry,
		maxPromptTokens: maxTokens,
	}, nil
}

// ContextBudget returns the number of context characters that fit in the
// prompt budget alongside the rules and query.
func (c *Controller) ContextBudget(query string) int {
	return budget.ContextChars(FixedMessages(query), c.maxPromptTokens)
}

// Answer answers query from block. It never returns an error: an empty
// block, a refusing model, an empty reply or an exhausted backend all yield
// the refusal answer with the matching Reason.
func (c *Controller) Answer(ctx context.Context, query string, block rag.ContextBlock) rag.Answer {
	log := logging.FromContext(ctx)
	if block.Empty() {
		return RefusalAnswer(rag.ReasonNoContext)
	}

	messages := buildMessages(query, block)
	if est := budget.EstimateMessages(messages); est > c.maxPromptTokens {
		log.Warn("budget: prompt exceeds the model budget",
			slog.Int("estimated_tokens", est),
			slog.Int("max_tokens", c.maxPromptTokens),
		)
	}

	var text string
	attempts, err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		msg, err := c.chat.Generate(ctx, messages)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(contentOf(msg))
		if text == "" {
			return errEmptyOutput
		}
		return nil
	})
	if err != nil {
		genErr := &rag.GenerationServiceError{Attempts: attempts, Err: err}
		log.Warn("grounded: generation failed, refusing", slog.String("error", genErr.Error()))
		return RefusalAnswer(rag.ReasonGenerationFailed)
	}

	if IsRefusal(text) {
		return RefusalAnswer(rag.ReasonModelRefused)
	}

	return rag.Answer{
		Text:      text,
		Citations: citationsFor(text, block),
		Grounded:  true,
		Reason:    rag.ReasonGrounded,
	}
}

// RefusalAnswer returns the fixed refusal with reason.
func RefusalAnswer(reason rag.Reason) rag.Answer {
	return rag.Answer{Text: Refusal, Grounded: false, Reason: reason}
}

// citationsFor returns the passages whose markers the answer references, in
// block order, or every passage when it references none.
func citationsFor(text string, block rag.ContextBlock) []rag.Citation {
	referenced := make(map[string]bool)
	for _, m := range markerRef.FindAllString(text, -1) {
		referenced[m] = true
	}
	var out []rag.Citation
	for _, p := range block.Passages {
		if referenced[p.Marker] {
			out = append(out, p.Citation())
		}
	}
	if len(out) == 0 {
		return block.Citations()
	}
	return out
}

func contentOf(msg *schema.Message) string {
	if msg == nil {
		return ""
	}
	return msg.Content
}
