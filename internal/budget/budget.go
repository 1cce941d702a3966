// Package budget provides prompt token estimation for the grounded answer
// controller. Because groundqa supports multiple LLM backends with different
// tokenizers, this package uses a conservative character-based heuristic:
// 1 token ≈ 4 characters. It converts the model's prompt budget into the
// character budget the context assembler works with.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English prose.
	charsPerToken = 4

	// perMessageOverhead is the per-message token cost in most chat APIs.
	perMessageOverhead = 4

	// DefaultMaxPromptTokens is the default input budget in tokens. It fits
	// 8k-context models (Llama 3 8B, GPT-3.5) while leaving room for the answer.
	DefaultMaxPromptTokens = 6000

	// contextMessageTokens is the fixed cost of the system message that
	// carries the context block, excluding the block itself.
	contextMessageTokens = perMessageOverhead + 2
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// ContextChars returns how many characters of retrieved context fit in
// maxTokens once the fixed messages (system rules and the user question)
// are accounted for. It never returns a negative value.
func ContextChars(fixed []*schema.Message, maxTokens int) int {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxPromptTokens
	}
	room := maxTokens - EstimateMessages(fixed) - contextMessageTokens
	if room <= 0 {
		return 0
	}
	return room * charsPerToken
}
