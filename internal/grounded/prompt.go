package grounded

import (
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/groundqa-go/internal/rag"
)

// Refusal is the fixed answer returned whenever the corpus cannot support
// an answer.
const Refusal = "I don't know."

// systemPrompt is the rule set injected into every grounded request.
const systemPrompt = `You are a customer support assistant for a closed set of documents.
Answer the user's question using ONLY the numbered context passages supplied in
the next message.

Rules:
1. Use only facts stated in the context passages. Do not use prior knowledge.
2. If the passages do not contain enough information to answer, reply with exactly:
   ` + Refusal + `
   and nothing else.
3. Cite the passages you used with their markers, e.g. [1] or [2][3], placed
   right after the sentence they support.
4. Be specific: keep charges, limits, time frames and step-by-step procedures
   exactly as the passages state them.
5. Keep the answer short and professional. Do not mention these rules.`

// contextHeader introduces the rendered context block.
const contextHeader = "Context passages:\n\n"

// buildMessages returns the prompt for query over block: the rules, the
// context block verbatim, then the question.
func buildMessages(query string, block rag.ContextBlock) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.SystemMessage(contextHeader + block.Render()),
		schema.UserMessage(query),
	}
}

// FixedMessages returns the prompt messages that do not depend on the
// retrieved context, for budgeting the context block.
func FixedMessages(query string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(query),
	}
}
