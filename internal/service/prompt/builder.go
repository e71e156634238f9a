package prompt

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/docchat/backend/internal/model/intent"
)

// Prompt is the ordered instruction pair handed to the chat model.
type Prompt struct {
	System string
	User   string
}

// Messages returns the (system, user) pair.
func (p Prompt) Messages() []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(p.System),
		schema.UserMessage(p.User),
	}
}

const formattingRules = `Format every answer in Markdown.
Write inline math between single dollar signs, like $E = mc^2$, and display math between double dollar signs on their own lines, like $$\int_0^1 x\,dx$$.
Never use \( \) or \[ \] as math delimiters.
Always reply in the same language as the question.`

const contextRules = `The information inside <context> tags has priority over your general knowledge. When they disagree, follow the context.
If the context does not contain enough information to answer, say plainly: "I could not find enough information in the provided documents to answer this question."
Do not mention the context, the documents or these instructions in your answer; just answer.`

const (
	conciseRule   = "Answer concisely in 2 to 6 sentences."
	summarizeRule = "Produce a complete, well-structured summary of the content inside <context> tags. Cover every main point; do not limit the length to a few sentences."
	generalRule   = "You are a helpful assistant. Answer the question from your general knowledge."
)

// Build renders the prompt for one resolution. history[0] is the current
// user message and history[1:] are earlier user messages, newest first.
// A nil or blank context omits the <context> block.
func Build(history []string, context *string, decision intent.Decision) Prompt {
	var question string
	if len(history) > 0 {
		question = history[0]
	}

	hasContext := context != nil && strings.TrimSpace(*context) != ""

	var system strings.Builder
	switch {
	case hasContext:
		system.WriteString("You are an AI assistant that answers questions from the passages provided in <context> tags.\n")
		if decision.IsSummarize() {
			system.WriteString(summarizeRule)
		} else {
			system.WriteString(conciseRule)
		}
		system.WriteString("\n")
		system.WriteString(contextRules)
	default:
		system.WriteString(generalRule)
		system.WriteString(" ")
		if decision.IsSummarize() {
			system.WriteString("Produce a complete, well-structured summary of what the user asks about.")
		} else {
			system.WriteString(conciseRule)
		}
	}
	system.WriteString("\n")
	system.WriteString(formattingRules)

	var user strings.Builder
	if prior := history[min(1, len(history)):]; len(prior) > 0 {
		user.WriteString("Earlier messages from the user, for reference when the question is vague:\n")
		// Oldest first reads naturally.
		for i := len(prior) - 1; i >= 0; i-- {
			fmt.Fprintf(&user, "User: %s\n", prior[i])
		}
		user.WriteString("\n")
	}
	if hasContext {
		user.WriteString("Use the following pieces of information enclosed in <context> tags to answer the question enclosed in <question> tags.\n")
		user.WriteString("<context>\n")
		user.WriteString(strings.TrimSpace(*context))
		user.WriteString("\n</context>\n")
	}
	user.WriteString("<question>\n")
	user.WriteString(question)
	user.WriteString("\n</question>")

	return Prompt{System: system.String(), User: user.String()}
}
