package resolver

import "github.com/zhouzirui/docchat/backend/internal/model/chat"

// DefaultHistoryDepth is the number of earlier user messages kept for
// disambiguating follow-up questions.
const DefaultHistoryDepth = 2

// History returns the newest user message first, followed by up to depth
// earlier user messages, newest to oldest. Assistant turns are ignored.
func History(turns []chat.Turn, depth int) []string {
	if depth < 0 {
		depth = 0
	}

	var history []string
	for i := len(turns) - 1; i >= 0 && len(history) <= depth; i-- {
		if turns[i].Role == chat.RoleUser {
			history = append(history, turns[i].Content)
		}
	}
	return history
}
