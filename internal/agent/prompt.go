package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// recentDailyNotes is how many of the most recent daily notes are folded
// into every system prompt verbatim, ahead of the hybrid-search block.
const recentDailyNotes = 3

// hybridSearchLimit caps the number of chunks the search block pulls in,
// matching memory_search's own default.
const hybridSearchLimit = 10

// buildSystemPrompt assembles the role's system prompt, its long-term
// memory file, its most recent daily notes, and a hybrid-search block
// seeded by the current user message, all read through memory.Backend.
func (l *Loop) buildSystemPrompt(ctx context.Context, userMessage string) string {
	var b strings.Builder
	b.WriteString(l.rolePrompt())

	if l.memoryIdx == nil {
		return b.String()
	}

	if longTerm, err := l.memoryIdx.LongTermMemory(); err != nil {
		slog.Warn("agent: read long-term memory failed", "role", l.roleName, "error", err)
	} else if longTerm != "" {
		b.WriteString("\n\n## Long-term memory\n\n")
		b.WriteString(longTerm)
	}

	if notes, err := l.memoryIdx.RecentDailyNotes(recentDailyNotes); err != nil {
		slog.Warn("agent: read recent daily notes failed", "role", l.roleName, "error", err)
	} else if len(notes) > 0 {
		b.WriteString("\n\n## Recent notes\n\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", n.Date.Format("2006-01-02"), n.Content)
		}
	}

	searchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if block, err := l.memoryIdx.HybridSearchContext(searchCtx, userMessage, hybridSearchLimit); err != nil {
		slog.Warn("agent: hybrid search failed", "role", l.roleName, "error", err)
	} else if block != "" {
		b.WriteString("\n\n## Relevant memory\n\n")
		b.WriteString(block)
	}

	return b.String()
}

func (l *Loop) rolePrompt() string {
	if l.rolePromptText != "" {
		return l.rolePromptText
	}
	return fmt.Sprintf("You are %s, a helpful personal assistant. Use the tools available to you when they help answer the request; otherwise reply directly.", l.roleName)
}
