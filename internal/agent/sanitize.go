// Package agent implements the central run_turn state machine: it loads or
// creates a session, assembles the system prompt from role, long-term
// memory, and hybrid-search context, drives the tool-call loop against a
// provider, and persists the turn back to the session store.
package agent

import (
	"regexp"
	"strings"
)

// sanitizeStep is one transform of the assistant-output cleanup pipeline.
type sanitizeStep func(string) string

// sanitizePipeline runs in order; each step removes one class of artifact
// models leak into their text channel.
var sanitizePipeline = []sanitizeStep{
	stripToolCallXML,
	stripToolCallTranscript,
	stripReasoningTags,
	unwrapFinalTags,
	stripEchoedSystemBlocks,
	dropRepeatedBlocks,
	stripMediaMarkers,
}

// SanitizeAssistantContent cleans an assistant response before it is
// saved to the session and delivered to a channel. Weaker models leak
// tool-call XML, reasoning tags, echoed system prompts, and duplicated
// paragraphs into their visible output; each pipeline step strips one of
// those artifact classes.
func SanitizeAssistantContent(content string) string {
	if content == "" {
		return ""
	}
	for _, step := range sanitizePipeline {
		content = step(content)
		if content == "" {
			return ""
		}
	}
	return strings.TrimSpace(content)
}

// --- tool-call XML leaked as text ---

var toolXMLTagRe = regexp.MustCompile(
	`(?is)</?(?:function_calls?|functioninvoke|invoke|tool_call|tool_use|parameter|minimax:tool_call)[^>]*>`,
)

// stripToolCallXML detects tool-call markup leaked into text content and
// drops the whole response: a reply that was actually a malformed tool
// call carries no user-readable content worth salvaging.
func stripToolCallXML(content string) string {
	if !toolXMLTagRe.MatchString(content) {
		return content
	}
	return ""
}

// --- downgraded tool-call transcripts ---

var transcriptMarkers = []string{"[Tool Call:", "[Tool Result", "[Historical context:"}

// stripToolCallTranscript removes "[Tool Call: ...]"-style blocks some
// models reproduce from their prompt. A block runs from its marker line
// through the indented/JSON lines that follow it.
func stripToolCallTranscript(content string) string {
	found := false
	for _, m := range transcriptMarkers {
		if strings.Contains(content, m) {
			found = true
			break
		}
	}
	if !found {
		return content
	}

	var kept []string
	skipping := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		isMarker := false
		for _, m := range transcriptMarkers {
			if strings.HasPrefix(trimmed, m) {
				isMarker = true
				break
			}
		}
		if isMarker {
			skipping = true
			continue
		}
		if skipping {
			if trimmed == "" || strings.HasPrefix(trimmed, "Arguments:") ||
				strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "}") {
				continue
			}
			skipping = false
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// --- reasoning tags ---

var reasoningTagRes = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
	regexp.MustCompile(`(?is)<antthinking>.*?</antthinking>`),
}

func stripReasoningTags(content string) string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") && !strings.Contains(lower, "<antthinking") {
		return content
	}
	for _, re := range reasoningTagRes {
		content = re.ReplaceAllString(content, "")
	}
	return strings.TrimSpace(content)
}

// --- <final> wrapper ---

var finalTagRe = regexp.MustCompile(`(?i)<\s*/?\s*final\s*>`)

// unwrapFinalTags drops <final>/</final> markers while keeping what they
// wrap.
func unwrapFinalTags(content string) string {
	if !strings.Contains(strings.ToLower(content), "<final") && !strings.Contains(strings.ToLower(content), "</final") {
		return content
	}
	return finalTagRe.ReplaceAllString(content, "")
}

// --- echoed [System Message] blocks ---

func stripEchoedSystemBlocks(content string) string {
	if !strings.Contains(content, "[System Message]") {
		return content
	}
	var kept []string
	skipping := false
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "[System Message]") {
			skipping = true
			continue
		}
		if skipping {
			if strings.TrimSpace(line) == "" {
				skipping = false
			}
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// --- consecutive duplicate paragraphs ---

func dropRepeatedBlocks(content string) string {
	blocks := strings.Split(content, "\n\n")
	if len(blocks) <= 1 {
		return content
	}
	var kept []string
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		if len(kept) > 0 && trimmed == strings.TrimSpace(kept[len(kept)-1]) {
			continue
		}
		kept = append(kept, block)
	}
	return strings.Join(kept, "\n\n")
}

// --- MEDIA: path markers ---

// stripMediaMarkers removes MEDIA:/path lines; media files travel on
// OutboundMessage.Media, never inline in the text.
func stripMediaMarkers(content string) string {
	if !strings.Contains(content, "MEDIA:") && !strings.Contains(content, "[[audio_as_voice]]") {
		return content
	}
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "MEDIA:") || strings.HasPrefix(trimmed, "[[audio_as_voice]]") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// --- NO_REPLY sentinel ---

const silentToken = "NO_REPLY"

// IsSilentReply reports whether text is the NO_REPLY sentinel a role's
// system prompt can instruct the model to emit when nothing is worth
// sending. The token must stand alone at a word boundary at either end
// of the reply.
func IsSilentReply(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if trimmed == silentToken {
		return true
	}
	if rest, ok := strings.CutPrefix(trimmed, silentToken); ok {
		if rest == "" || !isWordChar(rune(rest[0])) {
			return true
		}
	}
	if before, ok := strings.CutSuffix(trimmed, silentToken); ok {
		if before == "" || !isWordChar(rune(before[len(before)-1])) {
			return true
		}
	}
	return false
}

func isWordChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}
