package llm

import (
	"strings"
)

// EstimateTokens returns a rough token estimate for a string. Four bytes per
// token tracks close enough to the provider tokenizers for budgeting.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateMessageTokens estimates the prompt token count of a message list.
func EstimateMessageTokens(messages []ChatMessage) int {
	total := 0
	for _, msg := range messages {
		if msg.IsMultimodal() {
			for _, part := range msg.Parts {
				total += EstimateTokens(part.Text)
			}
			continue
		}
		total += EstimateTokens(msg.Content)
	}
	return total
}

// SplitByTokens splits text into chunks of at most maxTokens each, breaking
// on whitespace where possible. Used to truncate oversized tool output to
// its first chunk.
func SplitByTokens(text string, maxTokens int) []string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return []string{text}
	}

	maxBytes := maxTokens * 4
	var chunks []string
	for len(text) > maxBytes {
		cut := maxBytes
		// Back up to the nearest whitespace to avoid splitting a word.
		if idx := strings.LastIndexAny(text[:cut], " \t\n"); idx > maxBytes/2 {
			cut = idx
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// TruncateHistory drops the oldest messages until the estimated token count
// of the remainder fits maxTokens, preserving chronological order.
func TruncateHistory(messages []ChatMessage, maxTokens int) []ChatMessage {
	if maxTokens <= 0 {
		return nil
	}

	total := 0
	// Walk from newest to oldest, keeping the most recent messages.
	keepFrom := 0
	for i := len(messages) - 1; i >= 0; i-- {
		total += EstimateMessageTokens(messages[i : i+1])
		if total > maxTokens {
			keepFrom = i + 1
			break
		}
	}
	return messages[keepFrom:]
}
