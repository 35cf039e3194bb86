package search

import (
	"regexp"
	"strings"

	"github.com/nhle/chat-search/internal/model"
)

// Snippet extraction context sizes, in characters around the match.
const (
	contextBefore = 40
	contextAfter  = 60
)

// maxSnippets caps title and message snippets combined.
const maxSnippets = 3

var (
	newlineRun = regexp.MustCompile(`\n+`)
	spaceRun   = regexp.MustCompile(`\s+`)
)

// extractMatches builds up to three highlighted snippets for a chat and
// the original query: one from the title, the rest from messages in
// conversation order. When nothing matches, the first message (if any)
// yields a plain fallback snippet.
func extractMatches(chat model.Chat, query string) []string {
	var matches []string
	words := strings.Fields(strings.ToLower(query))

	// Title pass: first matching query word wins, then stop.
	titleLower := strings.ToLower(chat.Title)
	for _, word := range words {
		idx := fuzzyIndex(titleLower, word)
		if idx == -1 {
			continue
		}
		matchEnd := idx + len(word)
		if matchEnd > len(chat.Title) {
			matchEnd = len(chat.Title)
		}
		highlighted := chat.Title[:idx] + "**" +
			chat.Title[idx:matchEnd] + "**" + chat.Title[matchEnd:]
		matches = append(matches, "Title: "+highlighted)
		break
	}

	// Message pass: scan in conversation order until the snippet cap.
	for _, message := range chat.Messages {
		if len(matches) >= maxSnippets {
			break
		}

		content := message.Content
		contentLower := strings.ToLower(content)

		for _, word := range words {
			idx := fuzzyIndex(contentLower, word)
			if idx == -1 {
				continue
			}

			start := idx - contextBefore
			if start < 0 {
				start = 0
			}
			matchEnd := idx + len(word) + 2
			if matchEnd > len(content) {
				matchEnd = len(content)
			}
			end := matchEnd + contextAfter
			if end > len(content) {
				end = len(content)
			}

			rolePrefix := "AI: "
			if message.Role == model.RoleUser {
				rolePrefix = "You: "
			}

			var b strings.Builder
			b.WriteString(rolePrefix)
			if start > 0 {
				b.WriteString("...")
			}
			b.WriteString(content[start:idx])
			b.WriteString("**")
			b.WriteString(content[idx:matchEnd])
			b.WriteString("**")
			b.WriteString(content[matchEnd:end])
			if end < len(content) {
				b.WriteString("...")
			}

			snippet := collapseWhitespace(b.String())

			if len(snippet) > 10 && !containsCore(matches, snippet) {
				matches = append(matches, snippet)
			}
			break
		}
	}

	// Nothing matched anywhere: fall back to the first message.
	if len(matches) == 0 && len(chat.Messages) > 0 {
		content := chat.Messages[0].Content
		if len(content) > 100 {
			content = content[:100]
		}
		first := strings.TrimSpace(newlineRun.ReplaceAllString(content, " "))
		if first != "" {
			matches = append(matches, first+"...")
		}
	}

	if len(matches) > maxSnippets {
		matches = matches[:maxSnippets]
	}
	return matches
}

// fuzzyIndex locates word in text: exact substring containment first,
// then a crude positional fallback that slides a window of the word's
// length (plus one) across the text and accepts the first position where
// at least 70% of characters align with the word. Returns -1 when no
// position qualifies.
func fuzzyIndex(text, word string) int {
	if idx := strings.Index(text, word); idx != -1 {
		return idx
	}

	wordLen := len(word)
	for i := 0; i <= len(text)-wordLen+1; i++ {
		end := i + wordLen + 1
		if end > len(text) {
			end = len(text)
		}
		slice := text[i:end]

		limit := len(slice)
		if wordLen < limit {
			limit = wordLen
		}

		matchCount := 0
		for j := 0; j < limit; j++ {
			if slice[j] == word[j] {
				matchCount++
			}
		}
		if float64(matchCount) >= float64(wordLen)*0.7 {
			return i
		}
	}

	return -1
}

// containsCore reports whether an already collected snippet contains the
// candidate's core text (the snippet minus its role prefix).
func containsCore(matches []string, snippet string) bool {
	core := snippet[4:]
	for _, m := range matches {
		if strings.Contains(m, core) {
			return true
		}
	}
	return false
}

// collapseWhitespace folds newlines and whitespace runs into single
// spaces and trims the edges.
func collapseWhitespace(s string) string {
	s = newlineRun.ReplaceAllString(s, " ")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
