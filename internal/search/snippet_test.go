package search

import (
	"reflect"
	"strings"
	"testing"

	"github.com/nhle/chat-search/internal/model"
)

func TestExtractMatchesTitle(t *testing.T) {
	chat := model.Chat{Title: "Deploy runbook"}

	matches := extractMatches(chat, "deploy")
	if !reflect.DeepEqual(matches, []string{"Title: **Deploy** runbook"}) {
		t.Fatalf("unexpected matches: %v", matches)
	}
}

func TestExtractMatchesMessageContext(t *testing.T) {
	before := strings.Repeat("a", 50)
	after := strings.Repeat("b", 100)
	chat := model.Chat{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: before + "deploy" + after},
		},
	}

	matches := extractMatches(chat, "deploy")
	if len(matches) != 1 {
		t.Fatalf("expected one snippet, got %v", matches)
	}

	// 40 chars of leading context, the match plus two trailing chars
	// highlighted, 60 chars of trailing context, ellipses on both cut edges.
	want := "You: ..." + strings.Repeat("a", 40) +
		"**deploybb**" + strings.Repeat("b", 60) + "..."
	if matches[0] != want {
		t.Errorf("snippet mismatch:\n got %q\nwant %q", matches[0], want)
	}
}

func TestExtractMatchesRolePrefix(t *testing.T) {
	chat := model.Chat{
		Messages: []model.Message{
			{Role: model.RoleAssistant, Content: "the deploy finished cleanly"},
		},
	}

	matches := extractMatches(chat, "deploy")
	if len(matches) != 1 {
		t.Fatalf("expected one snippet, got %v", matches)
	}
	if !strings.HasPrefix(matches[0], "AI: ") {
		t.Errorf("expected assistant prefix, got %q", matches[0])
	}
}

func TestExtractMatchesNoEllipsesWhenContextFits(t *testing.T) {
	chat := model.Chat{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "short deploy note"},
		},
	}

	matches := extractMatches(chat, "deploy")
	if len(matches) != 1 {
		t.Fatalf("expected one snippet, got %v", matches)
	}
	if strings.Contains(matches[0], "...") {
		t.Errorf("expected no ellipses for short content, got %q", matches[0])
	}
}

func TestExtractMatchesCollapsesWhitespace(t *testing.T) {
	chat := model.Chat{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "plan for\n\n\nthe   deploy window"},
		},
	}

	matches := extractMatches(chat, "deploy")
	if len(matches) != 1 {
		t.Fatalf("expected one snippet, got %v", matches)
	}
	if strings.ContainsAny(matches[0], "\n") || strings.Contains(matches[0], "  ") {
		t.Errorf("expected collapsed whitespace, got %q", matches[0])
	}
}

func TestExtractMatchesDeduplicates(t *testing.T) {
	chat := model.Chat{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "restart the deploy job"},
			{Role: model.RoleAssistant, Content: "restart the deploy job"},
		},
	}

	matches := extractMatches(chat, "deploy")
	if len(matches) != 1 {
		t.Fatalf("identical snippet cores should deduplicate, got %v", matches)
	}
}

func TestExtractMatchesCap(t *testing.T) {
	chat := model.Chat{
		Title: "Deploy overview",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "first mention of the deploy pipeline"},
			{Role: model.RoleAssistant, Content: "second answer about deploy timing"},
			{Role: model.RoleUser, Content: "third question on deploy rollback"},
			{Role: model.RoleAssistant, Content: "fourth note about deploy alerts"},
		},
	}

	matches := extractMatches(chat, "deploy")
	if len(matches) != maxSnippets {
		t.Fatalf("expected %d snippets, got %d: %v", maxSnippets, len(matches), matches)
	}
	if !strings.HasPrefix(matches[0], "Title: ") {
		t.Errorf("expected the title snippet first, got %q", matches[0])
	}
}

func TestExtractMatchesFallback(t *testing.T) {
	chat := model.Chat{
		Title: "Weekly notes",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "nothing relevant in here"},
		},
	}

	matches := extractMatches(chat, "kubernetes")
	if !reflect.DeepEqual(matches, []string{"nothing relevant in here..."}) {
		t.Fatalf("unexpected fallback: %v", matches)
	}
}

func TestExtractMatchesFallbackTruncatesLongMessage(t *testing.T) {
	content := strings.Repeat("x", 150)
	chat := model.Chat{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: content},
		},
	}

	matches := extractMatches(chat, "kubernetes")
	if len(matches) != 1 {
		t.Fatalf("expected fallback snippet, got %v", matches)
	}
	if matches[0] != strings.Repeat("x", 100)+"..." {
		t.Errorf("expected first 100 chars plus ellipsis, got %q", matches[0])
	}
}

func TestExtractMatchesDropsTinySnippets(t *testing.T) {
	chat := model.Chat{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "a"},
		},
	}

	// The only match yields a snippet at the minimum-length cutoff, so the
	// fallback path takes over.
	matches := extractMatches(chat, "a")
	if !reflect.DeepEqual(matches, []string{"a..."}) {
		t.Fatalf("unexpected matches: %v", matches)
	}
}

func TestExtractMatchesEmptyChat(t *testing.T) {
	chat := model.Chat{Title: "Empty"}

	if matches := extractMatches(chat, "kubernetes"); len(matches) != 0 {
		t.Fatalf("expected no snippets, got %v", matches)
	}
}

func TestFuzzyIndex(t *testing.T) {
	tests := []struct {
		name string
		text string
		word string
		want int
	}{
		{"exact substring", "the deploy window", "deploy", 4},
		{"missing", "completely different", "deploy", -1},
		{"close enough", "the depl0y window", "deploy", 4},
		{"word longer than text", "hi", "deploy", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fuzzyIndex(tt.text, tt.word); got != tt.want {
				t.Errorf("fuzzyIndex(%q, %q) = %d, want %d", tt.text, tt.word, got, tt.want)
			}
		})
	}
}
