package digest

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Naman6019/News-Agent/internal/feed"
)

var testDate = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func article(id, title, desc, source string) *feed.Article {
	return &feed.Article{
		ID:          id,
		Title:       title,
		Description: desc,
		Link:        "https://example.com/" + id,
		SourceName:  source,
	}
}

func TestBuildHeaderAndFooter(t *testing.T) {
	a := NewAssembler([]string{"technology"}, 4096)
	byCategory := map[string][]*feed.Article{
		"technology": {article("1", "Chip news", "A chip.", "example.com")},
	}

	got := a.Build("morning", testDate, byCategory, map[string]string{"technology": "Chips got faster."})

	if !strings.Contains(got, "📰 *Good morning! Here's your Morning News Digest*") {
		t.Error("missing morning header")
	}
	if !strings.Contains(got, "📅 02/06/2025") {
		t.Error("missing or misformatted date line")
	}
	if !strings.HasSuffix(got, "_Powered by Ollama & AI News Agent_") {
		t.Error("missing footer")
	}

	evening := a.Build("evening", testDate, byCategory, nil)
	if !strings.Contains(evening, "Good evening! Here's your Evening News Digest") {
		t.Error("missing evening header")
	}
}

func TestBuildSectionsFollowConfiguredOrder(t *testing.T) {
	a := NewAssembler([]string{"world", "technology"}, 4096)
	byCategory := map[string][]*feed.Article{
		"technology": {article("t", "Tech story", "d", "techsite.com")},
		"world":      {article("w", "World story", "d", "worldsite.com")},
	}

	got := a.Build("morning", testDate, byCategory, nil)

	world := strings.Index(got, "*World News:*")
	tech := strings.Index(got, "*Technology News:*")
	if world == -1 || tech == -1 {
		t.Fatalf("missing section headers:\n%s", got)
	}
	if world > tech {
		t.Error("sections not in configured order")
	}
}

func TestBuildSkipsEmptyCategories(t *testing.T) {
	a := NewAssembler([]string{"technology", "business"}, 4096)
	byCategory := map[string][]*feed.Article{
		"technology": {article("t", "Tech story", "d", "techsite.com")},
	}

	got := a.Build("morning", testDate, byCategory, nil)
	if strings.Contains(got, "*Business News:*") {
		t.Error("empty category rendered a section")
	}
}

func TestBuildSummaryBeatsFallback(t *testing.T) {
	a := NewAssembler([]string{"technology"}, 4096)
	byCategory := map[string][]*feed.Article{
		"technology": {article("t", "Tech story", "Raw description here.", "techsite.com")},
	}

	got := a.Build("morning", testDate, byCategory, map[string]string{"technology": "The curated summary."})
	if !strings.Contains(got, "The curated summary.") {
		t.Error("summary not used")
	}
	if strings.Contains(got, "• Raw description here.") {
		t.Error("fallback rendered despite summary being present")
	}
}

func TestBuildDescriptionFallback(t *testing.T) {
	a := NewAssembler([]string{"technology"}, 4096)
	articles := []*feed.Article{
		article("1", "One", "First description.", "s.com"),
		article("2", "Two", "", "s.com"), // falls back to the title
		article("3", "Three", "Third description.", "s.com"),
		article("4", "Four", "Never shown, beyond the item cap.", "s.com"),
	}

	got := a.Build("morning", testDate, map[string][]*feed.Article{"technology": articles}, nil)

	for _, want := range []string{"• First description.", "• Two", "• Third description."} {
		if !strings.Contains(got, want) {
			t.Errorf("fallback missing %q", want)
		}
	}
	if strings.Contains(got, "beyond the item cap") {
		t.Error("fallback rendered more items than the cap")
	}
}

func TestBuildSourceLines(t *testing.T) {
	a := NewAssembler([]string{"technology"}, 4096)
	articles := []*feed.Article{
		article("1", "One", "d", "first.com"),
		article("2", "Two", "d", "second.com"),
		article("3", "Three", "d", "third.com"),
	}

	got := a.Build("morning", testDate, map[string][]*feed.Article{"technology": articles}, nil)

	if !strings.Contains(got, "🔗 first.com: https://example.com/1") {
		t.Error("missing first source line")
	}
	if !strings.Contains(got, "🔗 second.com:") {
		t.Error("missing second source line")
	}
	if strings.Contains(got, "third.com") {
		t.Error("rendered more sources than the per-category cap")
	}
}

func TestBuildNeverExceedsCharLimit(t *testing.T) {
	const limit = 300
	a := NewAssembler([]string{"technology", "business", "world"}, limit)

	long := strings.Repeat("words and more words ", 40)
	byCategory := map[string][]*feed.Article{
		"technology": {article("1", "One", long, "s.com")},
		"business":   {article("2", "Two", long, "s.com")},
		"world":      {article("3", "Three", long, "s.com")},
	}

	got := a.Build("morning", testDate, byCategory, nil)
	if len(got) > limit {
		t.Fatalf("digest length %d exceeds limit %d", len(got), limit)
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated digest missing marker")
	}
}

func TestBuildTruncationKeepsValidUTF8(t *testing.T) {
	// headers carry emoji and descriptions may be entirely multi-byte, so a
	// byte-indexed cut can land inside a rune at many offsets
	for limit := 120; limit <= 260; limit += 7 {
		a := NewAssembler([]string{"technology"}, limit)
		byCategory := map[string][]*feed.Article{
			"technology": {article("1", "One", strings.Repeat("é", 300), "s.com")},
		}

		got := a.Build("morning", testDate, byCategory, map[string]string{"technology": strings.Repeat("📈", 80)})
		if len(got) > limit {
			t.Fatalf("limit %d: digest length %d exceeds limit", limit, len(got))
		}
		if !utf8.ValidString(got) {
			t.Fatalf("limit %d: digest contains invalid UTF-8", limit)
		}
	}
}

func TestDescriptionFallbackKeepsValidUTF8(t *testing.T) {
	got := descriptionFallback([]*feed.Article{
		article("1", "One", strings.Repeat("é", 300), "s.com"),
	})
	if len(got) > fallbackDescriptionCap+len("• ") {
		t.Errorf("fallback length %d not capped", len(got))
	}
	if !utf8.ValidString(got) {
		t.Error("fallback contains invalid UTF-8")
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Error("capped fallback missing marker")
	}
}
