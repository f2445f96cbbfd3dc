// Package digest renders one delivery window's articles and summaries into
// the single message that goes out over WhatsApp.
package digest

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Naman6019/News-Agent/internal/feed"
)

const (
	maxSourcesPerCategory   = 2
	fallbackItemsPerSection = 3
	fallbackDescriptionCap  = 200
	truncationMarker        = "..."
)

// Assembler builds digests. Categories are iterated in the order given at
// construction, which is the configured order, not alphabetical.
type Assembler struct {
	categories []string
	charLimit  int
}

func NewAssembler(categories []string, charLimit int) *Assembler {
	if charLimit <= 0 {
		charLimit = 4096
	}
	return &Assembler{categories: categories, charLimit: charLimit}
}

// Build renders the digest for one delivery window. Categories without
// articles are skipped; categories without a summary fall back to the raw
// article descriptions. The result never exceeds the channel limit: as a
// last resort it is truncated with a marker, but section content is bounded
// well below that already.
func (a *Assembler) Build(label string, now time.Time, byCategory map[string][]*feed.Article, summaries map[string]string) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("📰 *%s! Here's your %s News Digest*", greeting(label), titleCase(label)))
	parts = append(parts, fmt.Sprintf("📅 %s", now.Format("02/01/2006")))
	parts = append(parts, "")

	for _, category := range a.categories {
		articles := byCategory[category]
		if len(articles) == 0 {
			continue
		}

		parts = append(parts, fmt.Sprintf("*%s News:*", titleCase(category)))

		if summary := summaries[category]; summary != "" {
			parts = append(parts, summary)
		} else {
			parts = append(parts, descriptionFallback(articles))
		}

		sources := make([]string, 0, maxSourcesPerCategory)
		for i, article := range articles {
			if i >= maxSourcesPerCategory {
				break
			}
			sources = append(sources, fmt.Sprintf("🔗 %s: %s", article.SourceName, article.Link))
		}
		if len(sources) > 0 {
			parts = append(parts, "*Sources:*")
			parts = append(parts, sources...)
		}
		parts = append(parts, "")
	}

	parts = append(parts, "_Powered by Ollama & AI News Agent_")

	digest := strings.Join(parts, "\n")
	if len(digest) > a.charLimit {
		digest = cutAtRune(digest, a.charLimit-len(truncationMarker)) + truncationMarker
	}
	return digest
}

// cutAtRune truncates s to at most n bytes without splitting a multi-byte
// rune; the cut moves left to the nearest rune start.
func cutAtRune(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// descriptionFallback renders a section from raw descriptions when no AI
// summary is available for the category.
func descriptionFallback(articles []*feed.Article) string {
	var b strings.Builder
	count := 0
	for _, article := range articles {
		if count >= fallbackItemsPerSection {
			break
		}
		text := article.Description
		if text == "" {
			text = article.Title
		}
		if len(text) > fallbackDescriptionCap {
			text = cutAtRune(text, fallbackDescriptionCap-len(truncationMarker)) + truncationMarker
		}
		fmt.Fprintf(&b, "• %s\n", text)
		count++
	}
	return strings.TrimRight(b.String(), "\n")
}

func greeting(label string) string {
	if strings.EqualFold(label, "morning") {
		return "Good morning"
	}
	return "Good evening"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
