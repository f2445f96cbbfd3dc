package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Naman6019/News-Agent/internal/feed"
	"github.com/Naman6019/News-Agent/internal/logger"
)

// maxContentChars bounds extracted text before it goes into summary prompts.
const maxContentChars = 2000

// contentSelectors are tried in order; the first non-empty match wins.
var contentSelectors = []string{
	"article",
	"[class*=\"content\"]",
	"[class*=\"article\"]",
	"main",
	".post",
	".entry-content",
}

// Scraper pulls full article text from story pages so summaries work from
// more than the feed's one-line description.
type Scraper struct {
	client      *http.Client
	concurrency int
}

func New(timeout time.Duration, concurrency int) *Scraper {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Scraper{
		client:      &http.Client{Timeout: timeout},
		concurrency: concurrency,
	}
}

// Extract fetches one article page and returns its main text, capped at
// maxContentChars.
func (s *Scraper) Extract(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("load page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if text := collapseText(sel.Text()); text != "" {
			return capContent(text), nil
		}
	}

	// Fallback to body text
	if body := collapseText(doc.Find("body").Text()); body != "" {
		return capContent(body), nil
	}
	return "", fmt.Errorf("no content found")
}

// EnrichArticles fills Article.Content with bounded fan-out so one run never
// hammers the article hosts. Extraction failures leave Content empty; the
// summarizer then works from the description.
func (s *Scraper) EnrichArticles(ctx context.Context, articles []*feed.Article) {
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for _, article := range articles {
		wg.Add(1)
		go func(a *feed.Article) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			content, err := s.Extract(ctx, a.Link)
			if err != nil {
				logger.Debug("content extraction failed", "url", a.Link, "error", err)
				return
			}
			a.Content = content
		}(article)
	}
	wg.Wait()
}

func collapseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func capContent(s string) string {
	if len(s) > maxContentChars {
		return s[:maxContentChars]
	}
	return s
}
