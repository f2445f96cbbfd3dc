// Package summarizer talks to a local Ollama instance to turn articles into
// short digest-ready summaries.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Naman6019/News-Agent/internal/feed"
	"github.com/Naman6019/News-Agent/internal/logger"
	"github.com/Naman6019/News-Agent/internal/metrics"
	"github.com/Naman6019/News-Agent/internal/retry"
)

// ErrUnavailable means the backend never became ready or exhausted all
// generation attempts. Callers fall back to the article description.
var ErrUnavailable = errors.New("summarization backend unavailable")

const (
	singlePromptContentCap = 2000
	batchPromptContentCap  = 300
	batchArticleCap        = 3
)

type Config struct {
	BaseURL       string
	Model         string
	MaxTokens     int
	Temperature   float64
	MaxSummaryLen int

	ReadyAttempts  int           // readiness poll attempts (default 12)
	ReadyDelay     time.Duration // delay between readiness polls (default 5s)
	RetryAttempts  int           // total generation attempts (default 3)
	RetryDelay     time.Duration // fixed backoff between attempts (default 3s)
	RequestTimeout time.Duration // per-generation timeout (default 60s)
}

type Client struct {
	cfg        Config
	httpClient *http.Client

	mu    sync.Mutex
	ready bool
}

func New(cfg Config) *Client {
	if cfg.ReadyAttempts <= 0 {
		cfg.ReadyAttempts = 12
	}
	if cfg.ReadyDelay <= 0 {
		cfg.ReadyDelay = 5 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 3 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.MaxSummaryLen <= 0 {
		cfg.MaxSummaryLen = 200
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Ping is a single readiness probe, used at scheduler startup to decide
// between Running and Degraded without blocking on the full poll loop.
func (c *Client) Ping(ctx context.Context) error {
	return c.checkReady(ctx)
}

// ensureReady polls /api/tags until the configured model shows up, bounded
// by ReadyAttempts. Once ready, later calls are free until a generation
// failure clears the flag again.
func (c *Client) ensureReady(ctx context.Context) error {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	if ready {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.ReadyAttempts; attempt++ {
		if err := c.checkReady(ctx); err == nil {
			c.mu.Lock()
			c.ready = true
			c.mu.Unlock()
			logger.Info("summarization backend ready", "model", c.cfg.Model, "attempt", attempt)
			return nil
		} else {
			lastErr = err
			logger.Debug("backend not ready", "attempt", attempt, "max", c.cfg.ReadyAttempts, "error", err)
		}

		if attempt < c.cfg.ReadyAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.ReadyDelay):
			}
		}
	}
	return fmt.Errorf("%w: not ready after %d attempts: %v", ErrUnavailable, c.cfg.ReadyAttempts, lastErr)
}

func (c *Client) checkReady(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend not accessible: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decode tags response: %w", err)
	}

	for _, m := range tags.Models {
		if m.Name == c.cfg.Model {
			return nil
		}
	}
	return fmt.Errorf("model %q not loaded", c.cfg.Model)
}

// Summarize produces a short summary for one article. Returns ErrUnavailable
// after exhausting retries; never panics past its boundary.
func (c *Client) Summarize(ctx context.Context, article *feed.Article) (string, error) {
	if err := c.ensureReady(ctx); err != nil {
		return "", err
	}

	out, err := c.generateWithRetry(ctx, c.singlePrompt(article))
	if err != nil {
		metrics.Global.IncrementSummariesFailed()
		return "", err
	}

	summary := capSummary(cleanSummary(out), c.cfg.MaxSummaryLen)
	metrics.Global.IncrementSummariesGenerated()
	return summary, nil
}

// SummarizeBatch produces one bullet-point digest for up to three articles
// of the same category.
func (c *Client) SummarizeBatch(ctx context.Context, articles []*feed.Article, category string) (string, error) {
	if len(articles) == 0 {
		return "", fmt.Errorf("no articles to summarize")
	}
	if err := c.ensureReady(ctx); err != nil {
		return "", err
	}

	out, err := c.generateWithRetry(ctx, c.batchPrompt(articles, category))
	if err != nil {
		metrics.Global.IncrementSummariesFailed()
		return "", err
	}

	metrics.Global.IncrementSummariesGenerated()
	return cleanSummary(out), nil
}

// SummarizeAll creates one batch summary per category, dispatched
// concurrently. A failed category yields no entry in the result; it never
// blocks the others.
func (c *Client) SummarizeAll(ctx context.Context, byCategory map[string][]*feed.Article) map[string]string {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		summaries = make(map[string]string, len(byCategory))
	)

	for category, articles := range byCategory {
		if len(articles) == 0 {
			continue
		}
		wg.Add(1)
		go func(category string, articles []*feed.Article) {
			defer wg.Done()
			summary, err := c.SummarizeBatch(ctx, articles, category)
			if err != nil {
				logger.Warn("batch summary failed", "category", category, "error", err)
				return
			}
			mu.Lock()
			summaries[category] = summary
			mu.Unlock()
		}(category, articles)
	}
	wg.Wait()

	logger.Info("summarization complete", "categories", len(summaries), "requested", len(byCategory))
	return summaries
}

func (c *Client) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var out string
	err := retry.WithRetry(ctx, retry.Config{
		MaxAttempts: c.cfg.RetryAttempts,
		Delay:       c.cfg.RetryDelay,
	}, func() error {
		var genErr error
		out, genErr = c.generate(ctx, prompt)
		return genErr
	})
	if err != nil {
		// Force a fresh readiness poll before the next call.
		c.mu.Lock()
		c.ready = false
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model":  c.cfg.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": c.cfg.Temperature,
			"num_predict": c.cfg.MaxTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("generate status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if result.Response == "" {
		return "", fmt.Errorf("empty response from backend")
	}
	return strings.TrimSpace(result.Response), nil
}

func (c *Client) singlePrompt(article *feed.Article) string {
	content := article.Content
	if content == "" {
		content = article.Description
	}
	content = truncate(content, singlePromptContentCap)

	return fmt.Sprintf(`You are a professional news summarizer. Create a concise, engaging summary suitable for WhatsApp messaging.

Article Details:
- Title: %s
- Source: %s
- Category: %s

Content:
%s

Requirements:
- Focus on key facts and main events
- Keep under %d characters
- Make it engaging and easy to read
- Start directly with the summary (no prefixes)

Summary:`, article.Title, article.SourceName, titleCase(article.Category), content, c.cfg.MaxSummaryLen)
}

func (c *Client) batchPrompt(articles []*feed.Article, category string) string {
	n := len(articles)
	if n > batchArticleCap {
		n = batchArticleCap
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		content := articles[i].Content
		if content == "" {
			content = articles[i].Description
		}
		fmt.Fprintf(&b, "\n%d. %s\n   %s\n", i+1, articles[i].Title, truncate(content, batchPromptContentCap))
	}

	return fmt.Sprintf(`You are a professional news curator. Create a concise news digest for the %s category.

Articles to summarize:
%s
Requirements:
- Summarize the top %d stories
- Use bullet points for each story
- Focus on key facts only
- Keep each summary under %d characters
- Make it engaging and suitable for WhatsApp messaging
- Start directly with the bullet points (no prefixes)

News Digest:`, titleCase(category), b.String(), n, c.cfg.MaxSummaryLen/2)
}

var boilerplatePrefix = regexp.MustCompile(`(?i)^(Summary:|Here's a summary:|In summary:|News Digest:)\s*`)

// cleanSummary strips the boilerplate the model tends to emit around the
// actual text.
func cleanSummary(s string) string {
	s = boilerplatePrefix.ReplaceAllString(strings.TrimSpace(s), "")
	s = strings.Trim(s, `"'`)
	s = strings.Join(strings.Fields(s), " ")

	if r, size := utf8.DecodeRuneInString(s); size > 0 && unicode.IsLower(r) {
		s = string(unicode.ToUpper(r)) + s[size:]
	}
	return strings.TrimSpace(s)
}

func capSummary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return cutAtRune(s, max-3) + "..."
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return cutAtRune(s, max) + "..."
}

// cutAtRune truncates s to at most n bytes without splitting a multi-byte
// rune.
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

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
