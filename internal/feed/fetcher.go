package feed

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/Naman6019/News-Agent/internal/logger"
)

const userAgent = "Mozilla/5.0 (compatible; NewsAgentBot/1.0; +https://newsagent.ai)"

// FetchResult carries the parsed feed or the reason fetching failed. A failed
// feed contributes zero articles; it never aborts the aggregation run.
type FetchResult struct {
	URL  string
	Feed *gofeed.Feed
	Err  error
}

// Fetcher downloads and parses one RSS/Atom feed. Certificate verification
// is skipped: several sources (CNN among them) intermittently break TLS
// handshakes, and stale-but-parsed beats fresh-but-absent here.
type Fetcher struct {
	client *http.Client
	parser *gofeed.Parser
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		parser: p,
	}
}

// Fetch gets and parses a feed. Primary path: plain GET through the lenient
// client. On any failure it retries once via gofeed's direct URL parser,
// which tolerates more malformed feeds.
func (f *Fetcher) Fetch(ctx context.Context, url string) FetchResult {
	feed, err := f.fetchOnce(ctx, url)
	if err == nil {
		logger.Info("fetched feed", "url", url, "entries", len(feed.Items))
		return FetchResult{URL: url, Feed: feed}
	}

	logger.Warn("feed fetch failed, retrying with direct parse", "url", url, "error", err)

	feed, fallbackErr := f.parser.ParseURLWithContext(url, ctx)
	if fallbackErr == nil && len(feed.Items) > 0 {
		logger.Info("recovered feed via direct parse", "url", url, "entries", len(feed.Items))
		return FetchResult{URL: url, Feed: feed}
	}
	if fallbackErr == nil {
		fallbackErr = fmt.Errorf("no entries in feed")
	}

	return FetchResult{URL: url, Err: fmt.Errorf("fetch %s: %w (fallback: %v)", url, err, fallbackErr)}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	if len(feed.Items) == 0 {
		return nil, fmt.Errorf("no entries in feed")
	}
	return feed, nil
}
