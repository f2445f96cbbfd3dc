package feed

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Article is a normalized feed entry. All fields except Content and Summary
// are set once at normalization time and never change afterwards.
type Article struct {
	ID          string
	Title       string
	Description string
	Link        string
	PublishedAt time.Time
	SourceURL   string
	SourceName  string
	Category    string

	Content string // full article text, enriched separately
	Summary string // AI summary, attached during a delivery run
}

// ComputeID derives the dedup identity for an article. The same
// (title, link, publishedAt) always hashes to the same value; a changed
// title or link yields a new identity and the story is treated as new.
func ComputeID(title, link string, publishedAt time.Time) string {
	h := md5.Sum([]byte(title + link + publishedAt.Format(time.RFC3339)))
	return hex.EncodeToString(h[:])[:12]
}

// Normalize converts a raw feed entry into an Article, or returns nil for
// entries that are malformed or stale. The freshness boundary is exclusive:
// an entry published exactly freshness ago is discarded.
func Normalize(item *gofeed.Item, sourceURL, category string, now time.Time, freshness time.Duration) *Article {
	if item == nil {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}
	if link == "" {
		return nil
	}

	publishedAt := now
	switch {
	case item.PublishedParsed != nil:
		publishedAt = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		publishedAt = *item.UpdatedParsed
	}

	if !publishedAt.After(now.Add(-freshness)) {
		return nil
	}

	return &Article{
		ID:          ComputeID(title, link, publishedAt),
		Title:       title,
		Description: strings.TrimSpace(item.Description),
		Link:        link,
		PublishedAt: publishedAt,
		SourceURL:   sourceURL,
		SourceName:  sourceName(sourceURL),
		Category:    category,
	}
}

// sourceName derives a short display name from the feed URL host.
func sourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
