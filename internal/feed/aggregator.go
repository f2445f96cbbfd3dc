package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Naman6019/News-Agent/internal/config"
	"github.com/Naman6019/News-Agent/internal/logger"
	"github.com/Naman6019/News-Agent/internal/metrics"
)

// Aggregator fans fetches out across the configured categories and
// normalizes the results. Failures are captured per feed and per category;
// one broken source never cancels the rest of a run.
type Aggregator struct {
	fetcher    *Fetcher
	categories []config.Category
	maxPerCat  int
	freshness  time.Duration

	now func() time.Time // overridable in tests
}

func NewAggregator(fetcher *Fetcher, categories []config.Category, maxPerCategory int, freshness time.Duration) *Aggregator {
	return &Aggregator{
		fetcher:    fetcher,
		categories: categories,
		maxPerCat:  maxPerCategory,
		freshness:  freshness,
		now:        time.Now,
	}
}

// FetchCategory fetches every feed of one category sequentially, merges the
// normalized articles, sorts newest-first and caps the result.
func (a *Aggregator) FetchCategory(ctx context.Context, cat config.Category) []*Article {
	now := a.now()
	var articles []*Article

	for _, feedURL := range cat.Feeds {
		res := a.fetcher.Fetch(ctx, feedURL)
		if res.Err != nil {
			logger.Warn("skipping feed", "category", cat.Name, "url", feedURL, "error", res.Err)
			continue
		}

		count := 0
		for _, item := range res.Feed.Items {
			article := Normalize(item, feedURL, cat.Name, now, a.freshness)
			if article == nil {
				continue
			}
			articles = append(articles, article)
			count++
		}
		logger.Debug("normalized feed entries", "url", feedURL, "kept", count, "total", len(res.Feed.Items))
	}

	sort.Slice(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
	if len(articles) > a.maxPerCat {
		articles = articles[:a.maxPerCat]
	}

	if len(articles) == 0 {
		logger.Warn("no articles found in category", "category", cat.Name)
	}
	return articles
}

// FetchAll fetches all categories concurrently. The returned map only
// contains keys for configured categories; empty categories map to nil.
func (a *Aggregator) FetchAll(ctx context.Context) map[string][]*Article {
	results := make(map[string][]*Article, len(a.categories))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, cat := range a.categories {
		wg.Add(1)
		go func(cat config.Category) {
			defer wg.Done()
			articles := a.FetchCategory(ctx, cat)
			mu.Lock()
			results[cat.Name] = articles
			mu.Unlock()
		}(cat)
	}
	wg.Wait()

	total := 0
	for _, articles := range results {
		total += len(articles)
	}
	metrics.Global.AddArticlesFetched(total)
	logger.Info("aggregation complete", "categories", len(a.categories), "articles", total)
	return results
}
