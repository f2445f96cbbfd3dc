// Package dedup persists the set of article identities that have already
// been delivered, so a story is never sent twice.
package dedup

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/Naman6019/News-Agent/internal/feed"
	"github.com/Naman6019/News-Agent/internal/logger"
	"github.com/Naman6019/News-Agent/internal/metrics"
)

// Registry filters candidate articles down to never-delivered ones and
// records deliveries. Implementations must treat a missing or unreadable
// store as an empty set, never as a fatal condition.
type Registry interface {
	// FilterUnseen returns the subset of articles whose identity is not yet
	// recorded. Side-effect free.
	FilterUnseen(articles []*feed.Article) []*feed.Article

	// RecordDelivered merges the given identities into the persisted set.
	// Identities are never removed once recorded.
	RecordDelivered(ids []string) error
}

// FileRegistry stores identities as a flat JSON array of strings. All access
// goes through one mutex; the load-union-write in RecordDelivered is the
// single-writer discipline the flat file needs.
type FileRegistry struct {
	path string
	mu   sync.Mutex
}

func NewFileRegistry(path string) *FileRegistry {
	return &FileRegistry{path: path}
}

func (r *FileRegistry) FilterUnseen(articles []*feed.Article) []*feed.Article {
	r.mu.Lock()
	seen := r.load()
	r.mu.Unlock()

	unseen := make([]*feed.Article, 0, len(articles))
	for _, a := range articles {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		unseen = append(unseen, a)
	}

	if dropped := len(articles) - len(unseen); dropped > 0 {
		metrics.Global.AddDuplicatesFiltered(dropped)
		logger.Debug("filtered already-delivered articles", "dropped", dropped, "kept", len(unseen))
	}
	return unseen
}

func (r *FileRegistry) RecordDelivered(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := r.load()
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	all := make([]string, 0, len(seen))
	for id := range seen {
		all = append(all, id)
	}
	sort.Strings(all)

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("write registry %s: %w", r.path, err)
	}
	return nil
}

// load reads the persisted set. A missing or corrupt file yields an empty
// set; delivering a duplicate beats refusing to deliver at all.
func (r *FileRegistry) load() map[string]struct{} {
	seen := make(map[string]struct{})

	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("registry unreadable, treating as empty", "path", r.path, "error", err)
		}
		return seen
	}
	if len(data) == 0 {
		return seen
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		logger.Warn("registry corrupt, treating as empty", "path", r.path, "error", err)
		return seen
	}
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return seen
}
