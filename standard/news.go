package standard

import (
	"sort"
	"sync"

	"github.com/st-keller/objid-poller/types"
)

// NewsFeed tracks the backend news entries that are currently published.
type NewsFeed struct {
	mu        sync.RWMutex
	entries   map[string]types.NewsEntry
	order     []string // publication order of current entries
	dismissed map[string]bool
}

// NewNewsFeed creates an empty feed.
func NewNewsFeed() *NewsFeed {
	return &NewsFeed{
		entries:   make(map[string]types.NewsEntry),
		dismissed: make(map[string]bool),
	}
}

// UpdateNews replaces the published entries and reports whether the set of
// news ids changed. Entries without an id are ignored.
func (f *NewsFeed) UpdateNews(news types.NewsUpdate) bool {
	next := make(map[string]types.NewsEntry, len(news))
	order := make([]string, 0, len(news))
	for _, entry := range news {
		if entry.ID == "" {
			continue
		}
		if _, dup := next[entry.ID]; dup {
			continue
		}
		next[entry.ID] = entry
		order = append(order, entry.ID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	changed := len(next) != len(f.entries)
	if !changed {
		for id := range next {
			if _, ok := f.entries[id]; !ok {
				changed = true
				break
			}
		}
	}

	f.entries = next
	f.order = order
	return changed
}

// Dismiss hides an entry for the rest of the process lifetime.
func (f *NewsFeed) Dismiss(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed[id] = true
}

// Pending returns the published entries that were not dismissed, in
// publication order.
func (f *NewsFeed) Pending() []types.NewsEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]types.NewsEntry, 0, len(f.order))
	for _, id := range f.order {
		if f.dismissed[id] {
			continue
		}
		out = append(out, f.entries[id])
	}
	return out
}

// Dismissed returns the dismissed ids, sorted.
func (f *NewsFeed) Dismissed() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids := make([]string, 0, len(f.dismissed))
	for id := range f.dismissed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
