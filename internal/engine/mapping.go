// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"strings"
	"sync"
)

// Ungrouped is the mapping bucket for modules that belong to no registered package.
const Ungrouped = "ungrouped"

// mapping caches module id -> owning package url. It is cleared wholesale
// whenever a package is registered or removed and extended one entry at a
// time as modules load. Registry notifications may arrive from other
// goroutines, hence the lock.
type mapping struct {
	mu   sync.Mutex
	byID map[string]string
	urls func() []string
}

func newMapping(urls func() []string) *mapping {
	return &mapping{byID: make(map[string]string), urls: urls}
}

// classify returns the cached owner of id, computing and caching it on a miss.
func (c *mapping) classify(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if url, ok := c.byID[id]; ok {
		return url
	}
	url := longestPrefix(id, c.urls())
	c.byID[id] = url
	return url
}

// insert records the owner of a newly loaded module.
func (c *mapping) insert(id string) {
	c.classify(id)
}

func (c *mapping) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.byID)
}

func (c *mapping) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// longestPrefix picks the longest package url that is id itself or a
// directory prefix of id.
func longestPrefix(id string, urls []string) string {
	best := ""
	for _, url := range urls {
		if len(url) <= len(best) {
			continue
		}
		if id == url || strings.HasPrefix(id, strings.TrimSuffix(url, "/")+"/") {
			best = url
		}
	}
	if best == "" {
		return Ungrouped
	}
	return best
}
