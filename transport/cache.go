package transport

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// =============================================================================
// DISTANCE CACHE - Shared across one batch run
// =============================================================================

// Mode is the travel mode sent to distance providers.
type Mode string

const (
	ModeDriving Mode = "driving"
	ModeTransit Mode = "transit"
)

// Entry is a distance matrix entry as providers return it: distance in
// meters, duration in seconds.
type Entry struct {
	Origins      string `json:"origins"`
	Destinations string `json:"destinations"`
	Mode         Mode   `json:"mode"`
	Distance     int64  `json:"distance"`
	Duration     int64  `json:"duration"`
}

func (e Entry) matches(origins, destinations string, mode Mode) bool {
	return e.Origins == origins && e.Destinations == destinations && e.Mode == mode
}

// Cache is the in-memory distance matrix of a batch run. It is passed by
// reference to every worker computation of the run so identical
// (origins, destinations, mode) triples are looked up once. Safe for
// concurrent use; concurrent misses on the same triple share one lookup.
type Cache struct {
	mu      sync.RWMutex
	entries []Entry
	flight  singleflight.Group
}

// NewCache seeds a cache, typically with the stored distance matrix.
func NewCache(entries ...Entry) *Cache {
	c := &Cache{entries: make([]Entry, 0, len(entries))}
	c.entries = append(c.entries, entries...)
	return c
}

// Find returns the entry for the triple.
func (c *Cache) Find(origins, destinations string, mode Mode) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.matches(origins, destinations, mode) {
			return e, true
		}
	}
	return Entry{}, false
}

// Add appends an entry unless the triple is already present.
func (c *Cache) Add(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.entries {
		if existing.matches(e.Origins, e.Destinations, e.Mode) {
			return
		}
	}
	c.entries = append(c.entries, e)
}

// Entries returns a copy of the cached entries.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func flightKey(origins, destinations string, mode Mode) string {
	return string(mode) + "\x00" + origins + "\x00" + destinations
}
