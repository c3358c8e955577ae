package overlay

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Dedup is a bounded set of seen keys. Lookups never refresh recency, so
// the oldest key is evicted first once the set is full.
type Dedup struct {
	seen *lru.Cache[string, struct{}]
}

func NewDedup(capacity int) (*Dedup, error) {
	if capacity <= 0 {
		capacity = 4096
	}
	c, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &Dedup{seen: c}, nil
}

// Add records key and reports whether it was new.
func (d *Dedup) Add(key string) bool {
	seen, _ := d.seen.ContainsOrAdd(key, struct{}{})
	return !seen
}

func (d *Dedup) size() int { return d.seen.Len() }
