package builtin

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// DeDup is a streaming keep-first de-duplicator over a single string key
// (event_id). It remembers 128-bit xxh3 hashes rather than the keys
// themselves, so memory per distinct key is fixed at 16 bytes.
//
// Empty keys are never considered duplicates: rows without an event_id pass
// through untouched.
//
// DeDup is safe for concurrent use; the first caller to present a key wins.
type DeDup struct {
	mu   sync.Mutex
	seen map[xxh3.Uint128]struct{}
}

// NewDeDup returns an empty de-duplicator sized for about hint keys.
func NewDeDup(hint int) *DeDup {
	if hint < 0 {
		hint = 0
	}
	return &DeDup{seen: make(map[xxh3.Uint128]struct{}, hint)}
}

// Seen records key and reports whether it had already been recorded.
func (d *DeDup) Seen(key string) bool {
	if key == "" {
		return false
	}
	h := xxh3.HashString128(key)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[h]; ok {
		return true
	}
	d.seen[h] = struct{}{}
	return false
}

// Len returns the number of distinct keys recorded.
func (d *DeDup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
