package assistant

import (
	"strings"
	"sync"
)

// minKeyLength drops obviously truncated or placeholder keys.
const minKeyLength = 11

// KeyPool is an ordered set of API keys with a cursor.
// Rotation is always an explicit caller decision.
type KeyPool struct {
	mu     sync.RWMutex
	keys   []string
	cursor int
}

// NewKeyPool creates a pool from keys, dropping blanks and short keys.
func NewKeyPool(keys []string) *KeyPool {
	return &KeyPool{keys: filterKeys(keys)}
}

func filterKeys(keys []string) []string {
	var out []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if len(k) >= minKeyLength {
			out = append(out, k)
		}
	}
	return out
}

// Current returns the key under the cursor, or "" for an empty pool.
func (p *KeyPool) Current() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.keys) == 0 {
		return ""
	}
	return p.keys[p.cursor%len(p.keys)]
}

// Rotate advances the cursor. It reports false when there is no other key
// to rotate to.
func (p *KeyPool) Rotate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) < 2 {
		return false
	}
	p.cursor = (p.cursor + 1) % len(p.keys)
	return true
}

// Len returns the number of usable keys.
func (p *KeyPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.keys)
}

// Index returns the cursor position.
func (p *KeyPool) Index() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cursor
}

// Replace swaps in a new key list and resets the cursor. It returns the
// number of keys kept.
func (p *KeyPool) Replace(keys []string) int {
	filtered := filterKeys(keys)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = filtered
	p.cursor = 0
	return len(filtered)
}
