package analysis

import (
	"context"
	"sync"

	. "github.com/cricklet/chessuci/internal/helpers"
)

// Cache stores evaluations by normalized FEN. Put only replaces an entry
// with a deeper one and reports whether it stored e.
type Cache interface {
	Get(ctx context.Context, fen string) (Optional[Evaluation], error)
	Put(ctx context.Context, e Evaluation) (bool, error)
}

type MemoryCache struct {
	mu          sync.Mutex
	evaluations map[string]Evaluation
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{evaluations: map[string]Evaluation{}}
}

func (c *MemoryCache) Get(ctx context.Context, fen string) (Optional[Evaluation], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.evaluations[Normalize(fen)]; ok {
		return Some(e), nil
	}
	return Empty[Evaluation](), nil
}

func (c *MemoryCache) Put(ctx context.Context, e Evaluation) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := Normalize(e.FEN)
	if existing, ok := c.evaluations[key]; ok && existing.Depth >= e.Depth {
		return false, nil
	}
	c.evaluations[key] = e
	return true, nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.evaluations)
}
