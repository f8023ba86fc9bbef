package pipeline

import (
	"fmt"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// titleRegistry hands out unique file name stems per page directory by
// appending _2, _3, ... to repeated titles. Only the most recent names are
// remembered; an evicted name may be reused and overwritten.
type titleRegistry struct {
	mu   sync.Mutex
	seen *lru.Cache[string, int]
}

func newTitleRegistry(size int) (*titleRegistry, error) {
	cache, err := lru.New[string, int](size)
	if err != nil {
		return nil, fmt.Errorf("create title registry: %w", err)
	}
	return &titleRegistry{seen: cache}, nil
}

// Reserve returns the stem to use for title inside dir.
func (r *titleRegistry) Reserve(dir, title string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := filepath.Join(dir, title)
	count, ok := r.seen.Get(key)
	if !ok {
		r.seen.Add(key, 1)
		return title
	}

	for {
		count++
		candidate := fmt.Sprintf("%s_%d", title, count)
		candidateKey := filepath.Join(dir, candidate)
		if r.seen.Contains(candidateKey) {
			continue
		}
		r.seen.Add(key, count)
		r.seen.Add(candidateKey, 1)
		return candidate
	}
}
