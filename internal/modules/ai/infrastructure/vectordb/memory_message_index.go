package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"SecAssist/internal/modules/ai/domain/repository"
)

// MemoryMessageIndex brute-force cosine index used when no Milvus address is
// configured (local runs) and by tests. Same contract as MilvusMessageIndex.
type MemoryMessageIndex struct {
	mu    sync.RWMutex
	items map[int64]repository.IndexItem
}

var _ repository.MessageIndex = (*MemoryMessageIndex)(nil)

func NewMemoryMessageIndex() *MemoryMessageIndex {
	return &MemoryMessageIndex{items: make(map[int64]repository.IndexItem)}
}

func (s *MemoryMessageIndex) Upsert(_ context.Context, items []repository.IndexItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if it.MessageID <= 0 {
			return fmt.Errorf("index item missing message id")
		}
		vec := make([]float32, len(it.Vector))
		copy(vec, it.Vector)
		it.Vector = vec
		s.items[it.MessageID] = it
	}
	return nil
}

func (s *MemoryMessageIndex) DeleteByIDs(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.items, id)
	}
	return nil
}

func (s *MemoryMessageIndex) Search(ctx context.Context, vector []float32, filter repository.IndexFilter, limit int, minScore float32) ([]repository.IndexHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	hits := make([]repository.IndexHit, 0, len(s.items))
	for id, it := range s.items {
		if !matchesFilter(it, filter) {
			continue
		}
		score := cosine(vector, it.Vector)
		if score < minScore {
			continue
		}
		hits = append(hits, repository.IndexHit{MessageID: id, Score: score})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].MessageID > hits[j].MessageID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len number of indexed messages
func (s *MemoryMessageIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Has reports whether a message is indexed
func (s *MemoryMessageIndex) Has(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

func matchesFilter(it repository.IndexItem, f repository.IndexFilter) bool {
	if f.SessionID != "" && it.SessionID != f.SessionID {
		return false
	}
	if f.UserID != "" && it.UserID != f.UserID {
		return false
	}
	if f.DateFrom != nil && it.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && it.CreatedAt.After(*f.DateTo) {
		return false
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
