package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex implements DenseIndex using the coder/hnsw pure Go HNSW graph.
type HNSWIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int

	// ID mapping (string <-> uint64)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// HNSWConfig configures the dense index.
type HNSWConfig struct {
	// Dimensions is the embedding dimension; all vectors must match.
	Dimensions int
	// M is the max connections per layer (default: 16).
	M int
	// EfSearch is the query-time search width (default: 20).
	EfSearch int
}

// NewHNSWIndex creates a new HNSW-based dense index using cosine distance.
func NewHNSWIndex(cfg HNSWConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:      graph,
		dimensions: cfg.Dimensions,
		idMap:      make(map[string]uint64),
		keyMap:     make(map[uint64]string),
	}, nil
}

// Add inserts a vector. An existing id is replaced via lazy deletion:
// the old graph node is orphaned rather than removed, which avoids
// coder/hnsw breakage when deleting the last node.
func (s *HNSWIndex) Add(ctx context.Context, id string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}
	if len(vector) != s.dimensions {
		return ErrDimensionMismatch{Expected: s.dimensions, Got: len(vector)}
	}

	if existingKey, exists := s.idMap[id]; exists {
		delete(s.keyMap, existingKey)
		delete(s.idMap, id)
	}

	key := s.nextKey
	s.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeVectorInPlace(vec)

	s.graph.Add(hnsw.MakeNode(key, vec))
	s.idMap[id] = key
	s.keyMap[key] = id
	return nil
}

// Search finds up to k nearest neighbors by cosine similarity (-1 to 1).
// When a filter is set, the graph is over-queried so that filtered-out
// neighbors do not starve the result.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]*DenseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if len(query) != s.dimensions {
		return nil, ErrDimensionMismatch{Expected: s.dimensions, Got: len(query)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || s.graph.Len() == 0 {
		return []*DenseResult{}, nil
	}

	fetch := k
	if filter != nil {
		fetch = k * 4
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	nodes := s.graph.Search(normalized, fetch)

	results := make([]*DenseResult, 0, k)
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // lazily deleted node
		}
		if filter != nil && !filter(id) {
			continue
		}

		// Cosine distance is 0..2; similarity is 1-distance, -1..1.
		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, &DenseResult{
			ID:         id,
			Similarity: 1 - float64(distance),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Delete removes vectors by id via lazy deletion.
func (s *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Close releases resources.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

var _ DenseIndex = (*HNSWIndex)(nil)

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
