package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// TFIDFIndex is the default sparse backend: an in-memory inverted index
// scored by term frequency weighted with inverse document frequency.
// It is fully deterministic, which the Bleve backend cannot guarantee
// across segment merges.
type TFIDFIndex struct {
	mu        sync.RWMutex
	docs      map[string]*tfidfDoc
	docFreq   map[string]int // term -> number of docs containing it
	stopWords map[string]struct{}
	closed    bool
}

type tfidfDoc struct {
	termFreq    map[string]int
	length      int     // token count after stop-word removal
	startOffset float64 // for recency tie-breaking
}

// NewTFIDFIndex creates an empty TF-IDF index with the given stop words.
// Passing nil uses DefaultStopWords.
func NewTFIDFIndex(stopWords []string) *TFIDFIndex {
	if stopWords == nil {
		stopWords = DefaultStopWords
	}
	return &TFIDFIndex{
		docs:      make(map[string]*tfidfDoc),
		docFreq:   make(map[string]int),
		stopWords: BuildStopWordMap(stopWords),
	}
}

// Add indexes a chunk's text. An existing chunk with the same id is replaced.
func (idx *TFIDFIndex) Add(ctx context.Context, chunk *Chunk) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	if _, exists := idx.docs[chunk.ID]; exists {
		idx.removeLocked(chunk.ID)
	}

	tokens := Tokenize(chunk.Text, idx.stopWords)
	doc := &tfidfDoc{
		termFreq:    make(map[string]int, len(tokens)),
		length:      len(tokens),
		startOffset: chunk.StartOffset,
	}
	for _, t := range tokens {
		doc.termFreq[t]++
	}
	for t := range doc.termFreq {
		idx.docFreq[t]++
	}
	idx.docs[chunk.ID] = doc
	return nil
}

// Delete removes chunks from the index. Unknown ids are ignored.
func (idx *TFIDFIndex) Delete(ctx context.Context, ids []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range ids {
		idx.removeLocked(id)
	}
	return nil
}

func (idx *TFIDFIndex) removeLocked(id string) {
	doc, ok := idx.docs[id]
	if !ok {
		return
	}
	for t := range doc.termFreq {
		idx.docFreq[t]--
		if idx.docFreq[t] <= 0 {
			delete(idx.docFreq, t)
		}
	}
	delete(idx.docs, id)
}

// Search scores documents against the query terms. Only documents with a
// positive score are returned, ordered by descending score; ties prefer
// the chunk with the higher start offset, then the smaller id.
func (idx *TFIDFIndex) Search(ctx context.Context, query string, k int, filter Filter) ([]*SparseResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if k <= 0 {
		return []*SparseResult{}, nil
	}

	queryTokens := Tokenize(query, idx.stopWords)
	if len(queryTokens) == 0 || len(idx.docs) == 0 {
		return []*SparseResult{}, nil
	}

	queryFreq := make(map[string]int, len(queryTokens))
	for _, t := range queryTokens {
		queryFreq[t]++
	}

	total := len(idx.docs)
	type scored struct {
		id          string
		score       float64
		startOffset float64
	}
	var hits []scored

	visited := 0
	for id, doc := range idx.docs {
		// The scoring loop is the only unbounded work here; honor the
		// caller's deadline on large corpora.
		if visited%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		visited++

		if filter != nil && !filter(id) {
			continue
		}
		if doc.length == 0 {
			continue
		}

		var score float64
		for term, qtf := range queryFreq {
			tf := doc.termFreq[term]
			if tf == 0 {
				continue
			}
			// Smoothed idf keeps terms present in every document from
			// zeroing out entirely.
			idf := math.Log(float64(1+total)/float64(1+idx.docFreq[term])) + 1
			score += float64(qtf) * (float64(tf) / float64(doc.length)) * idf
		}
		if score > 0 {
			hits = append(hits, scored{id: id, score: score, startOffset: doc.startOffset})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if hits[i].startOffset != hits[j].startOffset {
			return hits[i].startOffset > hits[j].startOffset
		}
		return hits[i].id < hits[j].id
	})

	if len(hits) > k {
		hits = hits[:k]
	}

	results := make([]*SparseResult, len(hits))
	for i, h := range hits {
		results[i] = &SparseResult{ID: h.id, Score: h.score}
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (idx *TFIDFIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Close releases resources.
func (idx *TFIDFIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.closed = true
	idx.docs = nil
	idx.docFreq = nil
	return nil
}

var _ SparseIndex = (*TFIDFIndex)(nil)
