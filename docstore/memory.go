package docstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a brute-force cosine-similarity store. It backs local
// development and tests when no Postgres instance is around.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[uuid.UUID]Document)}
}

func (s *MemoryStore) Upsert(_ context.Context, doc Document) (uuid.UUID, error) {
	if len(doc.Embedding) == 0 {
		return uuid.Nil, fmt.Errorf("document embedding is empty")
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.SourceID != "" {
		for id, existing := range s.docs {
			if existing.SourceID == doc.SourceID {
				delete(s.docs, id)
			}
		}
	}

	s.docs[doc.ID] = doc
	return doc.ID, nil
}

func (s *MemoryStore) VectorSearch(_ context.Context, embedding []float32, limit int) ([]uuid.UUID, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		id    uuid.UUID
		score float64
	}

	scoredDocs := make([]scored, 0, len(s.docs))
	for id, doc := range s.docs {
		scoredDocs = append(scoredDocs, scored{id: id, score: cosine(embedding, doc.Embedding)})
	}

	sort.Slice(scoredDocs, func(i, j int) bool {
		if scoredDocs[i].score != scoredDocs[j].score {
			return scoredDocs[i].score > scoredDocs[j].score
		}
		// deterministic tie-break
		return scoredDocs[i].id.String() < scoredDocs[j].id.String()
	})

	if limit > len(scoredDocs) {
		limit = len(scoredDocs)
	}

	ids := make([]uuid.UUID, 0, limit)
	for _, sd := range scoredDocs[:limit] {
		ids = append(ids, sd.id)
	}
	return ids, nil
}

func (s *MemoryStore) FetchByIDs(_ context.Context, ids []uuid.UUID) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Len reports the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Store = (*MemoryStore)(nil)
