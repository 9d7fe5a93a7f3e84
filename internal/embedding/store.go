// Package embedding holds the immutable watch-list of known faces that the
// matcher scans. It is populated once at start-up and never mutated.
package embedding

import (
	"context"
	"fmt"
	"sort"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
)

// Loader reads the persisted watch-list. A loader that finds no persisted
// data returns an empty slice and a nil error.
type Loader interface {
	Load(ctx context.Context) ([]domain.KnownFace, error)
}

// Store is safe for concurrent readers. Records are kept sorted by URN so
// the scan order, and with it tie-breaking between equal distances, does not
// depend on the source's ordering.
type Store struct {
	records []domain.KnownFace
	dim     int
}

// NewStore copies records into a new store. Duplicate URNs are rejected.
func NewStore(records []domain.KnownFace) (*Store, error) {
	out := make([]domain.KnownFace, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, r := range records {
		if r.URN == "" {
			return nil, fmt.Errorf("%w: record with empty urn", domain.ErrLoad)
		}
		if _, ok := seen[r.URN]; ok {
			return nil, fmt.Errorf("%w: duplicate urn %q", domain.ErrLoad, r.URN)
		}
		seen[r.URN] = struct{}{}

		emb := make([]float64, len(r.Embedding))
		copy(emb, r.Embedding)
		out = append(out, domain.KnownFace{
			URN:       r.URN,
			Embedding: emb,
			Details:   r.Details,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].URN < out[j].URN })

	s := &Store{records: out}
	if len(out) > 0 {
		s.dim = len(out[0].Embedding)
	}
	return s, nil
}

// Empty returns a store with no records.
func Empty() *Store {
	return &Store{}
}

// Load builds a store from l. On failure it still returns a usable empty
// store together with the error, so callers can log and keep serving.
func Load(ctx context.Context, l Loader) (*Store, error) {
	records, err := l.Load(ctx)
	if err != nil {
		return Empty(), fmt.Errorf("load embeddings: %w", err)
	}

	s, err := NewStore(records)
	if err != nil {
		return Empty(), fmt.Errorf("load embeddings: %w", err)
	}
	return s, nil
}

// Records returns every known face in scan order. The returned slice is a
// copy but the embeddings are shared and must be treated as read-only.
func (s *Store) Records() []domain.KnownFace {
	out := make([]domain.KnownFace, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Len() int {
	return len(s.records)
}

// Dimension is the embedding length of the first record, or 0 when empty.
func (s *Store) Dimension() int {
	return s.dim
}
