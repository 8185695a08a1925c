package fit

import (
	"fmt"
	"sort"
)

// Parameter is the stored state of one fit parameter. Bounds are only
// enforced when Mode is Bounded.
type Parameter struct {
	Value  float64    `json:"value"`
	Mode   Mode       `json:"mode"`
	Bounds [2]float64 `json:"bounds"`
}

// Store holds parameters keyed by their index in the shared parameter
// vector. It is not safe for concurrent use.
type Store struct {
	params map[int]Parameter
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{params: make(map[int]Parameter)}
}

// Set overwrites the entry for index.
func (s *Store) Set(index int, p Parameter) {
	s.params[index] = p
}

// Get returns the entry for index or ErrNotFound.
func (s *Store) Get(index int) (Parameter, error) {
	p, ok := s.params[index]
	if !ok {
		return Parameter{}, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return p, nil
}

// Has reports whether index has an entry.
func (s *Store) Has(index int) bool {
	_, ok := s.params[index]
	return ok
}

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.params) }

// Indices returns the stored indices in ascending order. This is the
// order in which parameters are applied to a model.
func (s *Store) Indices() []int {
	idx := make([]int, 0, len(s.params))
	for i := range s.params {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Snapshot returns a copy of every entry.
func (s *Store) Snapshot() map[int]Parameter {
	out := make(map[int]Parameter, len(s.params))
	for i, p := range s.params {
		out[i] = p
	}
	return out
}
