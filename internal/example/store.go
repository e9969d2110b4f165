// Package example is the sample CRUD resource served under /api/example.
package example

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown example IDs.
var ErrNotFound = errors.New("example not found")

// Example is a stored record.
type Example struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       *int      `json:"age,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Input is the body accepted on create.
type Input struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Age   *int   `json:"age,omitempty" validate:"omitempty,gte=0,lte=150"`
}

// Patch is the body accepted on update. Absent fields are left unchanged.
type Patch struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Age   *int    `json:"age,omitempty" validate:"omitempty,gte=0,lte=150"`
}

// Store keeps examples in memory. IDs start at 1 and are never reused.
type Store struct {
	mu     sync.RWMutex
	nextID int
	items  map[int]Example
	clock  func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{nextID: 1, items: make(map[int]Example), clock: time.Now}
}

// List returns all examples ordered by ID.
func (s *Store) List() []Example {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Example, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the example with id.
func (s *Store) Get(id int) (Example, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return Example{}, ErrNotFound
	}
	return item, nil
}

// Create stores a new example.
func (s *Store) Create(in Input) Example {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	item := Example{
		ID:        s.nextID,
		Name:      in.Name,
		Email:     in.Email,
		Age:       in.Age,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.items[item.ID] = item
	s.nextID++
	return item
}

// Update applies p to the example with id.
func (s *Store) Update(id int, p Patch) (Example, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return Example{}, ErrNotFound
	}
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Email != nil {
		item.Email = *p.Email
	}
	if p.Age != nil {
		item.Age = p.Age
	}
	item.UpdatedAt = s.clock()
	s.items[id] = item
	return item, nil
}

// Delete removes the example with id.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// Reset empties the store and restarts IDs at 1.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[int]Example)
	s.nextID = 1
}
