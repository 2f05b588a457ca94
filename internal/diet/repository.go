package diet

import (
	"context"
	"slices"
	"sync"
)

// Repository stores user documents and superseded plans.
type Repository interface {
	// CreateDocument creates an empty document for the user if none exists.
	CreateDocument(ctx context.Context, userID string) error

	// GetDocument returns the user's document.
	GetDocument(ctx context.Context, userID string) (*UserDocument, error)

	// UpdateDocument runs fn on the current document inside one atomic
	// read-modify-write. Nothing is written when fn returns an error.
	// Plans appended to doc.Archived are moved to history on commit.
	UpdateDocument(ctx context.Context, userID string, fn func(doc *UserDocument) error) error

	// ListHistory returns superseded plans, newest first.
	ListHistory(ctx context.Context, userID string, limit int) ([]*DietPlan, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for tests and local development.
type InMemoryRepository struct {
	mu      sync.Mutex
	docs    map[string]*UserDocument
	history map[string][]*DietPlan
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		docs:    make(map[string]*UserDocument),
		history: make(map[string][]*DietPlan),
	}
}

// CreateDocument creates an empty document for the user if none exists.
func (r *InMemoryRepository) CreateDocument(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[userID]; !ok {
		r.docs[userID] = &UserDocument{UserID: userID}
	}
	return nil
}

// DeleteDocument removes the user's document and plan history.
func (r *InMemoryRepository) DeleteDocument(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.docs, userID)
	delete(r.history, userID)
	return nil
}

// GetDocument returns a copy of the user's document.
func (r *InMemoryRepository) GetDocument(_ context.Context, userID string) (*UserDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyDocument(doc), nil
}

// UpdateDocument applies fn to a copy and swaps it in when fn succeeds.
func (r *InMemoryRepository) UpdateDocument(ctx context.Context, userID string, fn func(doc *UserDocument) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	stored, ok := r.docs[userID]
	if !ok {
		return ErrUserNotFound
	}

	doc := copyDocument(stored)
	if err := fn(doc); err != nil {
		return err
	}

	for _, p := range doc.Archived {
		r.history[userID] = append(r.history[userID], copyPlan(p))
	}
	doc.Archived = nil
	r.docs[userID] = doc
	return nil
}

// ListHistory returns superseded plans, newest first.
func (r *InMemoryRepository) ListHistory(_ context.Context, userID string, limit int) ([]*DietPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[userID]; !ok {
		return nil, ErrUserNotFound
	}

	plans := r.history[userID]
	out := make([]*DietPlan, 0, len(plans))
	for i := len(plans) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, copyPlan(plans[i]))
	}
	return out, nil
}

func copyDocument(d *UserDocument) *UserDocument {
	return &UserDocument{
		UserID:      d.UserID,
		CurrentPlan: copyPlan(d.CurrentPlan),
		DailyStats:  d.DailyStats.Clone(),
	}
}

func copyPlan(p *DietPlan) *DietPlan {
	if p == nil {
		return nil
	}
	out := *p
	out.DailyStats = p.DailyStats.Clone()
	out.Meals = make([]Meal, len(p.Meals))
	for i, m := range p.Meals {
		out.Meals[i] = m
		out.Meals[i].Foods = copyFoods(m.Foods)
	}
	return &out
}

func copyFoods(foods []Food) []Food {
	if foods == nil {
		return nil
	}
	out := slices.Clone(foods)
	for i := range out {
		out[i].Alternatives = copyFoods(foods[i].Alternatives)
	}
	return out
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
