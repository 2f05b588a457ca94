package user

import (
	"context"
	"errors"
	"sync"
)

// Repository errors.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// Repository defines the interface for user data persistence.
type Repository interface {
	// Get retrieves a user by ID.
	Get(ctx context.Context, id string) (*User, error)

	// Create creates a new user together with its empty diet document.
	Create(ctx context.Context, user *User) error

	// Update replaces an existing user's locale and profile.
	Update(ctx context.Context, user *User) error

	// Delete deletes a user and all associated data.
	Delete(ctx context.Context, id string) error
}

// DocumentCreator creates the per-user diet document.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, userID string) error
}

type documentDeleter interface {
	DeleteDocument(ctx context.Context, userID string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for tests and local development.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
	docs  DocumentCreator
}

// NewInMemoryRepository creates a new in-memory user repository. When docs
// is non-nil, Create also creates the user's diet document.
func NewInMemoryRepository(docs DocumentCreator) *InMemoryRepository {
	return &InMemoryRepository{
		users: make(map[string]*User),
		docs:  docs,
	}
}

// Get retrieves a user by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	// Return a deep copy to prevent mutation
	return copyUser(user), nil
}

// Create creates a new user.
func (r *InMemoryRepository) Create(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return ErrUserExists
	}
	if r.docs != nil {
		if err := r.docs.CreateDocument(ctx, user.ID); err != nil {
			return err
		}
	}

	r.users[user.ID] = copyUser(user)
	return nil
}

// Update updates an existing user.
func (r *InMemoryRepository) Update(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return ErrUserNotFound
	}

	r.users[user.ID] = copyUser(user)
	return nil
}

// Delete deletes a user, and the diet document when the document store
// supports deletion.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.docs.(documentDeleter); ok {
		if err := d.DeleteDocument(ctx, id); err != nil {
			return err
		}
	}
	delete(r.users, id)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
