package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mkadenge/shulelink/internal/models"
)

// ChildStore is the in-memory household directory.
type ChildStore struct {
	mu       sync.RWMutex
	children map[uuid.UUID]models.Child
}

func NewChildStore() *ChildStore {
	return &ChildStore{children: make(map[uuid.UUID]models.Child)}
}

// Add registers a child; test and dev seeding helper.
func (s *ChildStore) Add(child models.Child) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children[child.ID] = child
}

func (s *ChildStore) ListByParent(ctx context.Context, parentID uuid.UUID) ([]models.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	children := make([]models.Child, 0)
	for _, c := range s.children {
		if c.ParentID == parentID {
			children = append(children, c)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children, nil
}

func (s *ChildStore) GetByID(ctx context.Context, childID uuid.UUID) (*models.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.children[childID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// UserStore is the in-memory login directory.
type UserStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]models.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[uuid.UUID]models.User)}
}

func (s *UserStore) Add(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	out := u
	return &out, nil
}
