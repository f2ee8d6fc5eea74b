package projects

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for project storage. Every read and
// write is scoped to the owning user.
type Repository interface {
	Create(ctx context.Context, p *Project) (*Project, error)
	GetByID(ctx context.Context, userID, id string) (*Project, error)
	ListByUser(ctx context.Context, userID string) ([]*Project, error)
	Update(ctx context.Context, userID, id string, upd UpdateProjectRequest) (*Project, error)
	Delete(ctx context.Context, userID, id string) error
}

// InMemoryRepository is an in-memory implementation of Repository
type InMemoryRepository struct {
	mu       sync.RWMutex
	projects map[string]*Project
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		projects: make(map[string]*Project),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) Create(_ context.Context, p *Project) (*Project, error) {
	if p.UserID == "" {
		return nil, ErrMissingUser
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	created := *p
	created.ID = uuid.New().String()
	created.CreatedAt = r.now()
	created.UpdatedAt = created.CreatedAt
	r.projects[created.ID] = &created

	out := created
	return &out, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, userID, id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok || p.UserID != userID {
		return nil, ErrProjectNotFound
	}
	out := *p
	return &out, nil
}

// ListByUser returns the user's projects, newest first.
func (r *InMemoryRepository) ListByUser(_ context.Context, userID string) ([]*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Project
	for _, p := range r.projects {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *Project) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (r *InMemoryRepository) Update(_ context.Context, userID, id string, upd UpdateProjectRequest) (*Project, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok || p.UserID != userID {
		return nil, ErrProjectNotFound
	}
	upd.apply(p)
	p.UpdatedAt = r.now()
	out := *p
	return &out, nil
}

func (r *InMemoryRepository) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok || p.UserID != userID {
		return ErrProjectNotFound
	}
	delete(r.projects, id)
	return nil
}
