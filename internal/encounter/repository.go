package encounter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ghostatlas/ghostatlas/internal/geo"
)

// NearbyQuery describes a geo-filtered encounter list request.
// Out-of-range values are expected to be clamped by the caller.
type NearbyQuery struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	Limit        int
	Cursor       *Cursor
}

// Repository defines data operations for encounters.
type Repository interface {
	// Create stores a new encounter.
	Create(ctx context.Context, e *Encounter) error

	// GetByID retrieves an encounter by ID. Returns ErrNotFound if missing.
	GetByID(ctx context.Context, id string) (*Encounter, error)

	// ListNearby returns approved encounters within the query radius,
	// ordered by created_at DESC with id ASC tie-breaking.
	// Returns the page, a cursor for the next page (nil at the end), and error.
	ListNearby(ctx context.Context, q NearbyQuery) ([]*Encounter, *Cursor, error)

	// ListPending returns encounters awaiting moderation (pending,
	// enhancing, or enhanced) with cursor pagination.
	ListPending(ctx context.Context, limit int, cursor *Cursor) ([]*Encounter, *Cursor, error)

	// UpdateStatus moves an encounter to the next lifecycle state.
	// Returns ErrInvalidTransition if the move is not allowed.
	UpdateStatus(ctx context.Context, id string, next Status) error

	// ClaimNextPending atomically claims the oldest enhanceable pending
	// encounter, moving it to enhancing. Returns (nil, nil) when none.
	ClaimNextPending(ctx context.Context) (*Encounter, error)

	// CompleteEnhancement stores the enhanced story and illustration URL
	// and moves the encounter from enhancing to enhanced.
	CompleteEnhancement(ctx context.Context, id, enhancedStory, illustrationURL string) error

	// ReleaseEnhancement moves an encounter from enhancing back to
	// pending and increments its attempt counter.
	ReleaseEnhancement(ctx context.Context, id string) error

	// SetRatingAggregate updates the cached rating mean and count.
	SetRatingAggregate(ctx context.Context, id string, average float64, count int) error

	// IncrementVerificationCount bumps the verification counter.
	IncrementVerificationCount(ctx context.Context, id string) error
}

// InMemoryRepository is an in-memory Repository implementation.
// Thread-safe via RWMutex. Used for tests and development.
type InMemoryRepository struct {
	mu         sync.RWMutex
	encounters map[string]*Encounter
}

// NewInMemoryRepository creates a new in-memory encounter repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		encounters: make(map[string]*Encounter),
	}
}

// Create stores a new encounter.
func (r *InMemoryRepository) Create(_ context.Context, e *Encounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *e
	r.encounters[cp.ID] = &cp
	return nil
}

// GetByID retrieves an encounter by ID.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Encounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.encounters[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// ListNearby returns approved encounters within the query radius.
func (r *InMemoryRepository) ListNearby(_ context.Context, q NearbyQuery) ([]*Encounter, *Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Encounter
	for _, e := range r.encounters {
		if e.Status != StatusApproved {
			continue
		}
		d := geo.Distance(q.Latitude, q.Longitude, e.Location.Latitude, e.Location.Longitude)
		if d > q.RadiusMeters {
			continue
		}
		matched = append(matched, e)
	}

	return paginate(matched, q.Limit, q.Cursor)
}

// ListPending returns encounters awaiting moderation.
func (r *InMemoryRepository) ListPending(_ context.Context, limit int, cursor *Cursor) ([]*Encounter, *Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Encounter
	for _, e := range r.encounters {
		switch e.Status {
		case StatusPending, StatusEnhancing, StatusEnhanced:
			matched = append(matched, e)
		}
	}

	return paginate(matched, limit, cursor)
}

// paginate sorts by (created_at DESC, id ASC), applies the cursor, and
// cuts one page. Caller must hold at least a read lock.
func paginate(items []*Encounter, limit int, cursor *Cursor) ([]*Encounter, *Cursor, error) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})

	start := 0
	if cursor != nil {
		for i, e := range items {
			if e.CreatedAt.Before(cursor.CreatedAt) ||
				(e.CreatedAt.Equal(cursor.CreatedAt) && e.ID > cursor.ID) {
				start = i
				break
			}
			start = len(items)
		}
	}

	if limit <= 0 {
		limit = 20
	}

	end := start + limit
	if end > len(items) {
		end = len(items)
	}

	page := make([]*Encounter, 0, end-start)
	for _, e := range items[start:end] {
		cp := *e
		page = append(page, &cp)
	}

	var next *Cursor
	if end < len(items) && len(page) > 0 {
		last := page[len(page)-1]
		next = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	return page, next, nil
}

// UpdateStatus moves an encounter to the next lifecycle state.
func (r *InMemoryRepository) UpdateStatus(_ context.Context, id string, next Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.encounters[id]
	if !ok {
		return ErrNotFound
	}
	if !e.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	e.Status = next
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// ClaimNextPending claims the oldest enhanceable pending encounter.
func (r *InMemoryRepository) ClaimNextPending(_ context.Context) (*Encounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *Encounter
	for _, e := range r.encounters {
		if !e.Enhanceable() {
			continue
		}
		if oldest == nil || e.CreatedAt.Before(oldest.CreatedAt) {
			oldest = e
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.Status = StatusEnhancing
	oldest.UpdatedAt = time.Now().UTC()
	cp := *oldest
	return &cp, nil
}

// CompleteEnhancement stores enhancement output and advances the lifecycle.
func (r *InMemoryRepository) CompleteEnhancement(_ context.Context, id, enhancedStory, illustrationURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.encounters[id]
	if !ok {
		return ErrNotFound
	}
	if !e.Status.CanTransitionTo(StatusEnhanced) {
		return ErrInvalidTransition
	}
	e.EnhancedStory = enhancedStory
	e.IllustrationURL = illustrationURL
	e.Status = StatusEnhanced
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// ReleaseEnhancement returns a claimed encounter to the pending pool.
func (r *InMemoryRepository) ReleaseEnhancement(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.encounters[id]
	if !ok {
		return ErrNotFound
	}
	if !e.Status.CanTransitionTo(StatusPending) {
		return ErrInvalidTransition
	}
	e.Status = StatusPending
	e.EnhanceAttempts++
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// SetRatingAggregate updates the cached rating mean and count.
func (r *InMemoryRepository) SetRatingAggregate(_ context.Context, id string, average float64, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.encounters[id]
	if !ok {
		return ErrNotFound
	}
	e.AverageRating = average
	e.RatingCount = count
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// IncrementVerificationCount bumps the verification counter.
func (r *InMemoryRepository) IncrementVerificationCount(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.encounters[id]
	if !ok {
		return ErrNotFound
	}
	e.VerificationCount++
	e.UpdatedAt = time.Now().UTC()
	return nil
}
