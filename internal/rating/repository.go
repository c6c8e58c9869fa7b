// Package rating provides device-scoped encounter ratings with
// duplicate protection and running averages.
package rating

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Common errors for rating operations.
var (
	// ErrAlreadyRated is returned when a device rates the same encounter
	// twice. Surfaced to clients as HTTP 409 CONFLICT.
	ErrAlreadyRated = errors.New("device already rated this encounter")

	// ErrInvalidScore is returned for scores outside 1..5.
	ErrInvalidScore = errors.New("rating must be between 1 and 5")
)

// Score bounds.
const (
	MinScore = 1
	MaxScore = 5
)

// Aggregate is the rating summary for an encounter after a new rating.
type Aggregate struct {
	Average float64 `json:"averageRating"`
	Count   int     `json:"ratingCount"`
}

// Repository defines rating data operations. The device identifier is a
// client-generated pseudo-identity; uniqueness is (encounter_id, device_id).
type Repository interface {
	// Add records a rating and returns the updated aggregate.
	// Returns ErrAlreadyRated if the device has rated this encounter.
	Add(ctx context.Context, encounterID, deviceID string, score int) (*Aggregate, error)

	// HasRated reports whether the device already rated the encounter.
	HasRated(ctx context.Context, encounterID, deviceID string) (bool, error)
}

// ValidateScore checks that a score is within 1..5.
func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return ErrInvalidScore
	}
	return nil
}

// InMemoryRepository is an in-memory Repository implementation.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	ratings map[string]map[string]int // encounterID -> deviceID -> score
}

// NewInMemoryRepository creates a new in-memory rating repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		ratings: make(map[string]map[string]int),
	}
}

// Add records a rating and returns the updated aggregate.
func (r *InMemoryRepository) Add(_ context.Context, encounterID, deviceID string, score int) (*Aggregate, error) {
	if err := ValidateScore(score); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byDevice, ok := r.ratings[encounterID]
	if !ok {
		byDevice = make(map[string]int)
		r.ratings[encounterID] = byDevice
	}
	if _, exists := byDevice[deviceID]; exists {
		return nil, ErrAlreadyRated
	}
	byDevice[deviceID] = score

	var sum int
	for _, s := range byDevice {
		sum += s
	}
	return &Aggregate{
		Average: float64(sum) / float64(len(byDevice)),
		Count:   len(byDevice),
	}, nil
}

// HasRated reports whether the device already rated the encounter.
func (r *InMemoryRepository) HasRated(_ context.Context, encounterID, deviceID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byDevice, ok := r.ratings[encounterID]
	if !ok {
		return false, nil
	}
	_, exists := byDevice[deviceID]
	return exists, nil
}

// PostgresRepository implements Repository backed by PostgreSQL.
// The ratings table carries a unique (encounter_id, device_id) constraint;
// duplicate inserts are detected via the 23505 error code.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed rating repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Add records a rating and returns the updated aggregate.
func (r *PostgresRepository) Add(ctx context.Context, encounterID, deviceID string, score int) (*Aggregate, error) {
	if err := ValidateScore(score); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			_ = err
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ratings (encounter_id, device_id, score, created_at)
		VALUES ($1, $2, $3, $4)
	`, encounterID, deviceID, score, time.Now().UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrAlreadyRated
		}
		return nil, fmt.Errorf("failed to insert rating: %w", err)
	}

	var agg Aggregate
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(score), 0), COUNT(*)
		FROM ratings WHERE encounter_id = $1
	`, encounterID).Scan(&agg.Average, &agg.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rating: %w", err)
	}
	return &agg, nil
}

// HasRated reports whether the device already rated the encounter.
func (r *PostgresRepository) HasRated(ctx context.Context, encounterID, deviceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ratings WHERE encounter_id = $1 AND device_id = $2
		)
	`, encounterID, deviceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check rating: %w", err)
	}
	return exists, nil
}
