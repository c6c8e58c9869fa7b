package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lib/pq"
)

// Repository defines verification data operations. Uniqueness is
// (encounter_id, device_id), mirroring ratings.
type Repository interface {
	// Create records a verification.
	// Returns ErrAlreadyVerified if the device has verified this encounter.
	Create(ctx context.Context, v *Verification) error

	// ListByEncounter returns verifications for an encounter,
	// newest first.
	ListByEncounter(ctx context.Context, encounterID string) ([]*Verification, error)
}

// InMemoryRepository is an in-memory Repository implementation.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu            sync.RWMutex
	verifications map[string][]*Verification // encounterID -> verifications
	seen          map[string]bool            // encounterID\x00deviceID
}

// NewInMemoryRepository creates a new in-memory verification repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		verifications: make(map[string][]*Verification),
		seen:          make(map[string]bool),
	}
}

// dedupeKey joins encounter and device IDs with a null byte so neither
// component can forge the other's boundary.
func dedupeKey(encounterID, deviceID string) string {
	return encounterID + "\x00" + deviceID
}

// Create records a verification.
func (r *InMemoryRepository) Create(_ context.Context, v *Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dedupeKey(v.EncounterID, v.DeviceID)
	if r.seen[key] {
		return ErrAlreadyVerified
	}
	r.seen[key] = true

	cp := *v
	r.verifications[v.EncounterID] = append(r.verifications[v.EncounterID], &cp)
	return nil
}

// ListByEncounter returns verifications for an encounter, newest first.
func (r *InMemoryRepository) ListByEncounter(_ context.Context, encounterID string) ([]*Verification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.verifications[encounterID]
	out := make([]*Verification, 0, len(stored))
	for _, v := range stored {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed verification repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create records a verification.
func (r *PostgresRepository) Create(ctx context.Context, v *Verification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verifications (
			id, encounter_id, device_id, spookiness_score, notes,
			latitude, longitude, distance_meters, time_matched, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, v.ID, v.EncounterID, v.DeviceID, v.SpookinessScore, v.Notes,
		v.Latitude, v.Longitude, v.DistanceMeters, v.TimeMatched, v.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyVerified
		}
		return fmt.Errorf("failed to insert verification: %w", err)
	}
	return nil
}

// ListByEncounter returns verifications for an encounter, newest first.
func (r *PostgresRepository) ListByEncounter(ctx context.Context, encounterID string) ([]*Verification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, encounter_id, device_id, spookiness_score, notes,
			latitude, longitude, distance_meters, time_matched, created_at
		FROM verifications
		WHERE encounter_id = $1
		ORDER BY created_at DESC
	`, encounterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}
	defer rows.Close()

	var out []*Verification
	for rows.Next() {
		var v Verification
		if err := rows.Scan(
			&v.ID, &v.EncounterID, &v.DeviceID, &v.SpookinessScore, &v.Notes,
			&v.Latitude, &v.Longitude, &v.DistanceMeters, &v.TimeMatched, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate verifications: %w", err)
	}
	return out, nil
}
