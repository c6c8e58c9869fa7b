package encounter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"

	"github.com/lib/pq"

	"github.com/ghostatlas/ghostatlas/internal/geo"
)

// encounterColumns is the canonical column list for scanning.
const encounterColumns = `id, author_name, latitude, longitude, address,
	original_story, enhanced_story, encounter_time, image_urls,
	illustration_url, narration_url, average_rating, rating_count,
	verification_count, status, enhance_attempts, created_at, updated_at`

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a Postgres-backed encounter repository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// Create stores a new encounter.
func (r *PostgresRepository) Create(ctx context.Context, e *Encounter) error {
	query := `
		INSERT INTO encounters (
			id, author_name, latitude, longitude, address,
			original_story, enhanced_story, encounter_time, image_urls,
			illustration_url, narration_url, average_rating, rating_count,
			verification_count, status, enhance_attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.AuthorName, e.Location.Latitude, e.Location.Longitude, nullString(e.Location.Address),
		e.OriginalStory, nullString(e.EnhancedStory), e.EncounterTime, pq.Array(e.ImageURLs),
		nullString(e.IllustrationURL), nullString(e.NarrationURL), e.AverageRating, e.RatingCount,
		e.VerificationCount, string(e.Status), e.EnhanceAttempts, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert encounter: %w", err)
	}
	return nil
}

// GetByID retrieves an encounter by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Encounter, error) {
	query := `SELECT ` + encounterColumns + ` FROM encounters WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	e, err := scanEncounter(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get encounter: %w", err)
	}
	return e, nil
}

// ListNearby returns approved encounters within the query radius.
// A bounding box prefilters rows in SQL; the exact Haversine distance is
// applied in Go before pagination. Batches are scanned from the last seen
// row until the page fills or the box is exhausted, so a sparse page never
// ends pagination while matches remain beyond the scanned window.
func (r *PostgresRepository) ListNearby(ctx context.Context, q NearbyQuery) ([]*Encounter, *Cursor, error) {
	minLat, maxLat, minLon, maxLon := boundingBox(q.Latitude, q.Longitude, q.RadiusMeters)

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	batchSize := limit*3 + 1

	var page []*Encounter
	scanCursor := q.Cursor
	for {
		batch, err := r.nearbyBatch(ctx, minLat, maxLat, minLon, maxLon, scanCursor, batchSize)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range batch {
			scanCursor = &Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
			d := geo.Distance(q.Latitude, q.Longitude, e.Location.Latitude, e.Location.Longitude)
			if d > q.RadiusMeters {
				continue
			}
			if len(page) == limit {
				last := page[len(page)-1]
				return page, &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
			}
			page = append(page, e)
		}
		if len(batch) < batchSize {
			return page, nil, nil
		}
	}
}

// nearbyBatch fetches one window of approved rows inside the bounding box,
// ordered by (created_at DESC, id ASC) after the cursor. A box that crosses
// the antimeridian (minLon > maxLon) is expressed as two longitude ranges.
func (r *PostgresRepository) nearbyBatch(ctx context.Context, minLat, maxLat, minLon, maxLon float64, cursor *Cursor, batchSize int) ([]*Encounter, error) {
	args := []interface{}{string(StatusApproved), minLat, maxLat, minLon, maxLon}
	query := `
		SELECT ` + encounterColumns + `
		FROM encounters
		WHERE status = $1
		  AND latitude BETWEEN $2 AND $3
	`
	if minLon <= maxLon {
		query += ` AND longitude BETWEEN $4 AND $5`
	} else {
		query += ` AND (longitude >= $4 OR longitude <= $5)`
	}
	if cursor != nil {
		query += ` AND (created_at < $6 OR (created_at = $6 AND id > $7))`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id ASC LIMIT %d`, batchSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list encounters: %w", err)
	}
	defer rows.Close()

	var batch []*Encounter
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan encounter: %w", err)
		}
		batch = append(batch, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate encounters: %w", err)
	}
	return batch, nil
}

// ListPending returns encounters awaiting moderation.
func (r *PostgresRepository) ListPending(ctx context.Context, limit int, cursor *Cursor) ([]*Encounter, *Cursor, error) {
	if limit <= 0 {
		limit = 20
	}

	args := []interface{}{string(StatusPending), string(StatusEnhancing), string(StatusEnhanced)}
	query := `
		SELECT ` + encounterColumns + `
		FROM encounters
		WHERE status IN ($1, $2, $3)
	`
	if cursor != nil {
		// Matches the (created_at DESC, id ASC) ordering: on a timestamp
		// tie the next page resumes at the lexically larger id.
		query += ` AND (created_at < $4 OR (created_at = $4 AND id > $5))`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id ASC LIMIT %d`, limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pending encounters: %w", err)
	}
	defer rows.Close()

	var page []*Encounter
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan encounter: %w", err)
		}
		page = append(page, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate pending encounters: %w", err)
	}

	var next *Cursor
	if len(page) > limit {
		page = page[:limit]
		last := page[len(page)-1]
		next = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return page, next, nil
}

// UpdateStatus moves an encounter to the next lifecycle state with a
// guarded update so concurrent writers cannot skip states.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, next Status) error {
	froms := allowedFrom(next)
	if len(froms) == 0 {
		return ErrInvalidTransition
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE encounters SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, string(next), pq.Array(froms))
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a missing row from a disallowed transition.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// allowedFrom lists the states from which next may be entered.
func allowedFrom(next Status) []string {
	var froms []string
	for _, s := range []Status{StatusPending, StatusEnhancing, StatusEnhanced, StatusApproved, StatusRejected} {
		if s.CanTransitionTo(next) {
			froms = append(froms, string(s))
		}
	}
	return froms
}

// ClaimNextPending atomically claims the oldest enhanceable encounter
// using SKIP LOCKED so concurrent workers never double-claim.
func (r *PostgresRepository) ClaimNextPending(ctx context.Context) (*Encounter, error) {
	query := `
		UPDATE encounters SET status = $1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM encounters
			WHERE status = $2 AND enhance_attempts < $3
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + encounterColumns
	row := r.db.QueryRowContext(ctx, query, string(StatusEnhancing), string(StatusPending), MaxEnhanceAttempts)
	e, err := scanEncounter(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim encounter: %w", err)
	}
	return e, nil
}

// CompleteEnhancement stores enhancement output and advances the lifecycle.
func (r *PostgresRepository) CompleteEnhancement(ctx context.Context, id, enhancedStory, illustrationURL string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE encounters
		SET enhanced_story = $2, illustration_url = $3, status = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`, id, enhancedStory, nullString(illustrationURL), string(StatusEnhanced), string(StatusEnhancing))
	if err != nil {
		return fmt.Errorf("failed to complete enhancement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// ReleaseEnhancement returns a claimed encounter to the pending pool.
func (r *PostgresRepository) ReleaseEnhancement(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE encounters
		SET status = $2, enhance_attempts = enhance_attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, string(StatusPending), string(StatusEnhancing))
	if err != nil {
		return fmt.Errorf("failed to release enhancement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// SetRatingAggregate updates the cached rating mean and count.
func (r *PostgresRepository) SetRatingAggregate(ctx context.Context, id string, average float64, count int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE encounters SET average_rating = $2, rating_count = $3, updated_at = NOW()
		WHERE id = $1
	`, id, average, count)
	if err != nil {
		return fmt.Errorf("failed to set rating aggregate: %w", err)
	}
	return checkFound(res)
}

// IncrementVerificationCount bumps the verification counter.
func (r *PostgresRepository) IncrementVerificationCount(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE encounters SET verification_count = verification_count + 1, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to increment verification count: %w", err)
	}
	return checkFound(res)
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanEncounter.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEncounter(s scanner) (*Encounter, error) {
	var e Encounter
	var address, enhancedStory, illustrationURL, narrationURL sql.NullString
	var status string
	var imageURLs pq.StringArray

	err := s.Scan(
		&e.ID, &e.AuthorName, &e.Location.Latitude, &e.Location.Longitude, &address,
		&e.OriginalStory, &enhancedStory, &e.EncounterTime, &imageURLs,
		&illustrationURL, &narrationURL, &e.AverageRating, &e.RatingCount,
		&e.VerificationCount, &status, &e.EnhanceAttempts, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Location.Address = address.String
	e.EnhancedStory = enhancedStory.String
	e.IllustrationURL = illustrationURL.String
	e.NarrationURL = narrationURL.String
	e.Status = Status(status)
	e.ImageURLs = []string(imageURLs)
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// boundingBox computes a latitude/longitude box that contains the circle
// of the given radius around the center. Near the poles the longitude
// span degenerates to the full range. A box crossing the antimeridian
// wraps: minLon > maxLon, and callers must treat it as two ranges.
func boundingBox(lat, lon, radiusMeters float64) (minLat, maxLat, minLon, maxLon float64) {
	latDelta := radiusMeters / 111195.0
	minLat = geo.ClampLatitude(lat - latDelta)
	maxLat = geo.ClampLatitude(lat + latDelta)

	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 1e-6 {
		return minLat, maxLat, geo.MinLongitude, geo.MaxLongitude
	}
	lonDelta := radiusMeters / (111195.0 * cosLat)
	if lonDelta >= 180 {
		return minLat, maxLat, geo.MinLongitude, geo.MaxLongitude
	}
	minLon = lon - lonDelta
	if minLon < geo.MinLongitude {
		minLon += 360
	}
	maxLon = lon + lonDelta
	if maxLon > geo.MaxLongitude {
		maxLon -= 360
	}
	return minLat, maxLat, minLon, maxLon
}
