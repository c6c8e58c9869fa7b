// Package verification provides proximity-gated encounter verifications:
// a visitor physically near an encounter's recorded location can confirm
// it, with a spookiness score and a time-of-day match flag.
package verification

import (
	"errors"
	"time"
)

// Common errors for verification operations.
var (
	// ErrAlreadyVerified is returned when a device verifies the same
	// encounter twice. Surfaced to clients as HTTP 409 CONFLICT.
	ErrAlreadyVerified = errors.New("device already verified this encounter")

	// ErrInvalidScore is returned for spookiness scores outside 1..5.
	ErrInvalidScore = errors.New("spookiness score must be between 1 and 5")
)

// Spookiness score bounds.
const (
	MinScore = 1
	MaxScore = 5
)

// MaxNotesLength bounds the free-text note.
const MaxNotesLength = 500

// Verification records a confirmed visit to an encounter location.
type Verification struct {
	ID              string    `json:"id"`
	EncounterID     string    `json:"encounterId"`
	DeviceID        string    `json:"-"`
	SpookinessScore int       `json:"spookinessScore"`
	Notes           string    `json:"notes,omitempty"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	DistanceMeters  float64   `json:"distanceMeters"`
	TimeMatched     bool      `json:"isTimeMatched"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ValidateScore checks that a spookiness score is within 1..5.
func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return ErrInvalidScore
	}
	return nil
}

// IsTimeMatched reports whether a visit happened around the same time of
// day as the original encounter: within one hour of its hour-of-day,
// wrapping around midnight. A 23:30 visit matches a 00:10 encounter.
func IsTimeMatched(encounterTime, visitTime time.Time) bool {
	eh := encounterTime.Hour()
	vh := visitTime.Hour()

	diff := eh - vh
	if diff < 0 {
		diff = -diff
	}
	if diff > 12 {
		diff = 24 - diff
	}
	return diff <= 1
}
