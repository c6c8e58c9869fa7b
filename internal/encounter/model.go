// Package encounter provides models and repositories for paranormal
// encounter stories and their enhancement lifecycle.
package encounter

import (
	"errors"
	"time"
)

// Common errors for encounter operations.
var (
	ErrNotFound          = errors.New("encounter not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status is the lifecycle state of an encounter.
// Transitions are monotonic: pending -> enhancing -> enhanced -> approved,
// pending -> rejected, or enhanced -> rejected. The server enforces them;
// clients never mutate status directly.
type Status string

// Encounter lifecycle states.
const (
	StatusPending   Status = "pending"
	StatusEnhancing Status = "enhancing"
	StatusEnhanced  Status = "enhanced"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusEnhancing, StatusEnhanced, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition from s to next is allowed.
// Enhancement failures release the claim by moving enhancing back to
// pending; every other transition only moves forward.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusEnhancing || next == StatusRejected
	case StatusEnhancing:
		return next == StatusEnhanced || next == StatusPending
	case StatusEnhanced:
		return next == StatusApproved || next == StatusRejected
	default:
		// approved and rejected are terminal
		return false
	}
}

// Location is a WGS84 coordinate with an optional human-readable address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Encounter is a user-submitted paranormal story tied to a location.
// The enhanced fields are populated by the background enhancement worker.
type Encounter struct {
	ID            string   `json:"id"`
	AuthorName    string   `json:"authorName"`
	Location      Location `json:"location"`
	OriginalStory string   `json:"originalStory"`
	EnhancedStory string   `json:"enhancedStory,omitempty"`

	EncounterTime time.Time `json:"encounterTime"`

	ImageURLs       []string `json:"imageUrls,omitempty"`
	IllustrationURL string   `json:"illustrationUrl,omitempty"`
	NarrationURL    string   `json:"narrationUrl,omitempty"`

	AverageRating     float64 `json:"averageRating"`
	RatingCount       int     `json:"ratingCount"`
	VerificationCount int     `json:"verificationCount"`

	Status Status `json:"status"`

	// EnhanceAttempts counts failed enhancement runs; the worker skips
	// encounters that have exhausted their budget.
	EnhanceAttempts int `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MaxEnhanceAttempts is the number of enhancement failures tolerated
// before an encounter is left pending and skipped.
const MaxEnhanceAttempts = 3

// Enhanceable reports whether the worker should pick this encounter up.
func (e *Encounter) Enhanceable() bool {
	return e.Status == StatusPending && e.EnhanceAttempts < MaxEnhanceAttempts
}
