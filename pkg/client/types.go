package client

import "time"

// Location is a WGS84 coordinate with an optional address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Encounter is the server's encounter representation.
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

	Status string `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Verification is one physical visit record on an encounter.
type Verification struct {
	ID              string    `json:"id"`
	EncounterID     string    `json:"encounterId"`
	SpookinessScore int       `json:"spookinessScore"`
	Notes           string    `json:"notes,omitempty"`
	IsTimeMatched   bool      `json:"isTimeMatched"`
	CreatedAt       time.Time `json:"createdAt"`
}

// EncounterList is a page of encounters.
type EncounterList struct {
	Encounters []*Encounter `json:"encounters"`
	Count      int          `json:"count"`
	NextToken  string       `json:"nextToken,omitempty"`
}

// EncounterDetail is an encounter with its verifications.
type EncounterDetail struct {
	Encounter
	Verifications []*Verification `json:"verifications"`
}

// SearchParams filters a nearby listing. Zero values fall back to server
// defaults; the server clamps out-of-range values rather than rejecting.
type SearchParams struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	Limit        int
	NextToken    string
}

// ImageDeclaration describes one photo to be uploaded with a submission.
type ImageDeclaration struct {
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// SubmitRequest is the body for submitting a new encounter.
type SubmitRequest struct {
	AuthorName    string             `json:"authorName"`
	Location      Location           `json:"location"`
	OriginalStory string             `json:"originalStory"`
	EncounterTime time.Time          `json:"encounterTime"`
	Images        []ImageDeclaration `json:"images,omitempty"`
}

// UploadSlot is one presigned upload target.
type UploadSlot struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	PublicURL string `json:"publicUrl"`
	ExpiresAt string `json:"expiresAt"`
}

// SubmitResponse is the server's answer to a submission.
type SubmitResponse struct {
	EncounterID string       `json:"encounterId"`
	UploadURLs  []UploadSlot `json:"uploadUrls"`
}

// RatingAggregate is the denormalized rating state after a rate call.
type RatingAggregate struct {
	Average float64 `json:"averageRating"`
	Count   int     `json:"ratingCount"`
}

// VerifyRequest is the body for verifying an encounter on site.
type VerifyRequest struct {
	SpookinessScore int      `json:"spookinessScore"`
	Notes           string   `json:"notes,omitempty"`
	Location        Location `json:"location"`
}

// VerifyResponse is the server's answer to a verification.
type VerifyResponse struct {
	VerificationID string  `json:"verificationId"`
	IsTimeMatched  bool    `json:"isTimeMatched"`
	DistanceMeters float64 `json:"distanceMeters"`
}

// serverError mirrors the API error envelope.
type serverError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId"`
}
