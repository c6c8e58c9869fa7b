// Package geo provides geolocation utilities: great-circle distance,
// verification eligibility checks, and geohash encoding for coarse
// location display and cache keys.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for Haversine distance.
const EarthRadiusMeters = 6371000.0

// DefaultVerificationRadiusMeters is the maximum distance from an
// encounter's recorded location at which a visit counts as a verification.
const DefaultVerificationRadiusMeters = 50.0

// Coordinate bounds in WGS84 degrees.
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// MaxSearchRadiusMeters caps encounter search radius at 500 km.
const MaxSearchRadiusMeters = 500000.0

// Distance computes the great-circle distance in meters between two
// latitude/longitude pairs using the Haversine formula.
// The result is symmetric: Distance(a, b) == Distance(b, a), and the
// distance between a point and itself is 0.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// EligibilityResult reports whether a visitor is close enough to an
// encounter location to record a verification, and the measured distance.
type EligibilityResult struct {
	IsEligible     bool    `json:"isEligible"`
	DistanceMeters float64 `json:"distanceMeters"`
}

// IsEligible classifies a visitor/target point pair as eligible for
// verification when the visitor is within maxMeters of the target.
// Pure function of the two points and the threshold.
func IsEligible(userLat, userLon, targetLat, targetLon, maxMeters float64) EligibilityResult {
	if maxMeters <= 0 {
		maxMeters = DefaultVerificationRadiusMeters
	}
	d := Distance(userLat, userLon, targetLat, targetLon)
	return EligibilityResult{
		IsEligible:     d <= maxMeters,
		DistanceMeters: d,
	}
}

// ClampLatitude clamps a latitude into [-90, 90] degrees.
// Out-of-range search parameters are clamped rather than rejected.
func ClampLatitude(lat float64) float64 {
	return clamp(lat, MinLatitude, MaxLatitude)
}

// ClampLongitude clamps a longitude into [-180, 180] degrees.
func ClampLongitude(lon float64) float64 {
	return clamp(lon, MinLongitude, MaxLongitude)
}

// ClampRadius clamps a search radius into (0, MaxSearchRadiusMeters].
// Non-positive values fall back to the provided default.
func ClampRadius(radius, defaultRadius float64) float64 {
	if radius <= 0 {
		return defaultRadius
	}
	if radius > MaxSearchRadiusMeters {
		return MaxSearchRadiusMeters
	}
	return radius
}

// ValidCoordinates reports whether a latitude/longitude pair is inside
// WGS84 bounds. NaN is never valid.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= MinLatitude && lat <= MaxLatitude &&
		lon >= MinLongitude && lon <= MaxLongitude
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
