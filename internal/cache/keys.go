package cache

import (
	"fmt"

	"github.com/ghostatlas/ghostatlas/internal/geo"
)

// Key prefixes. Everything under listPrefix is dropped on any mutation
// that can change list contents.
const (
	listPrefix   = "encounters:list:"
	detailPrefix = "encounters:detail:"
)

// nearbyKeyPrecision is the geohash precision used to bucket search
// centers. Precision 6 cells are roughly 1.2 km wide, so nearby clients
// searching from slightly different positions share an entry.
const nearbyKeyPrecision = 6

// NearbyKey builds the cache key for a nearby search. The center is
// geohash-rounded so small GPS jitter does not fragment the cache.
func NearbyKey(lat, lon, radiusMeters float64, limit int, cursorToken string) string {
	cell := geo.EncodeGeohash(lat, lon, nearbyKeyPrecision)
	return fmt.Sprintf("%s%s:%.0f:%d:%s", listPrefix, cell, radiusMeters, limit, cursorToken)
}

// DetailKey builds the cache key for a single encounter.
func DetailKey(encounterID string) string {
	return detailPrefix + encounterID
}
