package encounter

import (
	"testing"

	"github.com/ghostatlas/ghostatlas/internal/geo"
)

func TestBoundingBoxContainsCenter(t *testing.T) {
	minLat, maxLat, minLon, maxLon := boundingBox(37.7749, -122.4194, 5000)
	if minLat >= 37.7749 || maxLat <= 37.7749 {
		t.Errorf("latitude span [%f, %f] excludes center", minLat, maxLat)
	}
	if minLon >= -122.4194 || maxLon <= -122.4194 {
		t.Errorf("longitude span [%f, %f] excludes center", minLon, maxLon)
	}
}

func TestBoundingBoxWrapsAntimeridian(t *testing.T) {
	// 50 km around a point just west of the antimeridian reaches across it.
	_, _, minLon, maxLon := boundingBox(0, 179.9, 50000)
	if minLon <= maxLon {
		t.Fatalf("box [%f, %f] did not wrap", minLon, maxLon)
	}
	if minLon > 179.9 {
		t.Errorf("minLon = %f, want <= 179.9", minLon)
	}
	if maxLon > -179 {
		t.Errorf("maxLon = %f, want wrapped just east of -180", maxLon)
	}

	// And from the east side.
	_, _, minLon, maxLon = boundingBox(0, -179.9, 50000)
	if minLon <= maxLon {
		t.Fatalf("box [%f, %f] did not wrap", minLon, maxLon)
	}
	if minLon < 179 {
		t.Errorf("minLon = %f, want wrapped just west of 180", minLon)
	}
}

func TestBoundingBoxPoleDegeneratesToFullLongitudeRange(t *testing.T) {
	_, _, minLon, maxLon := boundingBox(89.9999, 0, 50000)
	if minLon != geo.MinLongitude || maxLon != geo.MaxLongitude {
		t.Errorf("longitude span [%f, %f], want full range", minLon, maxLon)
	}
}
