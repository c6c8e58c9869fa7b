package geo

import "testing"

func TestEncodeGeohash(t *testing.T) {
	tests := []struct {
		name      string
		lat       float64
		lon       float64
		precision int
		want      string
	}{
		{name: "san francisco", lat: 37.7749, lon: -122.4194, precision: 6, want: "9q8yyk"},
		{name: "san francisco short", lat: 37.7749, lon: -122.4194, precision: 4, want: "9q8y"},
		{name: "zero precision falls back to default", lat: 37.7749, lon: -122.4194, precision: 0, want: "9q8yyk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeGeohash(tt.lat, tt.lon, tt.precision); got != tt.want {
				t.Errorf("EncodeGeohash(%v, %v, %d) = %q, want %q", tt.lat, tt.lon, tt.precision, got, tt.want)
			}
		})
	}
}

func TestEncodeGeohashStability(t *testing.T) {
	// Nearby points must share a coarse prefix so list cache keys group them.
	a := EncodeGeohash(37.7749, -122.4194, 6)
	b := EncodeGeohash(37.7750, -122.4195, 6)
	if a[:4] != b[:4] {
		t.Errorf("nearby points diverge too early: %q vs %q", a, b)
	}

	// A longer encoding of the same point extends the shorter one.
	long := EncodeGeohash(37.7749, -122.4194, 9)
	if long[:6] != a {
		t.Errorf("precision 9 prefix %q does not extend precision 6 %q", long[:6], a)
	}
}

func TestRoundGeohash(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		precision int
		want      string
	}{
		{name: "truncate to 6", input: "9q8yyk8yuv", precision: 6, want: "9q8yyk"},
		{name: "truncate to 4", input: "9q8yyk8yuv", precision: 4, want: "9q8y"},
		{name: "shorter than precision", input: "9q8", precision: 6, want: "9q8"},
		{name: "uppercase normalized", input: "9Q8YYK", precision: 6, want: "9q8yyk"},
		{name: "empty input", input: "", precision: 6, want: ""},
		{name: "invalid character a", input: "9q8ayk", precision: 6, want: ""},
		{name: "invalid precision", input: "9q8yyk", precision: 0, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoundGeohash(tt.input, tt.precision); got != tt.want {
				t.Errorf("RoundGeohash(%q, %d) = %q, want %q", tt.input, tt.precision, got, tt.want)
			}
		})
	}
}
