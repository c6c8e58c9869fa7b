package geo

import "strings"

// DefaultGeohashPrecision is the geohash precision used for coarse
// location display and list cache keys. Six characters is roughly
// ±0.61 km, enough to group nearby searches without pinpointing venues.
const DefaultGeohashPrecision = 6

// validGeohashChars is a lookup map for the geohash base32 alphabet,
// which excludes 'a', 'i', 'l', and 'o'.
var validGeohashChars = map[rune]bool{
	'0': true, '1': true, '2': true, '3': true, '4': true,
	'5': true, '6': true, '7': true, '8': true, '9': true,
	'b': true, 'c': true, 'd': true, 'e': true, 'f': true,
	'g': true, 'h': true, 'j': true, 'k': true, 'm': true,
	'n': true, 'p': true, 'q': true, 'r': true, 's': true,
	't': true, 'u': true, 'v': true, 'w': true, 'x': true,
	'y': true, 'z': true,
}

const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// EncodeGeohash encodes latitude and longitude into a geohash string with
// the given precision using the standard interleaved base32 algorithm.
func EncodeGeohash(lat, lon float64, precision int) string {
	if precision < 1 {
		precision = DefaultGeohashPrecision
	}

	latRange := [2]float64{MinLatitude, MaxLatitude}
	lonRange := [2]float64{MinLongitude, MaxLongitude}

	var geohash strings.Builder
	geohash.Grow(precision)

	bits := 0
	var ch uint

	even := true
	for geohash.Len() < precision {
		if even {
			mid := (lonRange[0] + lonRange[1]) / 2
			if lon > mid {
				ch |= (1 << (4 - bits))
				lonRange[0] = mid
			} else {
				lonRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat > mid {
				ch |= (1 << (4 - bits))
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}

		even = !even
		bits++

		if bits == 5 {
			geohash.WriteByte(base32[ch])
			bits = 0
			ch = 0
		}
	}

	return geohash.String()
}

// RoundGeohash truncates a geohash to the given precision.
// Returns the empty string for empty input, invalid characters, or a
// precision below 1. Input shorter than the precision is returned
// normalized to lowercase.
func RoundGeohash(input string, precision int) string {
	if input == "" || precision < 1 {
		return ""
	}

	lower := strings.ToLower(input)
	for _, c := range lower {
		if !validGeohashChars[c] {
			return ""
		}
	}

	if len(lower) <= precision {
		return lower
	}
	return lower[:precision]
}
