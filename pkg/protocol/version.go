package protocol

import (
	"strconv"
	"strings"
)

// CompareVersions compares two dotted-numeric version strings.
// It returns -1 if a < b, 0 if a == b, and 1 if a > b.
//
// Components are compared numerically from left to right. Versions of
// unequal length are padded with zero components, so "1" == "1.0".
// Non-numeric components parse as 0; callers that need strict validation
// must pre-validate their version strings.
func CompareVersions(a, b string) int {
	ac := strings.Split(a, ".")
	bc := strings.Split(b, ".")

	n := len(ac)
	if len(bc) > n {
		n = len(bc)
	}

	for i := 0; i < n; i++ {
		av := versionComponent(ac, i)
		bv := versionComponent(bc, i)
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

// versionComponent returns the numeric value of component i, treating
// missing or malformed components as 0.
func versionComponent(components []string, i int) int {
	if i >= len(components) {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(components[i]))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// IsVersionInRange reports whether version lies within [min, max],
// bounds inclusive, under CompareVersions ordering.
func IsVersionInRange(version, min, max string) bool {
	return CompareVersions(version, min) >= 0 && CompareVersions(version, max) <= 0
}

// NegotiateVersion computes the best mutually acceptable protocol version
// from two declared ranges. The overlap of [clientMin, clientMax] and
// [serverMin, serverMax] is computed and the newest version in the overlap
// is returned. The second return value is false when the ranges are
// disjoint; NegotiateVersion never panics on malformed input.
func NegotiateVersion(clientMin, clientMax, serverMin, serverMax string) (string, bool) {
	overlapMin := clientMin
	if CompareVersions(serverMin, overlapMin) > 0 {
		overlapMin = serverMin
	}

	overlapMax := clientMax
	if CompareVersions(serverMax, overlapMax) < 0 {
		overlapMax = serverMax
	}

	if CompareVersions(overlapMin, overlapMax) > 0 {
		return "", false
	}
	return overlapMax, true
}
