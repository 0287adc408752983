package protocol

import (
	"testing"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1", "1.0", 0},
		{"1.0.0", "1", 0},
		{"0.9", "1.0", -1},
		{"1.0", "0.9", 1},
		{"1.2", "1.10", -1},
		{"2.0", "1.9.9", 1},
		{"1.0.1", "1.0", 1},
		{"", "0", 0},
	}

	for _, tt := range tests {
		if got := CompareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCompareVersionsAntisymmetry(t *testing.T) {
	versions := []string{"1.0", "1.2", "2.0", "0.9", "1.10.3", "3"}

	for _, a := range versions {
		for _, b := range versions {
			if CompareVersions(a, b) != -CompareVersions(b, a) {
				t.Errorf("antisymmetry violated for %q and %q", a, b)
			}
		}
		if CompareVersions(a, a) != 0 {
			t.Errorf("CompareVersions(%q, %q) != 0", a, a)
		}
	}
}

func TestCompareVersionsMalformedComponents(t *testing.T) {
	// Non-numeric components parse as 0 rather than failing.
	if got := CompareVersions("1.x", "1.0"); got != 0 {
		t.Errorf("CompareVersions(1.x, 1.0) = %d, want 0", got)
	}
	if got := CompareVersions("abc", "0"); got != 0 {
		t.Errorf("CompareVersions(abc, 0) = %d, want 0", got)
	}
}

func TestIsVersionInRange(t *testing.T) {
	tests := []struct {
		version, min, max string
		want              bool
	}{
		{"1.2", "1.0", "2.0", true},
		{"0.9", "1.0", "2.0", false},
		{"2.0", "1.0", "2.0", true},
		{"1.0", "1.0", "2.0", true},
		{"2.1", "1.0", "2.0", false},
	}

	for _, tt := range tests {
		if got := IsVersionInRange(tt.version, tt.min, tt.max); got != tt.want {
			t.Errorf("IsVersionInRange(%q, %q, %q) = %v, want %v",
				tt.version, tt.min, tt.max, got, tt.want)
		}
	}
}

func TestNegotiateVersion(t *testing.T) {
	tests := []struct {
		name                                       string
		clientMin, clientMax, serverMin, serverMax string
		want                                       string
		ok                                         bool
	}{
		{"identical ranges", "1.0", "1.0", "1.0", "1.0", "1.0", true},
		{"overlap picks newest", "1.0", "2.0", "1.5", "3.0", "2.0", true},
		{"server newer overlap", "1.0", "3.0", "1.5", "2.5", "2.5", true},
		{"disjoint ranges", "1.0", "1.1", "2.0", "2.1", "", false},
		{"disjoint reversed", "2.0", "2.1", "1.0", "1.1", "", false},
		{"touching bounds", "1.0", "2.0", "2.0", "3.0", "2.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NegotiateVersion(tt.clientMin, tt.clientMax, tt.serverMin, tt.serverMax)
			if ok != tt.ok {
				t.Fatalf("NegotiateVersion ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("NegotiateVersion = %q, want %q", got, tt.want)
			}
		})
	}
}
