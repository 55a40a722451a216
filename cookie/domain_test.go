package cookie

import "testing"

func TestBoundDomain(t *testing.T) {
	cases := map[string]string{
		"Example.COM":   ".example.com",
		".example.com":  ".example.com",
		" example.com ": ".example.com",
		"":              "",
	}
	for in, want := range cases {
		if got := BoundDomain(in); got != want {
			t.Fatalf("BoundDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		host string
		want bool
	}{
		{"sub.example.com", true},
		{"SUB.Example.com", true},
		{"example.com", true},
		{"example.com:8443", true},
		{"a.b.example.com", true},
		{"other.org", false},
		{"example.org", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := Matches(tc.host, ".example.com"); got != tc.want {
			t.Fatalf("Matches(%q) = %v, want %v", tc.host, got, tc.want)
		}
	}
}

func TestMatchesEmptyDomain(t *testing.T) {
	if Matches("example.com", "") {
		t.Fatal("expected no match for empty domain")
	}
}
