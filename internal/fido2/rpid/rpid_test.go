package rpid

import "testing"

func TestIsValid(t *testing.T) {
	cases := []struct {
		name   string
		rpID   string
		origin string
		want   bool
	}{
		{"exact host match", "example.com", "https://example.com", true},
		{"registrable suffix of subdomain", "example.com", "https://login.example.com", true},
		{"case insensitive", "Example.COM", "https://example.com", true},
		{"localhost is valid for itself", "localhost", "https://localhost:8443", true},
		{"empty rpID rejected", "", "https://example.com", false},
		{"http origin rejected", "example.com", "http://example.com", false},
		{"unrelated host rejected", "example.com", "https://evil.com", false},
		{"rpID longer than host rejected", "sub.example.com", "https://example.com", false},
		{"rpID must be a suffix, not a substring", "ample.com", "https://example.com", false},
		{"public suffix rpID rejected", "com", "https://example.com", false},
		{"IP literal host rejected", "1.2.3.4", "https://1.2.3.4", false},
		{"malformed origin rejected", "example.com", "not a url", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := IsValid(c.rpID, c.origin)
			if got != c.want {
				t.Errorf("IsValid(%q, %q) = %v, want %v", c.rpID, c.origin, got, c.want)
			}
		})
	}
}
