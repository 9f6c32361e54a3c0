package dnscheck

import "testing"

func TestRelativeName(t *testing.T) {
	tests := []struct {
		name     string
		zone     string
		input    string
		expected string
	}{
		{
			name:     "challenge host",
			zone:     "example.com",
			input:    "_acme-challenge.example.com",
			expected: "_acme-challenge",
		},
		{
			name:     "trailing dot removed",
			zone:     "example.com",
			input:    "_acme-challenge.example.com.",
			expected: "_acme-challenge",
		},
		{
			name:     "zone itself is @",
			zone:     "example.com",
			input:    "example.com",
			expected: "@",
		},
		{
			name:     "empty name is @",
			zone:     "example.com",
			input:    "",
			expected: "@",
		},
		{
			name:     "already relative",
			zone:     "example.com",
			input:    "_acme-challenge",
			expected: "_acme-challenge",
		},
		{
			name:     "case and whitespace normalized",
			zone:     " Example.COM ",
			input:    " _ACME-challenge.example.com ",
			expected: "_acme-challenge",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RelativeName(tt.input, tt.zone)
			if result != tt.expected {
				t.Errorf("RelativeName(%q, %q) = %q; want %q", tt.input, tt.zone, result, tt.expected)
			}
		})
	}
}

func TestChallengeHost(t *testing.T) {
	tests := map[string]string{
		"example.com":    "_acme-challenge.example.com",
		"*.example.com":  "_acme-challenge.example.com",
		"Example.com.":   "_acme-challenge.example.com",
		" example.org  ": "_acme-challenge.example.org",
	}
	for in, want := range tests {
		if got := ChallengeHost(in); got != want {
			t.Errorf("ChallengeHost(%q) = %q; want %q", in, got, want)
		}
	}
}
