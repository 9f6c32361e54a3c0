package domainutil

import (
	"errors"
	"testing"
)

func TestValidateRootDomain(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain apex", input: "example.com", want: "example.com"},
		{name: "upper case and spaces", input: "  Example.COM ", want: "example.com"},
		{name: "trailing dot", input: "example.com.", want: "example.com"},
		{name: "scheme stripped", input: "https://example.com/", want: "example.com"},
		{name: "multi-label suffix", input: "example.co.uk", want: "example.co.uk"},
		{name: "subdomain rejected", input: "www.example.com", wantErr: ErrNotApex},
		{name: "wildcard rejected", input: "*.example.com", wantErr: ErrWildcard},
		{name: "empty rejected", input: "   ", wantErr: ErrEmpty},
		{name: "no dot", input: "localhost"},
		{name: "ip rejected", input: "192.168.1.1"},
		{name: "invalid char", input: "exa_mple.com"},
		{name: "leading hyphen label", input: "-example.com"},
		{name: "empty label", input: "example..com"},
		{name: "public suffix only", input: "co.uk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateRootDomain(tt.input)
			if tt.want != "" {
				if err != nil {
					t.Fatalf("ValidateRootDomain(%q) unexpected error: %v", tt.input, err)
				}
				if got != tt.want {
					t.Errorf("ValidateRootDomain(%q) = %q; want %q", tt.input, got, tt.want)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateRootDomain(%q) expected error, got %q", tt.input, got)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRootDomain(%q) error = %v; want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestEffectiveApex(t *testing.T) {
	tests := map[string]string{
		"www.example.com":   "example.com",
		"a.b.example.co.uk": "example.co.uk",
		"*.example.com":     "example.com",
		"example.com":       "example.com",
	}
	for in, want := range tests {
		got, err := EffectiveApex(in)
		if err != nil {
			t.Errorf("EffectiveApex(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("EffectiveApex(%q) = %q; want %q", in, got, want)
		}
	}
}
