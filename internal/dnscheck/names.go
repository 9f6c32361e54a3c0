package dnscheck

import "strings"

// RelativeName converts a challenge FQDN to the host record a DNS panel expects
//
// Rules:
// - zone = "example.com"
// - name = "_acme-challenge.example.com"   -> "_acme-challenge"
// - name = "_acme-challenge.example.com."  -> "_acme-challenge" (trailing dot removed)
// - name = "example.com"                   -> "@"
// - name = "_acme-challenge"               -> "_acme-challenge"
func RelativeName(name, zone string) string {
	zone = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(zone)), ".")
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")

	if name == "" || name == zone {
		return "@"
	}

	if strings.HasSuffix(name, "."+zone) {
		if rel := strings.TrimSuffix(name, "."+zone); rel != "" {
			return rel
		}
		return "@"
	}

	return name
}

// ChallengeHost returns the DNS-01 host for domain
func ChallengeHost(domain string) string {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	domain = strings.TrimPrefix(domain, "*.")
	return "_acme-challenge." + domain
}
