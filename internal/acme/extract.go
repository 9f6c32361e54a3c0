package acme

import (
	"regexp"
	"strings"

	"github.com/go-acme/lego/v4/challenge/dns01"
)

var (
	challengeHostRe  = regexp.MustCompile(`(?i)\bDomain:\s*'?([A-Za-z0-9_.*-]+\.[A-Za-z0-9_.-]+)'?`)
	challengeValueRe = regexp.MustCompile(`(?i)\bTXT value:\s*'?([A-Za-z0-9_-]+)'?`)
)

// Challenge is a DNS-01 TXT challenge parsed from tool output
type Challenge struct {
	Host   string
	Values []string
}

// ExtractChallenge scans acme.sh output for "Domain: '...'" / "TXT value: '...'"
// pairs. The first host wins; values for that host are returned in order of
// appearance without duplicates. ok is false when no pair was found.
func ExtractChallenge(output string) (Challenge, bool) {
	var (
		ch          Challenge
		pendingHost string
		seen        = make(map[string]struct{})
	)

	for _, line := range strings.Split(output, "\n") {
		if m := challengeValueRe.FindStringSubmatch(line); m != nil {
			if pendingHost == "" {
				continue
			}
			if ch.Host == "" {
				ch.Host = pendingHost
			}
			if pendingHost == ch.Host {
				if _, dup := seen[m[1]]; !dup {
					seen[m[1]] = struct{}{}
					ch.Values = append(ch.Values, m[1])
				}
			}
			pendingHost = ""
			continue
		}
		if m := challengeHostRe.FindStringSubmatch(line); m != nil {
			pendingHost = strings.ToLower(dns01.UnFqdn(m[1]))
		}
	}

	if ch.Host == "" || len(ch.Values) == 0 {
		return Challenge{}, false
	}
	return ch, true
}
