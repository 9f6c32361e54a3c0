// Package dnscheck verifies that DNS-01 TXT records are visible on public
// recursive resolvers.
package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// DefaultNameservers are queried when none are configured
var DefaultNameservers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// Resolver decides whether every expected TXT value is currently observed at host
type Resolver interface {
	Verify(ctx context.Context, host string, values []string) (bool, error)
}

// TXTResolver queries recursive nameservers directly
type TXTResolver struct {
	nameservers []string
	client      *dns.Client
	logger      *logrus.Entry
}

// NewTXTResolver creates a resolver over the given nameservers (host:port)
func NewTXTResolver(nameservers []string, timeout time.Duration, logger *logrus.Entry) *TXTResolver {
	if len(nameservers) == 0 {
		nameservers = DefaultNameservers
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TXTResolver{
		nameservers: nameservers,
		client:      &dns.Client{Net: "udp", Timeout: timeout},
		logger:      logger.WithField("component", "dns-check"),
	}
}

// Verify returns true as soon as one nameserver answers with all values.
// An error is returned only when no nameserver could be queried.
func (r *TXTResolver) Verify(ctx context.Context, host string, values []string) (bool, error) {
	if host == "" || len(values) == 0 {
		return false, errors.New("no TXT challenge to verify")
	}

	var errs []error
	for _, ns := range r.nameservers {
		observed, err := r.lookup(ctx, host, ns)
		if err != nil {
			r.logger.WithFields(logrus.Fields{"host": host, "nameserver": ns}).Warnf("TXT lookup failed: %v", err)
			errs = append(errs, fmt.Errorf("%s: %w", ns, err))
			continue
		}
		if containsAll(observed, values) {
			return true, nil
		}
	}

	if len(errs) == len(r.nameservers) {
		return false, errors.Join(errs...)
	}
	return false, nil
}

func (r *TXTResolver) lookup(ctx context.Context, host, nameserver string) (map[string]struct{}, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeTXT)
	msg.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, msg, nameserver)
	if err != nil {
		return nil, err
	}
	if in.Rcode != dns.RcodeSuccess && in.Rcode != dns.RcodeNameError {
		return nil, fmt.Errorf("rcode %s", dns.RcodeToString[in.Rcode])
	}

	observed := make(map[string]struct{})
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			observed[strings.Join(txt.Txt, "")] = struct{}{}
		}
	}
	return observed, nil
}

func containsAll(observed map[string]struct{}, values []string) bool {
	for _, v := range values {
		if _, ok := observed[v]; !ok {
			return false
		}
	}
	return true
}
