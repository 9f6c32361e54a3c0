package acme

import "context"

// Kind is the closed set of outcomes the CA tool adapter reports
type Kind int

const (
	// KindFailure is any error: non-zero exit, timeout, unparseable output
	KindFailure Kind = iota
	// KindChallengeIssued carries the DNS-01 host and expected TXT values
	KindChallengeIssued
	// KindSuccess means the operation completed
	KindSuccess
	// KindAlreadyExists means the CA side already holds a certificate for the domains
	KindAlreadyExists
	// KindPropagationPending means the CA could not yet see the expected TXT record
	KindPropagationPending
)

func (k Kind) String() string {
	switch k {
	case KindChallengeIssued:
		return "challenge_issued"
	case KindSuccess:
		return "success"
	case KindAlreadyExists:
		return "already_exists"
	case KindPropagationPending:
		return "propagation_pending"
	default:
		return "failure"
	}
}

// Outcome is the classified result of one CA tool invocation
type Outcome struct {
	Kind    Kind
	Host    string   // set for KindChallengeIssued
	Values  []string // set for KindChallengeIssued
	Message string   // short human readable summary, set for KindFailure
	Output  string   // combined stdout/stderr, diagnostic only
}

// OK reports whether the outcome is a plain success
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// Tool is the narrow boundary to the external CA client.
// Implementations own every text marker; callers only see Kind.
type Tool interface {
	// Generate starts a DNS-01 order and returns the TXT challenge
	Generate(ctx context.Context, domains []string) Outcome
	// Renew asks the CA to validate the challenge and issue the certificate
	Renew(ctx context.Context, domains []string) Outcome
	// Install exports the issued certificate to files
	Install(ctx context.Context, domain string, files Files) Outcome
	// Remove drops the CA-side record for the domains
	Remove(ctx context.Context, domains []string) Outcome
}
