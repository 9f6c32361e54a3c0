// Package retry decides how CA tool outcomes move an order's retry counter
// and when an order becomes terminally failed.
package retry

import "time"

// DefaultCeiling is used when the configured ceiling is not positive
const DefaultCeiling = 3

// Signal classifies a CA tool outcome for retry accounting
type Signal int

const (
	// SignalSuccess is any successful transition
	SignalSuccess Signal = iota
	// SignalFailure is a tool error, timeout or unparseable output
	SignalFailure
	// SignalPropagationPending means the CA has not yet seen the TXT record
	SignalPropagationPending
)

// Decision is the result of evaluating a signal
type Decision struct {
	Retries  int
	Terminal bool
	// BackToDNSWait is set for propagation lag: the order returns to dns_wait
	// without touching the counter.
	BackToDNSWait bool
}

// Policy holds the configured retry ceiling
type Policy struct {
	Ceiling int
}

// NewPolicy returns a policy, falling back to DefaultCeiling
func NewPolicy(ceiling int) Policy {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return Policy{Ceiling: ceiling}
}

// Evaluate applies the policy's ceiling to a signal
func (p Policy) Evaluate(current int, signal Signal) Decision {
	return Evaluate(current, p.Ceiling, signal)
}

// Evaluate maps (current retries, ceiling, signal) to the next retry count
// and whether the order must move to failed.
func Evaluate(current, ceiling int, signal Signal) Decision {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if current < 0 {
		current = 0
	}

	switch signal {
	case SignalSuccess:
		return Decision{Retries: 0}
	case SignalPropagationPending:
		return Decision{Retries: current, BackToDNSWait: true}
	default:
		next := current + 1
		return Decision{Retries: next, Terminal: next >= ceiling}
	}
}

// FailedCutoff returns the updated_at cutoff for expiring failed orders.
// ok is false when cleanup is disabled (ttlMinutes <= 0).
func FailedCutoff(now time.Time, ttlMinutes int) (cutoff time.Time, ok bool) {
	if ttlMinutes <= 0 {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(ttlMinutes) * time.Minute), true
}
