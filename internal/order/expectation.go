package order

import "go_certbot/internal/model"

// ExpectAction names the free-text input a conversation is waiting for
type ExpectAction string

const (
	// ExpectDomain waits for the root domain of OrderID
	ExpectDomain ExpectAction = "await_domain"
	// ExpectStatusDomain waits for a domain whose status should be shown
	ExpectStatusDomain ExpectAction = "await_status_domain"
)

// Expectation is the per-conversation input marker. It is handed back to the
// front end and never stored on the user.
type Expectation struct {
	Action  ExpectAction `json:"action"`
	OrderID int          `json:"orderId,omitempty"`
}

// Result is the outcome of a successful machine operation
type Result struct {
	Success bool
	Message string
	Order   *model.Order
	Expect  *Expectation
}
