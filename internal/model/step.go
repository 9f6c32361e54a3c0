package model

// Step is a pending unit of background work attached to an order.
// Each step is stored as a boolean column and is only legal while the
// order is in its required status.
type Step string

const (
	StepDNSGeneration Step = "dns_generation"
	StepIssuance      Step = "issuance"
	StepReinstall     Step = "reinstall"
)

// AllSteps lists steps in processing order
var AllSteps = []Step{StepDNSGeneration, StepIssuance, StepReinstall}

var stepColumns = map[Step]string{
	StepDNSGeneration: "needs_dns_generation",
	StepIssuance:      "needs_issuance",
	StepReinstall:     "needs_reinstall",
}

var stepStatuses = map[Step]OrderStatus{
	StepDNSGeneration: OrderStatusCreated,
	StepIssuance:      OrderStatusDNSVerified,
	StepReinstall:     OrderStatusIssued,
}

// Column returns the persisted flag column
func (s Step) Column() string {
	return stepColumns[s]
}

// RequiredStatus returns the status the order must be in for the flag to be set
func (s Step) RequiredStatus() OrderStatus {
	return stepStatuses[s]
}

// IsSet reports whether the flag is set on o
func (s Step) IsSet(o *Order) bool {
	switch s {
	case StepDNSGeneration:
		return o.NeedsDNSGeneration
	case StepIssuance:
		return o.NeedsIssuance
	case StepReinstall:
		return o.NeedsReinstall
	}
	return false
}

// Ready reports whether o is in the required status with the flag set
func (s Step) Ready(o *Order) bool {
	return o.Status == s.RequiredStatus() && s.IsSet(o)
}

// ClearAllSteps returns column updates that reset every work flag
func ClearAllSteps() map[string]interface{} {
	updates := make(map[string]interface{}, len(stepColumns))
	for _, col := range stepColumns {
		updates[col] = false
	}
	return updates
}
