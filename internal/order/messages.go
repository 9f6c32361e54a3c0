package order

import (
	"fmt"

	"go_certbot/internal/model"
)

const maxErrorLength = 500

// NextAction describes what the user can legally do with o next
func NextAction(o *model.Order) string {
	if o == nil {
		return "Start a new request with /new."
	}
	switch o.Status {
	case model.OrderStatusCreated:
		if o.Domain == "" {
			return "Choose a certificate type and submit the root domain."
		}
		return "The DNS record is being generated. Refresh shortly or tap \"Generate DNS record\"."
	case model.OrderStatusDNSWait:
		return "Add the TXT record, then tap \"Verify\"."
	case model.OrderStatusDNSVerified:
		return "DNS is verified; issuance runs in the background. Refresh the status later."
	case model.OrderStatusIssued:
		return "The certificate is issued. Use the buttons below to download it."
	case model.OrderStatusFailed:
		return "This order has failed. Cancel it and request a new certificate."
	}
	return ""
}

func notActionable(o *model.Order, action string) string {
	return fmt.Sprintf("Cannot %s: order #%d is %s. %s", action, o.ID, o.Status, NextAction(o))
}

func truncateError(msg string) string {
	if len(msg) > maxErrorLength {
		return msg[:maxErrorLength]
	}
	return msg
}
