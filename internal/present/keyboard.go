package present

import (
	"fmt"

	"go_certbot/internal/model"
)

// MainMenu is shown when no order is in focus
func MainMenu() Keyboard {
	return Keyboard{
		{{Text: "🆕 Request certificate", Data: "menu:new"}, {Text: "📂 My orders", Data: "menu:orders"}},
		{{Text: "🔎 Status", Data: "menu:status"}, {Text: "📖 Help", Data: "menu:help"}},
	}
}

// TypeKeyboard offers the certificate types for an order
func TypeKeyboard(orderID int) Keyboard {
	return Keyboard{
		{{Text: "Root domain (example.com)", Data: fmt.Sprintf("type:root:%d", orderID)}},
		{{Text: "Wildcard (*.example.com + example.com)", Data: fmt.Sprintf("type:wildcard:%d", orderID)}},
	}
}

// OrderKeyboard returns the actions legal for the order's current status
func OrderKeyboard(o *model.Order) Keyboard {
	id := o.ID
	back := []Button{{Text: "Back to orders", Data: "menu:orders"}}
	cancel := Button{Text: "❌ Cancel order", Data: fmt.Sprintf("cancel:%d", id)}
	refresh := Button{Text: "🔄 Refresh", Data: fmt.Sprintf("status:%d", id)}

	switch o.Status {
	case model.OrderStatusCreated:
		if o.Domain == "" {
			rows := Keyboard{}
			if o.CertType == "" {
				rows = append(rows, []Button{{Text: "Choose certificate type", Data: fmt.Sprintf("created:type:%d", id)}})
			} else {
				rows = append(rows,
					[]Button{{Text: "Submit root domain", Data: fmt.Sprintf("created:domain:%d", id)}},
					[]Button{{Text: "Change certificate type", Data: fmt.Sprintf("created:type:%d", id)}},
				)
			}
			return append(rows, []Button{cancel}, back)
		}
		return Keyboard{
			{{Text: "🔁 Generate DNS record", Data: fmt.Sprintf("created:retry:%d", id)}, refresh},
			{cancel},
			back,
		}
	case model.OrderStatusDNSWait:
		return Keyboard{
			{{Text: "✅ Record added, verify", Data: fmt.Sprintf("verify:%d", id)}},
			{{Text: "🔁 Regenerate DNS record", Data: fmt.Sprintf("created:retry:%d", id)}, cancel},
			back,
		}
	case model.OrderStatusDNSVerified:
		return Keyboard{{refresh}, {cancel}, back}
	case model.OrderStatusIssued:
		return Keyboard{
			{
				{Text: "fullchain.cer", Data: fmt.Sprintf("file:fullchain:%d", id)},
				{Text: "cert.cer", Data: fmt.Sprintf("file:cert:%d", id)},
				{Text: "key.key", Data: fmt.Sprintf("file:key:%d", id)},
				{Text: "ca.cer", Data: fmt.Sprintf("file:ca:%d", id)},
			},
			{{Text: "Certificate info", Data: fmt.Sprintf("info:%d", id)}, {Text: "File paths", Data: fmt.Sprintf("download:%d", id)}},
			{{Text: "Re-export", Data: fmt.Sprintf("reinstall:%d", id)}},
			back,
		}
	case model.OrderStatusFailed:
		return Keyboard{
			{{Text: "🆕 Request again", Data: "menu:new"}},
			{cancel},
			back,
		}
	}
	return MainMenu()
}
