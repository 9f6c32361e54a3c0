// Package present renders orders into chat-ready text and button layouts.
// Nothing here touches storage.
package present

import (
	"fmt"
	"html"
	"strings"

	"go_certbot/internal/acme"
	"go_certbot/internal/dnscheck"
	"go_certbot/internal/model"
	"go_certbot/internal/order"
)

// Button is one inline action button
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Keyboard is a list of button rows
type Keyboard [][]Button

// Link is a downloadable artifact
type Link struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// CertTypeLabel returns the display name of a certificate type
func CertTypeLabel(t model.CertType) string {
	if t == model.CertTypeWildcard {
		return "wildcard certificate"
	}
	return "root domain certificate"
}

// DomainLabel returns the domain or a placeholder
func DomainLabel(o *model.Order) string {
	if o.Domain == "" {
		return "(no domain submitted)"
	}
	return o.Domain
}

// NextAction describes what the user can legally do next
func NextAction(o *model.Order) string {
	return order.NextAction(o)
}

// StatusMessage renders an order status card
func StatusMessage(o *model.Order, withTips bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📌 Status: <b>%s</b>\nDomain: <b>%s</b>", o.Status, html.EscapeString(DomainLabel(o)))
	if o.CertType != "" {
		fmt.Fprintf(&b, "\nType: %s", CertTypeLabel(o.CertType))
	}

	switch o.Status {
	case model.OrderStatusDNSWait:
		b.WriteString("\n\n🧾 <b>Add the TXT record</b>, then tap \"Verify\".\n")
		b.WriteString(ChallengeTable(o))
	case model.OrderStatusFailed:
		if o.LastError != "" {
			fmt.Fprintf(&b, "\n\n❌ Last error: %s", html.EscapeString(o.LastError))
		}
		b.WriteString("\n" + NextAction(o))
	case model.OrderStatusCreated:
		if o.Domain == "" && withTips {
			b.WriteString("\n\n📝 Submit the root domain first, e.g. <b>example.com</b>.")
		} else if o.LastError != "" {
			fmt.Fprintf(&b, "\n\n⚠️ Last error: %s", html.EscapeString(o.LastError))
		}
	}

	if withTips && o.Status != model.OrderStatusFailed {
		if next := NextAction(o); next != "" {
			b.WriteString("\n\n" + next)
		}
	}
	return b.String()
}

// ChallengeTable renders the TXT records the user must add
func ChallengeTable(o *model.Order) string {
	values := o.ChallengeValues()
	if o.TxtHost == "" || len(values) == 0 {
		return "⚠️ No TXT record is available yet; tap \"Generate DNS record\"."
	}

	record := dnscheck.RelativeName(o.TxtHost, o.Domain)
	var b strings.Builder
	b.WriteString("<pre>")
	b.WriteString("Domain | Host | Type | Value\n")
	for _, v := range values {
		fmt.Fprintf(&b, "%s | %s | TXT | %s\n", o.Domain, record, v)
	}
	b.WriteString("</pre>")
	return b.String()
}

// OrderList renders a user's orders, newest first
func OrderList(orders []model.Order) string {
	if len(orders) == 0 {
		return "📂 No certificate orders yet."
	}
	lines := []string{"📂 <b>Certificate orders</b>"}
	for i := range orders {
		o := &orders[i]
		lines = append(lines, fmt.Sprintf("• #%d %s | <b>%s</b>", o.ID, html.EscapeString(DomainLabel(o)), o.Status))
	}
	return strings.Join(lines, "\n")
}

// DownloadLinks lists the exported artifacts of an issued order. Paths and
// URLs are derived only from the export dir, base URL and domain.
func DownloadLinks(o *model.Order, exportDir, baseURL string) []Link {
	if o.Status != model.OrderStatusIssued || o.Domain == "" {
		return nil
	}
	files := acme.FilesFor(exportDir, o.Domain)
	return []Link{
		{Name: acme.FileFullchain, Path: files.Fullchain, URL: acme.DownloadURL(baseURL, o.Domain, acme.FileFullchain)},
		{Name: acme.FileCert, Path: files.Cert, URL: acme.DownloadURL(baseURL, o.Domain, acme.FileCert)},
		{Name: acme.FileKey, Path: files.Key, URL: acme.DownloadURL(baseURL, o.Domain, acme.FileKey)},
		{Name: acme.FileCA, Path: files.CA, URL: acme.DownloadURL(baseURL, o.Domain, acme.FileCA)},
	}
}

// DownloadMessage renders the export location and file list
func DownloadMessage(o *model.Order, exportDir, baseURL string) string {
	files := acme.FilesFor(exportDir, o.Domain)
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Certificate exported to:\n%s\n\nFiles:", files.Dir)
	for _, l := range DownloadLinks(o, exportDir, baseURL) {
		if l.URL != "" {
			fmt.Fprintf(&b, "\n%s: %s", l.Name, l.URL)
		} else {
			fmt.Fprintf(&b, "\n%s", l.Name)
		}
	}
	return b.String()
}

// TypePrompt asks the user to choose a certificate type
func TypePrompt() string {
	return "You are requesting an SSL certificate. Choose the type 👇\n" +
		"✅ <b>Root domain certificate</b>: covers example.com only.\n" +
		"✅ <b>Wildcard certificate</b>: covers *.example.com and example.com.\n" +
		"📌 Always enter the root domain, not www.example.com or *.example.com."
}

// DomainPrompt asks the user for the root domain
func DomainPrompt() string {
	return "📝 Enter the root domain, e.g. <b>example.com</b>.\n" +
		"Do not include http:// or https://\n" +
		"Do not enter *.example.com or www.example.com"
}

// Help renders the command reference
func Help(admin bool) string {
	lines := []string{
		"📖 <b>Help</b>",
		"",
		"/new request a certificate (choose the type first)",
		"/domain example.com quick root domain certificate",
		"/verify example.com verify DNS and issue",
		"/status example.com show order status",
		"/orders list your orders",
	}
	if admin {
		lines = append(lines,
			"/diag diagnostics (owner only)",
			"/quota add <user id> <count> grant requests",
		)
	}
	lines = append(lines,
		"",
		"📌 <b>Statuses</b>",
		"created: choose a type and submit the root domain.",
		"dns_wait: add the TXT record, then tap verify.",
		"dns_verified: DNS verified, issuance runs in the background.",
		"issued: certificate issued, download the files.",
		"failed: cancel the order and request a new one.",
	)
	return strings.Join(lines, "\n")
}
