// Package bot turns chat commands, button presses and free text into order
// operations and renders the replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go_certbot/internal/auditlog"
	"go_certbot/internal/auth"
	"go_certbot/internal/domainutil"
	"go_certbot/internal/model"
	"go_certbot/internal/order"
	"go_certbot/internal/present"
	"go_certbot/internal/query"
	"go_certbot/internal/quota"

	"github.com/sirupsen/logrus"
)

const ordersPageSize = 10

// Deps are the services the dispatcher drives
type Deps struct {
	Users    *auth.Service
	Machine  *order.Machine
	Query    *query.Service
	Ledger   *quota.Ledger
	Audit    *auditlog.Log
	Sessions SessionStore
}

// Dispatcher routes updates
type Dispatcher struct {
	Deps
	logger *logrus.Entry
}

// NewDispatcher creates a dispatcher
func NewDispatcher(deps Deps, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{Deps: deps, logger: logger.WithField("component", "bot")}
}

// Handle processes one update. Errors are returned only when the user
// cannot be resolved; everything else becomes a reply.
func (d *Dispatcher) Handle(ctx context.Context, u Update) (*Reply, error) {
	user, err := d.Users.EnsureUser(ctx, u.UserID, u.Username)
	if err != nil {
		return nil, err
	}

	var r *Reply
	text := strings.TrimSpace(u.Text)
	switch {
	case u.Callback != "":
		r = d.handleButton(ctx, u.ChatID, user, u.Callback)
	case strings.HasPrefix(text, "/"):
		r = d.handleCommand(ctx, u.ChatID, user, text)
	default:
		r = d.handleText(ctx, u.ChatID, user, text)
	}

	if r.Expect != nil {
		if err := d.Sessions.Set(ctx, u.ChatID, *r.Expect); err != nil {
			d.logger.WithField("chatId", u.ChatID).Errorf("Failed to save session: %v", err)
		}
	} else if r.resetSession {
		if err := d.Sessions.Clear(ctx, u.ChatID); err != nil {
			d.logger.WithField("chatId", u.ChatID).Errorf("Failed to clear session: %v", err)
		}
	}
	return r, nil
}

func (d *Dispatcher) handleCommand(ctx context.Context, chatID int64, user *model.User, text string) *Reply {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	args := fields[1:]

	switch cmd {
	case "/start", "/help":
		r := &Reply{resetSession: true}
		return r.say(present.Help(auth.IsAdmin(user)), present.MainMenu())
	case "/new":
		return d.newOrder(ctx, user)
	case "/domain":
		if len(args) == 0 {
			return (&Reply{}).say("Usage: /domain example.com", nil)
		}
		return d.fromResult(d.Machine.QuickOrder(ctx, user, args[0]))
	case "/verify":
		if len(args) == 0 {
			return (&Reply{}).say("Usage: /verify example.com", nil)
		}
		o, r := d.lookupDomain(ctx, user, args[0])
		if r != nil {
			return r
		}
		return d.fromResult(d.Machine.Verify(ctx, user, o.ID))
	case "/status":
		if len(args) == 0 {
			return d.askStatusDomain()
		}
		o, r := d.lookupDomain(ctx, user, args[0])
		if r != nil {
			return r
		}
		return d.card(o, "")
	case "/orders":
		return d.listOrders(ctx, user)
	case "/diag":
		if !auth.IsOwner(user) {
			return (&Reply{}).say("This command is only available to the owner.", nil)
		}
		return d.diag(ctx, chatID, user)
	case "/quota":
		if !auth.IsAdmin(user) {
			return (&Reply{}).say("This command is only available to administrators.", nil)
		}
		return d.grantQuota(ctx, user, args)
	}
	return (&Reply{}).say("Unknown command. Send /help for the list of commands.", nil)
}

// handleText treats free text as the answer to the pending expectation, or
// as a bare domain when nothing is pending
func (d *Dispatcher) handleText(ctx context.Context, chatID int64, user *model.User, text string) *Reply {
	if text == "" {
		return (&Reply{}).say(present.Help(auth.IsAdmin(user)), present.MainMenu())
	}

	exp, err := d.Sessions.Get(ctx, chatID)
	if err != nil {
		d.logger.WithField("chatId", chatID).Errorf("Failed to read session: %v", err)
	}

	if exp != nil {
		switch exp.Action {
		case order.ExpectDomain:
			res, err := d.Machine.SubmitDomain(ctx, user, exp.OrderID, text)
			if errors.Is(err, order.ErrValidation) {
				// keep waiting for a valid domain
				r := d.fromResult(res, err)
				r.Expect = exp
				return r
			}
			r := d.fromResult(res, err)
			r.resetSession = true
			return r
		case order.ExpectStatusDomain:
			o, r := d.lookupDomain(ctx, user, text)
			if r == nil {
				r = d.card(o, "")
			}
			r.resetSession = true
			return r
		}
	}

	if _, err := domainutil.Normalize(text); err != nil {
		return (&Reply{}).say("Send /new to request a certificate or /help for the list of commands.", present.MainMenu())
	}

	blank, err := d.Query.PendingBlank(ctx, user)
	if err != nil {
		return d.failure(err)
	}
	if blank != nil {
		r := d.fromResult(d.Machine.SubmitDomain(ctx, user, blank.ID, text))
		r.resetSession = true
		return r
	}

	o, r := d.lookupDomain(ctx, user, text)
	if r != nil {
		return r
	}
	return d.card(o, "")
}

func (d *Dispatcher) newOrder(ctx context.Context, user *model.User) *Reply {
	res, err := d.Machine.StartOrder(ctx, user)
	if err != nil {
		return d.fromResult(nil, err)
	}
	r := &Reply{Order: res.Order, resetSession: true}
	if res.Expect != nil {
		r.Expect = res.Expect
		return r.say(present.DomainPrompt(), nil)
	}
	return r.say(present.TypePrompt(), present.TypeKeyboard(res.Order.ID))
}

func (d *Dispatcher) askStatusDomain() *Reply {
	r := &Reply{Expect: &order.Expectation{Action: order.ExpectStatusDomain}}
	return r.say("🔎 Enter the domain whose status you want to see, e.g. <b>example.com</b>.", nil)
}

func (d *Dispatcher) lookupDomain(ctx context.Context, user *model.User, input string) (*model.Order, *Reply) {
	o, err := d.Query.StatusByDomain(ctx, user, input)
	switch {
	case err == nil:
		return o, nil
	case errors.Is(err, order.ErrNotFound):
		return nil, (&Reply{}).say(fmt.Sprintf(
			"No order found for %s. Send /domain %s to request a root certificate or /new to choose the type.",
			strings.TrimSpace(input), strings.TrimSpace(input)), present.MainMenu())
	case errors.Is(err, order.ErrValidation):
		return nil, (&Reply{}).say("That does not look like a domain: "+err.Error(), nil)
	}
	return nil, d.failure(err)
}

func (d *Dispatcher) listOrders(ctx context.Context, user *model.User) *Reply {
	orders, err := d.Query.List(ctx, user, ordersPageSize)
	if err != nil {
		return d.failure(err)
	}
	var kb present.Keyboard
	for i := range orders {
		o := &orders[i]
		kb = append(kb, []present.Button{{
			Text: fmt.Sprintf("#%d %s", o.ID, present.DomainLabel(o)),
			Data: fmt.Sprintf("status:%d", o.ID),
		}})
	}
	kb = append(kb, []present.Button{{Text: "🆕 Request certificate", Data: "menu:new"}})
	return (&Reply{}).say(present.OrderList(orders), kb)
}

func (d *Dispatcher) diag(ctx context.Context, chatID int64, user *model.User) *Reply {
	diag, err := d.Query.Diag(ctx, user)
	if err != nil {
		return d.failure(err)
	}
	exp, err := d.Sessions.Get(ctx, chatID)
	if err != nil {
		d.logger.WithField("chatId", chatID).Errorf("Failed to read session: %v", err)
	}

	lines := []string{"🛠 <b>Diagnostics</b>"}
	switch {
	case err != nil:
		lines = append(lines, "Expectation: unavailable")
	case exp != nil:
		lines = append(lines, fmt.Sprintf("Expectation: %s (order #%d)", exp.Action, exp.OrderID))
	default:
		lines = append(lines, "Expectation: none")
	}
	if diag.Latest != nil {
		lines = append(lines, fmt.Sprintf("Latest order: #%d %s %s", diag.Latest.ID, present.DomainLabel(diag.Latest), diag.Latest.Status))
		if diag.Latest.LastError != "" {
			lines = append(lines, "Last error: "+diag.Latest.LastError)
		}
	}
	lines = append(lines, "", "Recent actions:")
	for _, entry := range diag.Logs {
		detail := entry.Detail
		if len(detail) > 80 {
			detail = detail[:80] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s %s",
			entry.CreatedAt.Format("01-02 15:04:05"), entry.Action, entry.Domain, strings.ReplaceAll(detail, "\n", " ")))
	}
	return (&Reply{}).say(strings.Join(lines, "\n"), nil)
}

func (d *Dispatcher) grantQuota(ctx context.Context, admin *model.User, args []string) *Reply {
	usage := (&Reply{}).say("Usage: /quota add <user id> <count>", nil)
	if len(args) != 3 || args[0] != "add" {
		return usage
	}
	externalID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return usage
	}
	amount, err := strconv.Atoi(args[2])
	if err != nil || amount <= 0 {
		return usage
	}

	target, err := d.Users.FindByExternalID(ctx, externalID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return (&Reply{}).say(fmt.Sprintf("User %d has not talked to the bot yet.", externalID), nil)
	}
	if err != nil {
		return d.failure(err)
	}
	if err := d.Ledger.Grant(ctx, target, amount); err != nil {
		return d.failure(err)
	}

	d.Audit.Record(ctx, admin.ID, 0, model.ActionQuotaGrant, "", fmt.Sprintf("user=%d amount=%d", externalID, amount))
	return (&Reply{}).say(fmt.Sprintf("✅ Added %d requests to user %d. New balance: %d.", amount, externalID, target.Quota), nil)
}

// fromResult renders a machine outcome
func (d *Dispatcher) fromResult(res *order.Result, err error) *Reply {
	if err != nil {
		var orderErr *order.Error
		if !errors.As(err, &orderErr) {
			return d.failure(err)
		}
		if orderErr.Order != nil {
			return d.card(orderErr.Order, "⚠️ "+orderErr.Error())
		}
		return (&Reply{}).say("⚠️ "+orderErr.Error(), present.MainMenu())
	}

	r := d.card(res.Order, res.Message)
	r.Expect = res.Expect
	if res.Expect != nil && res.Expect.Action == order.ExpectDomain {
		r.say(present.DomainPrompt(), nil)
	}
	return r
}

// card renders the order status with the buttons legal for its status
func (d *Dispatcher) card(o *model.Order, message string) *Reply {
	text := present.StatusMessage(o, true)
	if message != "" {
		text = message + "\n\n" + text
	}
	r := &Reply{Order: o}
	return r.say(text, present.OrderKeyboard(o))
}

func (d *Dispatcher) failure(err error) *Reply {
	d.logger.Errorf("Request failed: %v", err)
	return (&Reply{}).say("❌ Something went wrong, please try again later.", present.MainMenu())
}
