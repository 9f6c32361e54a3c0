package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go_certbot/internal/auth"
	"go_certbot/internal/model"
	"go_certbot/internal/order"
	"go_certbot/internal/present"
	"go_certbot/internal/query"
)

// handleButton dispatches callback data such as "verify:12" or "type:root:12"
func (d *Dispatcher) handleButton(ctx context.Context, chatID int64, user *model.User, data string) *Reply {
	parts := strings.Split(data, ":")
	action := parts[0]

	switch action {
	case "later":
		return (&Reply{}).say("👌 Tap \"Verify\" once the TXT record is in place.", nil)
	case "menu":
		if len(parts) < 2 {
			break
		}
		return d.handleMenu(ctx, chatID, user, parts[1])
	}

	id, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || id <= 0 {
		return (&Reply{}).say("Unknown action.", present.MainMenu())
	}

	r := d.orderButton(ctx, user, parts, id)
	if r == nil {
		return (&Reply{}).say("Unknown action.", present.MainMenu())
	}
	return r
}

func (d *Dispatcher) handleMenu(ctx context.Context, chatID int64, user *model.User, item string) *Reply {
	switch item {
	case "new":
		return d.newOrder(ctx, user)
	case "status":
		return d.askStatusDomain()
	case "orders":
		return d.listOrders(ctx, user)
	case "help":
		return (&Reply{}).say(present.Help(auth.IsAdmin(user)), present.MainMenu())
	}
	return (&Reply{}).say("Unknown action.", present.MainMenu())
}

func (d *Dispatcher) orderButton(ctx context.Context, user *model.User, parts []string, id int) *Reply {
	switch parts[0] {
	case "type":
		if len(parts) != 3 {
			return nil
		}
		return d.fromResult(d.Machine.SetType(ctx, user, id, model.CertType(parts[1])))
	case "verify":
		res, err := d.Machine.Verify(ctx, user, id)
		return d.guarded(ctx, user, id, res, err)
	case "reinstall":
		res, err := d.Machine.RequestReinstall(ctx, user, id)
		return d.guarded(ctx, user, id, res, err)
	case "cancel":
		r := d.fromCancel(d.Machine.Cancel(ctx, user, id))
		r.resetSession = true
		return r
	case "status":
		o, err := d.Query.StatusByID(ctx, user, id)
		if err != nil {
			return d.queryFailure(ctx, id, err)
		}
		return d.card(o, "")
	case "download":
		o, err := d.Query.StatusByID(ctx, user, id)
		if err != nil {
			return d.queryFailure(ctx, id, err)
		}
		if o.Status != model.OrderStatusIssued {
			return d.card(o, "⚠️ "+query.ErrNotIssued.Error())
		}
		cfg := d.Query.Config()
		r := &Reply{Order: o}
		return r.say(present.DownloadMessage(o, cfg.ExportDir, cfg.DownloadBaseURL), present.OrderKeyboard(o))
	case "file":
		if len(parts) != 3 {
			return nil
		}
		art, err := d.Query.File(ctx, user, id, parts[1])
		if err != nil {
			return d.queryFailure(ctx, id, err)
		}
		if !art.Exists {
			return (&Reply{}).say(fmt.Sprintf("❌ %s is missing. Tap \"Re-export\" to write the files again.", art.Name), nil)
		}
		r := &Reply{Files: []query.Artifact{*art}}
		text := "📄 " + art.Name
		if art.URL != "" {
			text += "\n" + art.URL
		}
		return r.say(text, nil)
	case "info":
		info, err := d.Query.Certificate(ctx, user, id)
		if err != nil {
			return d.queryFailure(ctx, id, err)
		}
		return (&Reply{}).say(certificateText(info), nil)
	case "created":
		if len(parts) != 3 {
			return nil
		}
		return d.createdButton(ctx, user, parts[1], id)
	}
	return nil
}

// createdButton handles the follow-up actions of a created order
func (d *Dispatcher) createdButton(ctx context.Context, user *model.User, sub string, id int) *Reply {
	switch sub {
	case "type":
		o, err := d.Query.StatusByID(ctx, user, id)
		if err != nil {
			return d.queryFailure(ctx, id, err)
		}
		if o.Status != model.OrderStatusCreated || o.Domain != "" {
			return d.card(o, "⚠️ The certificate type can only be changed before the domain is submitted.")
		}
		return (&Reply{Order: o}).say(present.TypePrompt(), present.TypeKeyboard(id))
	case "domain":
		o, err := d.Query.StatusByID(ctx, user, id)
		if err != nil {
			return d.queryFailure(ctx, id, err)
		}
		if o.Status != model.OrderStatusCreated || o.Domain != "" {
			return d.card(o, "")
		}
		r := &Reply{Order: o, Expect: &order.Expectation{Action: order.ExpectDomain, OrderID: id}}
		return r.say(present.DomainPrompt(), nil)
	case "retry":
		res, err := d.Machine.RetryDNS(ctx, user, id)
		return d.guarded(ctx, user, id, res, err)
	}
	return nil
}

func (d *Dispatcher) fromCancel(res *order.Result, err error) *Reply {
	if err != nil {
		return d.fromResult(nil, err)
	}
	return (&Reply{Order: res.Order}).say("🗑 "+res.Message, present.MainMenu())
}

// guarded renders a button action result. Unexpected failures are recorded
// on the order and its card is sent again.
func (d *Dispatcher) guarded(ctx context.Context, user *model.User, id int, res *order.Result, err error) *Reply {
	var orderErr *order.Error
	if err == nil || errors.As(err, &orderErr) {
		return d.fromResult(res, err)
	}

	d.logger.WithField("orderId", id).Errorf("Button action failed: %v", err)
	d.Machine.RecordError(ctx, id, err)
	o, getErr := d.Query.StatusByID(ctx, user, id)
	if getErr != nil {
		return d.failure(err)
	}
	return d.card(o, "❌ Something went wrong. The error was saved on the order; try again later.")
}

func (d *Dispatcher) queryFailure(ctx context.Context, id int, err error) *Reply {
	switch {
	case errors.Is(err, order.ErrNotFound):
		return (&Reply{resetSession: true}).say(fmt.Sprintf("Order #%d was not found.", id), present.MainMenu())
	case errors.Is(err, query.ErrNotIssued), errors.Is(err, order.ErrValidation):
		return (&Reply{}).say("⚠️ "+err.Error(), nil)
	}
	d.Machine.RecordError(ctx, id, err)
	return d.failure(err)
}

func certificateText(info *query.CertificateInfo) string {
	return fmt.Sprintf("🔐 <b>%s</b>\nSubject: %s\nIssuer: %s\nNames: %s\nValid from: %s\nValid until: %s (%d days left)",
		info.Domain,
		info.Subject,
		info.Issuer,
		strings.Join(info.DNSNames, ", "),
		info.NotBefore.Format("2006-01-02 15:04"),
		info.NotAfter.Format("2006-01-02 15:04"),
		info.DaysLeft)
}
