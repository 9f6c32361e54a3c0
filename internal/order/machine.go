// Package order owns the certificate order lifecycle. Every state change goes
// through Machine, which re-checks the persisted precondition in the same
// statement that writes the new state.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go_certbot/internal/acme"
	"go_certbot/internal/auditlog"
	"go_certbot/internal/dnscheck"
	"go_certbot/internal/domainutil"
	"go_certbot/internal/model"
	"go_certbot/internal/quota"
	"go_certbot/internal/retry"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultRaceCooldown bounds how often an order is recreated after the CA
// reports an existing certificate for the same user and domain
const DefaultRaceCooldown = 10 * time.Minute

// errConflict aborts a transaction whose conditional write matched no row
var errConflict = errors.New("order precondition no longer holds")

// Options tunes the machine
type Options struct {
	RetryCeiling     int
	FailedTTLMinutes int
	RaceCooldown     time.Duration
	// Inline runs DNS generation, issuance and re-export inside the user
	// request instead of leaving them to the processor
	Inline    bool
	ExportDir string
}

// Machine performs order transitions
type Machine struct {
	db       *gorm.DB
	store    *Store
	ledger   *quota.Ledger
	audit    *auditlog.Log
	tool     acme.Tool
	resolver dnscheck.Resolver
	policy   retry.Policy
	options  Options
	logger   *logrus.Entry
	now      func() time.Time
}

// NewMachine creates a state machine
func NewMachine(db *gorm.DB, tool acme.Tool, resolver dnscheck.Resolver, audit *auditlog.Log, options Options, logger *logrus.Entry) *Machine {
	if options.RaceCooldown <= 0 {
		options.RaceCooldown = DefaultRaceCooldown
	}
	return &Machine{
		db:       db,
		store:    NewStore(db),
		ledger:   quota.NewLedger(db),
		audit:    audit,
		tool:     tool,
		resolver: resolver,
		policy:   retry.NewPolicy(options.RetryCeiling),
		options:  options,
		logger:   logger.WithField("component", "order-machine"),
		now:      time.Now,
	}
}

// Store exposes the order store for read paths
func (m *Machine) Store() *Store {
	return m.store
}

// StartOrder opens a blank order, or returns the user's pending blank order
func (m *Machine) StartOrder(ctx context.Context, user *model.User) (*Result, error) {
	blank, err := m.store.FindBlankCreated(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up pending order: %w", err)
	}
	if blank != nil {
		res := &Result{Success: true, Message: "Continue your pending request.", Order: blank}
		if blank.CertType != "" {
			res.Expect = &Expectation{Action: ExpectDomain, OrderID: blank.ID}
		}
		return res, nil
	}

	if !m.ledger.HasQuota(user) {
		return nil, newError(ErrQuotaExhausted, nil, "Your certificate quota is used up. Ask an administrator for more.")
	}

	o := &model.Order{UserID: user.ID, Status: model.OrderStatusCreated}
	if err := m.store.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	m.audit.Record(ctx, user.ID, o.ID, model.ActionOrderCreate, "", "")

	return &Result{Success: true, Message: "Choose the certificate type.", Order: o}, nil
}

// SetType records the certificate type of a blank order and asks for its domain
func (m *Machine) SetType(ctx context.Context, user *model.User, id int, certType model.CertType) (*Result, error) {
	if !certType.Valid() {
		return nil, newError(ErrValidation, nil, fmt.Sprintf("Unknown certificate type %q.", certType))
	}

	o, err := m.loadForUser(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderStatusCreated || o.Domain != "" {
		return nil, newError(ErrIllegalTransition, o, notActionable(o, "change the certificate type"))
	}

	pre := Precondition{Statuses: []model.OrderStatus{model.OrderStatusCreated}, UserID: user.ID, EmptyDomain: true}
	ok, err := m.store.Transition(ctx, id, pre, map[string]interface{}{"cert_type": certType})
	if err != nil {
		return nil, fmt.Errorf("failed to set certificate type: %w", err)
	}
	if !ok {
		return nil, m.conflict(ctx, user.ID, id, "change the certificate type")
	}

	o.CertType = certType
	return &Result{
		Success: true,
		Message: "Certificate type saved. Now enter the root domain, e.g. example.com.",
		Order:   o,
		Expect:  &Expectation{Action: ExpectDomain, OrderID: id},
	}, nil
}

// SubmitDomain fills the domain of a blank order, consumes one quota unit and
// flags the order for DNS generation
func (m *Machine) SubmitDomain(ctx context.Context, user *model.User, id int, input string) (*Result, error) {
	o, err := m.loadForUser(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderStatusCreated || o.Domain != "" {
		return nil, newError(ErrIllegalTransition, o, notActionable(o, "submit a domain"))
	}
	if !o.CertType.Valid() {
		return nil, newError(ErrValidation, o, "Choose the certificate type before entering the domain.")
	}

	domain, err := domainutil.ValidateRootDomain(input)
	if err != nil {
		return nil, wrapError(ErrValidation, o, "Invalid domain", err)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := m.store.WithTx(tx)
		if err := m.checkDuplicate(ctx, store, user.ID, domain, id); err != nil {
			return err
		}

		pre := Precondition{Statuses: []model.OrderStatus{model.OrderStatusCreated}, UserID: user.ID, EmptyDomain: true}
		ok, err := store.Transition(ctx, id, pre, map[string]interface{}{
			"domain":               domain,
			"needs_dns_generation": true,
			"retry_count":          0,
			"last_error":           "",
		})
		if err != nil {
			return err
		}
		if !ok {
			return errConflict
		}

		return m.consume(ctx, tx, user, o)
	})
	if err != nil {
		return nil, m.txError(ctx, err, user.ID, id, "submit a domain")
	}

	m.audit.Record(ctx, user.ID, id, model.ActionOrderSubmit, domain, string(o.CertType))
	return m.afterSubmit(ctx, id)
}

// QuickOrder creates a root certificate order for domain in one step
func (m *Machine) QuickOrder(ctx context.Context, user *model.User, input string) (*Result, error) {
	domain, err := domainutil.ValidateRootDomain(input)
	if err != nil {
		return nil, wrapError(ErrValidation, nil, "Invalid domain", err)
	}

	o := &model.Order{
		UserID:             user.ID,
		Domain:             domain,
		CertType:           model.CertTypeRoot,
		Status:             model.OrderStatusCreated,
		NeedsDNSGeneration: true,
	}
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := m.store.WithTx(tx)
		if err := m.checkDuplicate(ctx, store, user.ID, domain, 0); err != nil {
			return err
		}
		if err := m.consume(ctx, tx, user, nil); err != nil {
			return err
		}
		return store.Create(ctx, o)
	})
	if err != nil {
		var orderErr *Error
		if errors.As(err, &orderErr) {
			return nil, orderErr
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	m.audit.Record(ctx, user.ID, o.ID, model.ActionOrderCreate, domain, string(o.CertType))
	return m.afterSubmit(ctx, o.ID)
}

// GenerateDNS runs the CA tool for an order flagged for DNS generation
func (m *Machine) GenerateDNS(ctx context.Context, id int) (*Result, error) {
	o, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.StepDNSGeneration.Ready(o) {
		return nil, newError(ErrIllegalTransition, o, notActionable(o, "generate the DNS record"))
	}

	outcome := m.tool.Generate(ctx, o.AcmeDomains())
	pre := Precondition{
		Statuses: []model.OrderStatus{model.OrderStatusCreated},
		Step:     model.StepDNSGeneration,
	}
	return m.applyChallenge(ctx, o, outcome, pre)
}

// RetryDNS drops the CA-side order and generates a fresh challenge
func (m *Machine) RetryDNS(ctx context.Context, user *model.User, id int) (*Result, error) {
	o, err := m.loadForUser(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if o.Domain == "" || (o.Status != model.OrderStatusCreated && o.Status != model.OrderStatusDNSWait) {
		return nil, newError(ErrIllegalTransition, o, notActionable(o, "regenerate the DNS record"))
	}

	removed := m.tool.Remove(ctx, o.AcmeDomains())
	m.audit.Record(ctx, o.UserID, o.ID, model.ActionAcmeRemove, o.Domain, removed.Output)

	outcome := m.tool.Generate(ctx, o.AcmeDomains())
	pre := Precondition{
		Statuses: []model.OrderStatus{model.OrderStatusCreated, model.OrderStatusDNSWait},
		UserID:   user.ID,
	}
	return m.applyChallenge(ctx, o, outcome, pre)
}

// Verify checks the TXT record and moves the order to dns_verified
func (m *Machine) Verify(ctx context.Context, user *model.User, id int) (*Result, error) {
	o, err := m.loadForUser(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderStatusDNSWait {
		return nil, newError(ErrIllegalTransition, o, notActionable(o, "verify DNS"))
	}
	if !o.HasChallenge() {
		return nil, newError(ErrIllegalTransition, o, "No TXT record is stored for this order. Tap \"Regenerate DNS record\" first.")
	}

	observed, err := m.resolver.Verify(ctx, o.TxtHost, o.ChallengeValues())
	if err != nil {
		m.RecordError(ctx, o.ID, fmt.Errorf("DNS lookup failed: %w", err))
		return nil, wrapError(ErrExternalTool, o, "DNS lookup failed. The order stays in dns_wait; tap \"Verify\" again shortly", err)
	}
	if !observed {
		return nil, newError(ErrPropagationPending, o, fmt.Sprintf(
			"The TXT record %s is not visible yet. DNS changes can take a few minutes; the order stays in dns_wait, tap \"Verify\" again later.",
			o.TxtHost))
	}

	pre := Precondition{Statuses: []model.OrderStatus{model.OrderStatusDNSWait}, UserID: user.ID}
	ok, err := m.store.Transition(ctx, id, pre, map[string]interface{}{
		"status":         model.OrderStatusDNSVerified,
		"needs_issuance": true,
		"retry_count":    m.policy.Evaluate(o.RetryCount, retry.SignalSuccess).Retries,
		"last_error":     "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark order %d verified: %w", id, err)
	}
	if !ok {
		return nil, m.conflict(ctx, user.ID, id, "verify DNS")
	}
	m.audit.Record(ctx, o.UserID, o.ID, model.ActionDNSVerified, o.Domain, "")

	res, err := m.result(ctx, id, "DNS verified. The certificate is being issued.")
	if err != nil || !m.options.Inline {
		return res, err
	}
	return m.runInline(ctx, res, m.Issue)
}

// Issue asks the CA to issue the certificate and exports it
func (m *Machine) Issue(ctx context.Context, id int) (*Result, error) {
	o, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.StepIssuance.Ready(o) {
		return nil, newError(ErrIllegalTransition, o, notActionable(o, "issue the certificate"))
	}
	pre := Precondition{
		Statuses: []model.OrderStatus{model.OrderStatusDNSVerified},
		Step:     model.StepIssuance,
	}

	renewed := m.tool.Renew(ctx, o.AcmeDomains())
	m.audit.Record(ctx, o.UserID, o.ID, model.ActionAcmeRenew, o.Domain, renewed.Output)

	switch renewed.Kind {
	case acme.KindSuccess, acme.KindAlreadyExists:
	case acme.KindPropagationPending:
		decision := m.policy.Evaluate(o.RetryCount, retry.SignalPropagationPending)
		ok, err := m.store.Transition(ctx, id, pre, map[string]interface{}{
			"status":         model.OrderStatusDNSWait,
			"needs_issuance": false,
			"retry_count":    decision.Retries,
			"last_error":     "The CA could not see the TXT record yet",
			"acme_output":    renewed.Output,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to return order %d to dns_wait: %w", id, err)
		}
		if !ok {
			return nil, m.conflict(ctx, 0, id, "issue the certificate")
		}
		o, _ = m.store.Get(ctx, id)
		return nil, newError(ErrPropagationPending, o,
			"The CA does not see the TXT record yet. The order is back in dns_wait; tap \"Verify\" again once the record has propagated.")
	default:
		return m.fail(ctx, o, pre, model.StepIssuance, "Certificate issuance failed: "+failureMessage(renewed), renewed.Output)
	}

	files := acme.FilesFor(m.options.ExportDir, o.Domain)
	installed := m.tool.Install(ctx, o.Domain, files)
	m.audit.Record(ctx, o.UserID, o.ID, model.ActionAcmeInstall, o.Domain, installed.Output)
	if !installed.OK() {
		return m.fail(ctx, o, pre, model.StepIssuance, "Certificate export failed: "+failureMessage(installed), installed.Output)
	}

	ok, err := m.store.Transition(ctx, id, pre, map[string]interface{}{
		"status":         model.OrderStatusIssued,
		"needs_issuance": false,
		"retry_count":    0,
		"last_error":     "",
		"acme_output":    renewed.Output,
		"cert_path":      files.Cert,
		"key_path":       files.Key,
		"fullchain_path": files.Fullchain,
		"ca_path":        files.CA,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark order %d issued: %w", id, err)
	}
	if !ok {
		return nil, m.conflict(ctx, 0, id, "issue the certificate")
	}

	m.audit.Record(ctx, o.UserID, o.ID, model.ActionOrderIssued, o.Domain, files.Dir)
	m.logger.WithField("orderId", id).Infof("Certificate issued for %s", o.Domain)
	return m.result(ctx, id, "Certificate issued.")
}

// RequestReinstall flags an issued order for re-export
func (m *Machine) RequestReinstall(ctx context.Context, user *model.User, id int) (*Result, error) {
	pre := Precondition{Statuses: []model.OrderStatus{model.OrderStatusIssued}, UserID: user.ID}
	ok, err := m.store.Transition(ctx, id, pre, map[string]interface{}{"needs_reinstall": true})
	if err != nil {
		return nil, fmt.Errorf("failed to flag order %d for reinstall: %w", id, err)
	}
	if !ok {
		return nil, m.conflict(ctx, user.ID, id, "re-export the certificate")
	}

	res, err := m.result(ctx, id, "The certificate will be exported again shortly.")
	if err != nil || !m.options.Inline {
		return res, err
	}
	return m.runInline(ctx, res, m.Reinstall)
}

// Reinstall re-exports an issued certificate. Failures never change status
// or count toward the retry ceiling.
func (m *Machine) Reinstall(ctx context.Context, id int) (*Result, error) {
	o, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.StepReinstall.Ready(o) {
		return nil, newError(ErrIllegalTransition, o, notActionable(o, "re-export the certificate"))
	}
	pre := Precondition{
		Statuses: []model.OrderStatus{model.OrderStatusIssued},
		Step:     model.StepReinstall,
	}

	files := acme.FilesFor(m.options.ExportDir, o.Domain)
	installed := m.tool.Install(ctx, o.Domain, files)
	m.audit.Record(ctx, o.UserID, o.ID, model.ActionAcmeInstall, o.Domain, installed.Output)

	updates := map[string]interface{}{"needs_reinstall": false}
	if installed.OK() {
		updates["last_error"] = ""
		updates["cert_path"] = files.Cert
		updates["key_path"] = files.Key
		updates["fullchain_path"] = files.Fullchain
		updates["ca_path"] = files.CA
	} else {
		updates["last_error"] = truncateError("Certificate export failed: " + failureMessage(installed))
	}

	ok, err := m.store.Transition(ctx, id, pre, updates)
	if err != nil {
		return nil, fmt.Errorf("failed to update order %d after reinstall: %w", id, err)
	}
	if !ok {
		return nil, m.conflict(ctx, 0, id, "re-export the certificate")
	}

	if !installed.OK() {
		o, _ = m.store.Get(ctx, id)
		return nil, newError(ErrExternalTool, o,
			"Certificate export failed: "+failureMessage(installed)+". The certificate is still issued; tap \"Re-export\" to try again.")
	}
	return m.result(ctx, id, "Certificate exported again.")
}

// Cancel deletes a non-issued order and refunds its quota when a domain was set
func (m *Machine) Cancel(ctx context.Context, user *model.User, id int) (*Result, error) {
	var cancelled *model.Order
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := m.store.WithTx(tx)
		o, err := store.GetForUser(ctx, user.ID, id)
		if err != nil {
			return err
		}
		if o.Status == model.OrderStatusIssued {
			return newError(ErrIllegalTransition, o, "Issued certificates cannot be cancelled.")
		}

		pre := Precondition{Statuses: model.CancellableStatuses, UserID: user.ID}
		ok, err := store.Delete(ctx, id, pre)
		if err != nil {
			return err
		}
		if !ok {
			return errConflict
		}
		if o.Domain != "" {
			if err := m.ledger.WithTx(tx).Refund(ctx, user); err != nil {
				return err
			}
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, m.txError(ctx, err, user.ID, id, "cancel the order")
	}

	m.audit.Record(ctx, user.ID, id, model.ActionOrderCancel, cancelled.Domain, string(cancelled.Status))
	msg := fmt.Sprintf("Order #%d cancelled.", id)
	if cancelled.Domain != "" && !user.Privileged() {
		msg += " One request was returned to your quota."
	}
	return &Result{Success: true, Message: msg, Order: cancelled}, nil
}

// FailedCutoff returns the cutoff for expiring failed orders; ok is false
// when cleanup is disabled
func (m *Machine) FailedCutoff() (time.Time, bool) {
	return retry.FailedCutoff(m.now(), m.options.FailedTTLMinutes)
}

// ExpireFailed deletes up to limit failed orders last touched before cutoff,
// refunding quota for those with a domain
func (m *Machine) ExpireFailed(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	orders, err := m.store.ListExpiredFailed(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired orders: %w", err)
	}

	expired := 0
	var errs []error
	for i := range orders {
		o := &orders[i]
		deleted, err := m.expireOne(ctx, o, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %d: %w", o.ID, err))
			continue
		}
		if deleted {
			expired++
			m.audit.Record(ctx, o.UserID, o.ID, model.ActionOrderExpired, o.Domain, o.LastError)
		}
	}
	return expired, errors.Join(errs...)
}

func (m *Machine) expireOne(ctx context.Context, o *model.Order, cutoff time.Time) (bool, error) {
	deleted := false
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pre := Precondition{Statuses: []model.OrderStatus{model.OrderStatusFailed}, UpdatedBefore: cutoff}
		ok, err := m.store.WithTx(tx).Delete(ctx, o.ID, pre)
		if err != nil || !ok {
			return err
		}
		deleted = true
		if o.Domain == "" {
			return nil
		}

		var user model.User
		if err := tx.WithContext(ctx).First(&user, o.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		return m.ledger.WithTx(tx).Refund(ctx, &user)
	})
	return deleted, err
}

// RecordError stores an unexpected error on the order without changing its state
func (m *Machine) RecordError(ctx context.Context, id int, cause error) {
	if cause == nil {
		return
	}
	msg := truncateError(cause.Error())

	o, err := m.store.Get(ctx, id)
	if err != nil {
		return
	}
	if err := m.store.SetLastError(ctx, id, msg); err != nil {
		m.logger.WithField("orderId", id).Errorf("Failed to record order error: %v", err)
		return
	}
	m.audit.Record(ctx, o.UserID, o.ID, model.ActionOrderError, o.Domain, msg)
}

// applyChallenge stores a freshly issued challenge or routes the outcome to
// the race or failure handling
func (m *Machine) applyChallenge(ctx context.Context, o *model.Order, outcome acme.Outcome, pre Precondition) (*Result, error) {
	switch outcome.Kind {
	case acme.KindChallengeIssued:
		if outcome.Host == "" || len(outcome.Values) == 0 {
			break
		}
		ok, err := m.store.Transition(ctx, o.ID, pre, map[string]interface{}{
			"status":               model.OrderStatusDNSWait,
			"txt_host":             outcome.Host,
			"txt_values":           datatypes.JSONSlice[string](outcome.Values),
			"txt_value":            outcome.Values[0],
			"needs_dns_generation": false,
			"retry_count":          0,
			"last_error":           "",
			"acme_output":          outcome.Output,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store challenge for order %d: %w", o.ID, err)
		}
		if !ok {
			return nil, m.conflict(ctx, 0, o.ID, "store the DNS record")
		}
		m.audit.Record(ctx, o.UserID, o.ID, model.ActionAcmeIssue, o.Domain, outcome.Output)
		return m.result(ctx, o.ID, "Add the TXT record below, then tap \"Verify\".")
	case acme.KindAlreadyExists:
		return m.recoverRace(ctx, o, outcome, pre)
	}

	return m.fail(ctx, o, pre, model.StepDNSGeneration, "DNS record generation failed: "+failureMessage(outcome), outcome.Output)
}

// recoverRace handles a CA that already holds a certificate for the domain.
// The order is recreated at most once per cooldown window for (user, domain);
// a repeat within the window fails the order.
func (m *Machine) recoverRace(ctx context.Context, o *model.Order, outcome acme.Outcome, pre Precondition) (*Result, error) {
	since := m.now().Add(-m.options.RaceCooldown)
	recent, err := m.audit.HasRecent(ctx, o.UserID, o.Domain, model.ActionAcmeAlreadyExist, since)
	if err != nil {
		return nil, fmt.Errorf("failed to check action log: %w", err)
	}

	if recent {
		msg := fmt.Sprintf("The CA already holds a certificate for %s and the order was already recreated within the last %s",
			o.Domain, m.options.RaceCooldown)
		updates := model.ClearAllSteps()
		updates["status"] = model.OrderStatusFailed
		updates["last_error"] = truncateError(msg)
		updates["acme_output"] = outcome.Output
		ok, err := m.store.Transition(ctx, o.ID, pre, updates)
		if err != nil {
			return nil, fmt.Errorf("failed to mark order %d failed: %w", o.ID, err)
		}
		if !ok {
			return nil, m.conflict(ctx, 0, o.ID, "recover from the existing certificate")
		}
		m.audit.Record(ctx, o.UserID, o.ID, model.ActionOrderFailed, o.Domain, msg)
		failed, _ := m.store.Get(ctx, o.ID)
		return nil, newError(ErrTerminalFailure, failed, msg+". The order is now failed. Cancel it and request a new certificate later.")
	}

	m.audit.Record(ctx, o.UserID, o.ID, model.ActionAcmeAlreadyExist, o.Domain, outcome.Output)
	removed := m.tool.Remove(ctx, o.AcmeDomains())
	m.audit.Record(ctx, o.UserID, o.ID, model.ActionAcmeRemove, o.Domain, removed.Output)

	fresh := &model.Order{
		UserID:             o.UserID,
		Domain:             o.Domain,
		CertType:           o.CertType,
		Status:             model.OrderStatusCreated,
		NeedsDNSGeneration: true,
	}
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := m.store.WithTx(tx)
		ok, err := store.Delete(ctx, o.ID, pre)
		if err != nil {
			return err
		}
		if !ok {
			return errConflict
		}
		return store.Create(ctx, fresh)
	})
	if err != nil {
		return nil, m.txError(ctx, err, 0, o.ID, "recover from the existing certificate")
	}

	m.logger.WithFields(logrus.Fields{
		"orderId": o.ID,
		"newId":   fresh.ID,
		"domain":  o.Domain,
	}).Info("CA reported an existing certificate, order recreated")
	m.audit.Record(ctx, fresh.UserID, fresh.ID, model.ActionOrderCreate, fresh.Domain, fmt.Sprintf("recreated from order %d", o.ID))

	return m.GenerateDNS(ctx, fresh.ID)
}

// fail applies the retry policy to a CA tool failure. Below the ceiling the
// order stays on step's status with the flag set; at the ceiling it fails
// with every flag cleared.
func (m *Machine) fail(ctx context.Context, o *model.Order, pre Precondition, step model.Step, message, output string) (*Result, error) {
	decision := m.policy.Evaluate(o.RetryCount, retry.SignalFailure)

	updates := map[string]interface{}{
		"retry_count": decision.Retries,
		"last_error":  truncateError(message),
		"acme_output": output,
	}
	if decision.Terminal {
		for col, v := range model.ClearAllSteps() {
			updates[col] = v
		}
		updates["status"] = model.OrderStatusFailed
	} else {
		updates["status"] = step.RequiredStatus()
		updates[step.Column()] = true
	}

	ok, err := m.store.Transition(ctx, o.ID, pre, updates)
	if err != nil {
		return nil, fmt.Errorf("failed to record failure on order %d: %w", o.ID, err)
	}
	if !ok {
		return nil, m.conflict(ctx, 0, o.ID, "record the failure")
	}

	current, err := m.store.Get(ctx, o.ID)
	if err != nil {
		current = o
	}
	log := m.logger.WithFields(logrus.Fields{"orderId": o.ID, "retries": decision.Retries})

	if decision.Terminal {
		m.audit.Record(ctx, o.UserID, o.ID, model.ActionOrderFailed, o.Domain, message)
		log.Warnf("Order failed permanently: %s", message)
		return nil, newError(ErrTerminalFailure, current, fmt.Sprintf(
			"%s. The retry limit (%d) is reached and the order is now failed. Cancel it and request a new certificate.",
			message, m.policy.Ceiling))
	}

	m.audit.Record(ctx, o.UserID, o.ID, model.ActionOrderError, o.Domain, message)
	log.Warnf("Order step failed: %s", message)
	return nil, newError(ErrExternalTool, current, fmt.Sprintf(
		"%s. Attempt %d of %d; the order is %s and will be retried automatically.",
		message, decision.Retries, m.policy.Ceiling, current.Status))
}

// afterSubmit reports a submitted domain, generating the challenge inline when enabled
func (m *Machine) afterSubmit(ctx context.Context, id int) (*Result, error) {
	res, err := m.result(ctx, id, "Domain accepted. The DNS record is being generated.")
	if err != nil || !m.options.Inline {
		return res, err
	}
	return m.runInline(ctx, res, m.GenerateDNS)
}

// runInline runs a processor step in the request path. Losing the race to
// the processor is not an error: the caller gets the refreshed order.
func (m *Machine) runInline(ctx context.Context, res *Result, step func(context.Context, int) (*Result, error)) (*Result, error) {
	next, err := step(ctx, res.Order.ID)
	if errors.Is(err, ErrIllegalTransition) {
		if o, getErr := m.store.Get(ctx, res.Order.ID); getErr == nil {
			res.Order = o
		}
		return res, nil
	}
	return next, err
}

func (m *Machine) consume(ctx context.Context, tx *gorm.DB, user *model.User, o *model.Order) error {
	consumed, err := m.ledger.WithTx(tx).Consume(ctx, user)
	if err != nil {
		return err
	}
	if !consumed {
		return newError(ErrQuotaExhausted, o, "Your certificate quota is used up. Ask an administrator for more.")
	}
	return nil
}

func (m *Machine) checkDuplicate(ctx context.Context, store *Store, userID int, domain string, excludeID int) error {
	dup, err := store.FindOpenByDomain(ctx, userID, domain, excludeID)
	if err != nil {
		return err
	}
	if dup != nil {
		return newError(ErrDuplicateOrder, dup, fmt.Sprintf(
			"You already have order #%d for %s (%s). %s", dup.ID, domain, dup.Status, NextAction(dup)))
	}
	return nil
}

func (m *Machine) load(ctx context.Context, id int) (*model.Order, error) {
	o, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(ErrNotFound, nil, fmt.Sprintf("Order #%d was not found.", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}
	return o, nil
}

func (m *Machine) loadForUser(ctx context.Context, user *model.User, id int) (*model.Order, error) {
	o, err := m.store.GetForUser(ctx, user.ID, id)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(ErrNotFound, nil, fmt.Sprintf("Order #%d was not found.", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}
	return o, nil
}

func (m *Machine) result(ctx context.Context, id int, message string) (*Result, error) {
	o, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Result{Success: true, Message: message, Order: o}, nil
}

// conflict explains a conditional write that matched no row
func (m *Machine) conflict(ctx context.Context, userID, id int, action string) error {
	o, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) || (err == nil && userID > 0 && o.UserID != userID) {
		return newError(ErrNotFound, nil, fmt.Sprintf("Order #%d was not found.", id))
	}
	if err != nil {
		return fmt.Errorf("failed to reload order %d: %w", id, err)
	}
	return newError(ErrIllegalTransition, o, notActionable(o, action))
}

// txError converts an error returned from a transaction body
func (m *Machine) txError(ctx context.Context, err error, userID, id int, action string) error {
	var orderErr *Error
	switch {
	case errors.As(err, &orderErr):
		return orderErr
	case errors.Is(err, errConflict):
		return m.conflict(ctx, userID, id, action)
	case errors.Is(err, ErrNotFound):
		return newError(ErrNotFound, nil, fmt.Sprintf("Order #%d was not found.", id))
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func failureMessage(outcome acme.Outcome) string {
	if outcome.Message != "" {
		return outcome.Message
	}
	if outcome.Kind == acme.KindChallengeIssued || outcome.Kind == acme.KindSuccess {
		return "no DNS challenge found in the CA tool output"
	}
	return fmt.Sprintf("unexpected CA tool result (%s)", outcome.Kind)
}
