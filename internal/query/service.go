// Package query serves read-only projections of orders to the front end.
package query

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go_certbot/internal/acme"
	"go_certbot/internal/auditlog"
	"go_certbot/internal/domainutil"
	"go_certbot/internal/model"
	"go_certbot/internal/order"

	"github.com/go-acme/lego/v4/certcrypto"
)

const (
	defaultListLimit = 10
	diagLogLimit     = 5
)

// ErrNotIssued is returned for artifact lookups on orders without a certificate
var ErrNotIssued = errors.New("certificate is not issued yet")

// Config holds artifact locations
type Config struct {
	ExportDir       string
	DownloadBaseURL string
}

// Service answers status, list and artifact questions
type Service struct {
	store  *order.Store
	audit  *auditlog.Log
	config Config
}

// NewService creates a query service
func NewService(store *order.Store, audit *auditlog.Log, config Config) *Service {
	return &Service{store: store, audit: audit, config: config}
}

// Config returns the artifact configuration
func (s *Service) Config() Config {
	return s.config
}

// StatusByDomain returns the user's most recent order for a domain
func (s *Service) StatusByDomain(ctx context.Context, user *model.User, input string) (*model.Order, error) {
	domain, err := domainutil.Normalize(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", order.ErrValidation, err)
	}
	o, err := s.store.LatestByDomain(ctx, user.ID, domain)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, order.ErrNotFound
	}
	return o, nil
}

// StatusByID returns one of the user's orders
func (s *Service) StatusByID(ctx context.Context, user *model.User, id int) (*model.Order, error) {
	return s.store.GetForUser(ctx, user.ID, id)
}

// List returns the user's latest orders, newest first
func (s *Service) List(ctx context.Context, user *model.User, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.store.ListByUser(ctx, user.ID, limit)
}

// PendingBlank returns the user's latest blank created order, or nil
func (s *Service) PendingBlank(ctx context.Context, user *model.User) (*model.Order, error) {
	return s.store.FindBlankCreated(ctx, user.ID)
}

// Artifact is one exported certificate file
type Artifact struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	URL    string `json:"url,omitempty"`
	Exists bool   `json:"exists"`
}

// File resolves one artifact of an issued order
func (s *Service) File(ctx context.Context, user *model.User, id int, kind string) (*Artifact, error) {
	o, err := s.issued(ctx, user, id)
	if err != nil {
		return nil, err
	}
	name, ok := acme.FileKinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown file kind %q", order.ErrValidation, kind)
	}

	files := acme.FilesFor(s.config.ExportDir, o.Domain)
	path := files.Path(name)
	_, statErr := os.Stat(path)
	return &Artifact{
		Kind:   kind,
		Name:   name,
		Path:   path,
		URL:    acme.DownloadURL(s.config.DownloadBaseURL, o.Domain, name),
		Exists: statErr == nil,
	}, nil
}

// CertificateInfo summarizes the exported leaf certificate
type CertificateInfo struct {
	Domain    string    `json:"domain"`
	Subject   string    `json:"subject"`
	Issuer    string    `json:"issuer"`
	DNSNames  []string  `json:"dnsNames"`
	NotBefore time.Time `json:"notBefore"`
	NotAfter  time.Time `json:"notAfter"`
	DaysLeft  int       `json:"daysLeft"`
}

// Certificate reads cert.cer of an issued order
func (s *Service) Certificate(ctx context.Context, user *model.User, id int) (*CertificateInfo, error) {
	o, err := s.issued(ctx, user, id)
	if err != nil {
		return nil, err
	}

	files := acme.FilesFor(s.config.ExportDir, o.Domain)
	raw, err := os.ReadFile(files.Cert)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	return ParseCertificate(o.Domain, raw, time.Now())
}

// ParseCertificate decodes a PEM leaf certificate
func ParseCertificate(domain string, pemBytes []byte, now time.Time) (*CertificateInfo, error) {
	cert, err := certcrypto.ParsePEMCertificate(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return &CertificateInfo{
		Domain:    domain,
		Subject:   cert.Subject.CommonName,
		Issuer:    cert.Issuer.CommonName,
		DNSNames:  cert.DNSNames,
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		DaysLeft:  int(cert.NotAfter.Sub(now).Hours() / 24),
	}, nil
}

// Diagnostics is the owner-only troubleshooting snapshot
type Diagnostics struct {
	Latest *model.Order
	Logs   []model.ActionLog
}

// Diag returns the user's latest order and action log lines
func (s *Service) Diag(ctx context.Context, user *model.User) (*Diagnostics, error) {
	orders, err := s.store.ListByUser(ctx, user.ID, 1)
	if err != nil {
		return nil, err
	}
	logs, err := s.audit.Latest(ctx, user.ID, diagLogLimit)
	if err != nil {
		return nil, err
	}

	d := &Diagnostics{Logs: logs}
	if len(orders) > 0 {
		d.Latest = &orders[0]
	}
	return d, nil
}

func (s *Service) issued(ctx context.Context, user *model.User, id int) (*model.Order, error) {
	o, err := s.store.GetForUser(ctx, user.ID, id)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderStatusIssued {
		return nil, ErrNotIssued
	}
	return o, nil
}
