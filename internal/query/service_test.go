package query

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_certbot/internal/auditlog"
	"go_certbot/internal/model"
	"go_certbot/internal/order"
	"go_certbot/internal/testutil"
)

func newService(t *testing.T, exportDir string) (*Service, *model.User, func(o *model.Order)) {
	t.Helper()
	db := testutil.NewDB(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	user := &model.User{ExternalID: 42, Role: model.UserRoleMember, Quota: 1}
	require.NoError(t, db.Create(user).Error)

	store := order.NewStore(db)
	svc := NewService(store, auditlog.New(db, logrus.NewEntry(logger)), Config{
		ExportDir:       exportDir,
		DownloadBaseURL: "https://dl.example.net/ssl/",
	})
	create := func(o *model.Order) {
		o.UserID = user.ID
		require.NoError(t, store.Create(context.Background(), o))
	}
	return svc, user, create
}

func writeCert(t *testing.T, dir, domain string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemCert, err := certcrypto.GeneratePemCert(key, domain, nil)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, domain), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, domain, "cert.cer"), pemCert, 0o600))
}

func TestService_StatusAndList(t *testing.T) {
	ctx := context.Background()
	svc, user, create := newService(t, t.TempDir())

	create(&model.Order{Domain: "example.com", Status: model.OrderStatusFailed})
	create(&model.Order{Domain: "example.com", Status: model.OrderStatusDNSWait})
	create(&model.Order{Status: model.OrderStatusCreated})

	o, err := svc.StatusByDomain(ctx, user, "https://Example.com/")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDNSWait, o.Status)

	_, err = svc.StatusByDomain(ctx, user, "other.com")
	assert.ErrorIs(t, err, order.ErrNotFound)

	_, err = svc.StatusByDomain(ctx, user, "not a domain")
	assert.ErrorIs(t, err, order.ErrValidation)

	orders, err := svc.List(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Empty(t, orders[0].Domain)

	blank, err := svc.PendingBlank(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, blank)
	assert.Equal(t, orders[0].ID, blank.ID)
}

func TestService_FileAndCertificate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	svc, user, create := newService(t, dir)
	writeCert(t, dir, "example.com")

	issued := &model.Order{Domain: "example.com", Status: model.OrderStatusIssued}
	create(issued)
	pending := &model.Order{Domain: "example.org", Status: model.OrderStatusDNSVerified}
	create(pending)

	art, err := svc.File(ctx, user, issued.ID, "cert")
	require.NoError(t, err)
	assert.True(t, art.Exists)
	assert.Equal(t, filepath.Join(dir, "example.com", "cert.cer"), art.Path)
	assert.Equal(t, "https://dl.example.net/ssl/example.com/cert.cer", art.URL)

	art, err = svc.File(ctx, user, issued.ID, "key")
	require.NoError(t, err)
	assert.False(t, art.Exists)

	_, err = svc.File(ctx, user, issued.ID, "pfx")
	assert.ErrorIs(t, err, order.ErrValidation)

	_, err = svc.File(ctx, user, pending.ID, "cert")
	assert.ErrorIs(t, err, ErrNotIssued)

	info, err := svc.Certificate(ctx, user, issued.ID)
	require.NoError(t, err)
	assert.Contains(t, info.DNSNames, "example.com")
	assert.True(t, info.NotAfter.After(time.Now()))
	assert.Greater(t, info.DaysLeft, 300)
}

func TestParseCertificate_Invalid(t *testing.T) {
	_, err := ParseCertificate("example.com", []byte("not a certificate"), time.Now())
	assert.Error(t, err)
}

func TestService_Diag(t *testing.T) {
	ctx := context.Background()
	svc, user, create := newService(t, t.TempDir())

	d, err := svc.Diag(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, d.Latest)

	create(&model.Order{Domain: "example.com", Status: model.OrderStatusFailed, LastError: "boom"})
	for i := 0; i < 7; i++ {
		svc.audit.Record(ctx, user.ID, 0, model.ActionOrderError, "example.com", "boom")
	}

	d, err = svc.Diag(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, d.Latest)
	assert.Equal(t, "boom", d.Latest.LastError)
	assert.Len(t, d.Logs, 5)
}
