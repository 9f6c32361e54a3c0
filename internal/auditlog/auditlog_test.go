package auditlog

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_certbot/internal/model"
	"go_certbot/internal/testutil"
)

func TestLog_RecordAndQuery(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	l := New(db, logrus.NewEntry(logger))

	l.Record(ctx, 1, 10, model.ActionAcmeAlreadyExist, "example.com", "output")
	l.Record(ctx, 1, 11, model.ActionOrderCreate, "example.org", strings.Repeat("x", maxDetailLength+10))
	l.Record(ctx, 2, 12, model.ActionAcmeAlreadyExist, "example.net", "")

	since := time.Now().Add(-time.Minute)

	found, err := l.HasRecent(ctx, 1, "example.com", model.ActionAcmeAlreadyExist, since)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = l.HasRecent(ctx, 2, "example.com", model.ActionAcmeAlreadyExist, since)
	require.NoError(t, err)
	assert.False(t, found, "other user's entry must not match")

	found, err = l.HasRecent(ctx, 1, "example.com", model.ActionAcmeAlreadyExist, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, found, "entry older than the window must not match")

	latest, err := l.Latest(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, model.ActionOrderCreate, latest[0].Action)
	assert.Len(t, latest[0].Detail, maxDetailLength)
}
