package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_certbot/internal/acme"
	"go_certbot/internal/auditlog"
	"go_certbot/internal/auth"
	"go_certbot/internal/bot"
	"go_certbot/internal/httpx"
	"go_certbot/internal/order"
	"go_certbot/internal/query"
	"go_certbot/internal/quota"
	"go_certbot/internal/testutil"
)

type challengeTool struct{}

func (challengeTool) Generate(ctx context.Context, domains []string) acme.Outcome {
	return acme.Outcome{Kind: acme.KindChallengeIssued, Host: "_acme-challenge." + domains[0], Values: []string{"token"}}
}

func (challengeTool) Renew(ctx context.Context, domains []string) acme.Outcome {
	return acme.Outcome{Kind: acme.KindSuccess}
}

func (challengeTool) Install(ctx context.Context, domain string, files acme.Files) acme.Outcome {
	return acme.Outcome{Kind: acme.KindSuccess}
}

func (challengeTool) Remove(ctx context.Context, domains []string) acme.Outcome {
	return acme.Outcome{Kind: acme.KindSuccess}
}

type absentResolver struct{}

func (absentResolver) Verify(ctx context.Context, host string, values []string) (bool, error) {
	return false, nil
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth.InitJWT("test-secret")

	db := testutil.NewDB(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	entry := logrus.NewEntry(logger)

	audit := auditlog.New(db, entry)
	machine := order.NewMachine(db, challengeTool{}, absentResolver{}, audit, order.Options{Inline: true, ExportDir: t.TempDir()}, entry)
	users := auth.NewService(db, auth.UsersConfig{DefaultQuota: 1})
	queries := query.NewService(machine.Store(), audit, query.Config{ExportDir: t.TempDir()})

	r := gin.New()
	SetupRouter(r, Deps{
		Dispatcher: bot.NewDispatcher(bot.Deps{
			Users:    users,
			Machine:  machine,
			Query:    queries,
			Ledger:   quota.NewLedger(db),
			Audit:    audit,
			Sessions: bot.NewMemorySessionStore(),
		}, entry),
		Users:  users,
		Query:  queries,
		Logger: entry,
	})
	return r
}

func token(t *testing.T, scope string) string {
	t.Helper()
	tok, err := auth.GenerateToken("test-frontend", scope, time.Now().Add(time.Hour), "go_certbot")
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, r *gin.Engine, method, path, bearer string, body any) (*httptest.ResponseRecorder, httpx.Response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp httpx.Response
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestPing(t *testing.T) {
	r := setupTestRouter(t)

	w, resp := do(t, r, http.MethodGet, "/api/v1/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, httpx.CodeSuccess, resp.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAuth(t *testing.T) {
	r := setupTestRouter(t)
	update := bot.Update{ChatID: 1, UserID: 1, Text: "/help"}

	tests := []struct {
		name       string
		bearer     string
		wantStatus int
		wantCode   int
	}{
		{"missing token", "", http.StatusUnauthorized, httpx.CodeUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized, httpx.CodeInvalidToken},
		{"wrong scope", token(t, "admin"), http.StatusForbidden, httpx.CodeForbidden},
		{"bot scope", token(t, auth.ScopeBot), http.StatusOK, httpx.CodeSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, r, http.MethodPost, "/api/v1/bot/updates", tt.bearer, update)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestBotUpdates(t *testing.T) {
	r := setupTestRouter(t)
	bearer := token(t, auth.ScopeBot)

	w, resp := do(t, r, http.MethodPost, "/api/v1/bot/updates", bearer, bot.Update{ChatID: 5, UserID: 5, Text: "/domain example.com"})
	require.Equal(t, http.StatusOK, w.Code)

	var reply bot.Reply
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &reply))
	require.NotNil(t, reply.Order)
	assert.Equal(t, "example.com", reply.Order.Domain)
	assert.NotEmpty(t, reply.Messages)

	w, resp = do(t, r, http.MethodPost, "/api/v1/bot/updates", bearer, bot.Update{ChatID: 5, UserID: 5, Text: "x", Callback: "later"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, httpx.CodeParamInvalid, resp.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/bot/updates", bearer, map[string]any{"text": "/help"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrders(t *testing.T) {
	r := setupTestRouter(t)
	bearer := token(t, auth.ScopeBot)

	w, _ := do(t, r, http.MethodGet, "/api/v1/users/5/orders", bearer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown users are not registered by reads")

	_, resp := do(t, r, http.MethodPost, "/api/v1/bot/updates", bearer, bot.Update{ChatID: 5, UserID: 5, Text: "/domain example.com"})
	data := resp.Data.(map[string]any)
	id := int(data["order"].(map[string]any)["id"].(float64))
	orderPath := "/api/v1/users/5/orders/" + strconv.Itoa(id)

	w, resp = do(t, r, http.MethodGet, "/api/v1/users/5/orders", bearer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.(map[string]any)["items"], 1)

	w, _ = do(t, r, http.MethodGet, orderPath, bearer, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = do(t, r, http.MethodGet, "/api/v1/users/5/status?domain=EXAMPLE.com", bearer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dns_wait", resp.Data.(map[string]any)["status"])

	w, resp = do(t, r, http.MethodGet, "/api/v1/users/5/status", bearer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, httpx.CodeParamMissing, resp.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/users/5/status?domain=nope.org", bearer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = do(t, r, http.MethodGet, orderPath+"/files/cert", bearer, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, httpx.CodeStateConflict, resp.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/users/5/orders/999", bearer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/users/5/orders/abc", bearer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
