package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/ledger"
	"ledgerd/internal/metrics"
	"ledgerd/internal/plan"
	"ledgerd/internal/store"
)

func newTestServer(t *testing.T) (*Server, *ledger.Engine) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := ledger.New(context.Background(), ledger.Config{
		Logger:       log,
		Plan:         plan.Default(),
		Store:        store.NewMemoryStore(),
		Clock:        clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		FeeRecipient: "treasury",
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	s := New(log, engine, metrics.New(reg), reg, []string{"127.0.0.1/32"})
	return s, engine
}

func webhookBody(t *testing.T, externalID, value string, metadata map[string]string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(WebhookNotification{
		Type:  "notification",
		Event: "payment.succeeded",
		Object: WebhookObject{
			ID:       externalID,
			Status:   "succeeded",
			Amount:   Amount{Value: value, Currency: "USD"},
			Metadata: metadata,
		},
	})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func doRequest(s *Server, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:34567"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func registerRoot(t *testing.T, s *Server) {
	t.Helper()
	rec := doRequest(s, http.MethodPost, "/api/v1/payments",
		webhookBody(t, "reg-root", "30", map[string]string{
			"address":       "0xroot",
			"package_level": "1",
		}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPaymentWebhookRegisters(t *testing.T) {
	t.Parallel()
	s, engine := newTestServer(t)
	registerRoot(t, s)

	rec := doRequest(s, http.MethodPost, "/api/v1/payments",
		webhookBody(t, "reg-a", "50", map[string]string{
			"address":       "0xaaaa",
			"package_level": "2",
			"sponsor":       "0xroot",
		}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	u, err := engine.UserInfo("0xaaaa")
	require.NoError(t, err)
	require.Equal(t, "0xroot", u.Sponsor)
	require.Equal(t, int64(5000), u.TotalInvestment)
}

func TestPaymentWebhookIgnoresOtherEvents(t *testing.T) {
	t.Parallel()
	s, engine := newTestServer(t)

	body, err := json.Marshal(WebhookNotification{Event: "payment.canceled"})
	require.NoError(t, err)
	rec := doRequest(s, http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, engine.TotalUsers())
}

func TestPaymentWebhookRejections(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	registerRoot(t, s)

	cases := []struct {
		name     string
		id       string
		value    string
		metadata map[string]string
		status   int
	}{
		{"missing address", "r1", "30", map[string]string{"package_level": "1"}, http.StatusBadRequest},
		{"bad package level", "r2", "30", map[string]string{"address": "0xb", "package_level": "zero", "sponsor": "0xroot"}, http.StatusBadRequest},
		{"bad amount string", "r3", "30.555", map[string]string{"address": "0xb", "package_level": "1", "sponsor": "0xroot"}, http.StatusBadRequest},
		{"amount mismatch", "r4", "31", map[string]string{"address": "0xb", "package_level": "1", "sponsor": "0xroot"}, http.StatusBadRequest},
		{"duplicate", "reg-root", "30", map[string]string{"address": "0xb", "package_level": "1", "sponsor": "0xroot"}, http.StatusConflict},
		{"unknown sponsor", "r5", "30", map[string]string{"address": "0xb", "package_level": "1", "sponsor": "0xdead"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodPost, "/api/v1/payments",
				webhookBody(t, tc.id, tc.value, tc.metadata))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestUserInfoEndpoint(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	registerRoot(t, s)

	rec := doRequest(s, http.MethodGet, "/api/v1/users/0xroot", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "0xroot", resp.Data["address"])
	require.Equal(t, float64(3000), resp.Data["total_investment"])

	rec = doRequest(s, http.MethodGet, "/api/v1/users/0xnobody", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReferralCodeEndpoint(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	registerRoot(t, s)

	rec := doRequest(s, http.MethodPost, "/api/v1/users/0xroot/referral-code", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data["referral_code"], 8)

	rec = doRequest(s, http.MethodPost, "/api/v1/users/0xroot/referral-code", nil)
	require.Equal(t, http.StatusConflict, rec.Code, "second generation must conflict")
}

func TestWithdrawEndpoint(t *testing.T) {
	t.Parallel()
	s, engine := newTestServer(t)
	registerRoot(t, s)

	rec := doRequest(s, http.MethodPost, "/api/v1/payments",
		webhookBody(t, "reg-a", "30", map[string]string{
			"address":       "0xaaaa",
			"package_level": "1",
			"sponsor":       "0xroot",
		}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/users/0xroot/withdraw",
		bytes.NewReader([]byte(`{"amount":1000}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(700), resp.Data["payout"])
	require.Equal(t, float64(300), resp.Data["reinvested"])

	u, err := engine.UserInfo("0xroot")
	require.NoError(t, err)
	require.Equal(t, int64(700), u.TotalWithdrawn)

	rec = doRequest(s, http.MethodPost, "/api/v1/users/0xroot/withdraw",
		bytes.NewReader([]byte(`{"amount":99999999}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPoolsEndpoint(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	registerRoot(t, s)

	rec := doRequest(s, http.MethodGet, "/api/v1/pools", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data map[string]map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.Data, "help")
	require.Contains(t, resp.Data, "leader")
	require.Contains(t, resp.Data, "club")
	require.Positive(t, resp.Data["help"]["balance"])
}

func TestAdminEndpointsGatedByCIDR(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	registerRoot(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pools/help/distribute", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/pools/help/distribute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(s, http.MethodPost, "/api/v1/users/0xroot/blacklist",
		bytes.NewReader([]byte(`{"blacklisted":true}`)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestParseCents(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"30", 3000, true},
		{"30.00", 3000, true},
		{"30.5", 3050, true},
		{"30.55", 3055, true},
		{"0.01", 1, true},
		{" 100 ", 10000, true},
		{"30.555", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%q", tc.in), func(t *testing.T) {
			got, err := parseCents(tc.in)
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
