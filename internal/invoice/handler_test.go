package invoice

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sitekart/sitekart/internal/rbac"
	"github.com/sitekart/sitekart/internal/shared"
)

const gatewayToken = "gw-secret"

func newRouter(t *testing.T, f *fixture, limit int) chi.Router {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(gatewayToken), bcrypt.MinCost)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := rbac.Middleware{Logger: logger}
	h := NewHandler(logger, f.svc, mw, CallbackConfig{TokenHash: string(hash), RateLimit: limit})

	r := chi.NewRouter()
	h.MountCallback(r)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate)
		h.MountRoutes(r)
	})
	return r
}

func serve(t *testing.T, h http.Handler, method, path string, actor shared.Actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(rbac.HeaderActorID, strconv.FormatInt(actor.ID, 10))
	req.Header.Set(rbac.HeaderActorRole, string(actor.Role))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func callback(t *testing.T, h http.Handler, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(body))
	if token != "" {
		req.Header.Set(HeaderPaymentToken, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerInvoiceFlow(t *testing.T) {
	f := newFixture(t)
	r := newRouter(t, f, 100)

	rec := serve(t, r, http.MethodPost, "/invoices", customer, `{"order_id":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, r, http.MethodPost, "/invoices", seller, `{"order_id":3}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "breakdown")

	rec = serve(t, r, http.MethodPost, "/invoices", seller, `{"order_id":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(t, r, http.MethodPost, "/invoices", seller, `{"order_id":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	path := "/invoices/" + strconv.FormatInt(inv.ID, 10)

	rec = serve(t, r, http.MethodGet, path, customer, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, r, http.MethodGet, path, shared.Actor{ID: 99, Role: shared.RoleCustomer}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body := `{"invoice_id":` + strconv.FormatInt(inv.ID, 10) + `,"transaction_id":"txn-1","amount":3740}`
	rec = callback(t, r, "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = callback(t, r, "wrong", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = callback(t, r, gatewayToken, `{"invoice_id":`+strconv.FormatInt(inv.ID, 10)+`,"transaction_id":"txn-1","amount":10}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = callback(t, r, gatewayToken, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paid Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paid))
	assert.Equal(t, PaymentPaid, paid.PaymentStatus)

	rec = callback(t, r, gatewayToken, body)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = callback(t, r, gatewayToken, strings.Replace(body, "txn-1", "txn-2", 1))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerCallbackRateLimited(t *testing.T) {
	f := newFixture(t)
	r := newRouter(t, f, 2)

	for i := 0; i < 2; i++ {
		rec := callback(t, r, gatewayToken, `{"invoice_id":0}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	}
	rec := callback(t, r, gatewayToken, `{"invoice_id":0}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
