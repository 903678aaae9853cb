package handler_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/honeynil/agri-invest-service/internal/api"
	"github.com/honeynil/agri-invest-service/internal/handler"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/auth"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/paystack"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/redis"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository/memory"
	service "github.com/honeynil/agri-invest-service/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const paystackSecret = "sk_test_handler"

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeRedis) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeRedis) Close() error { return nil }

// fakePaystack answers initialize and verify, remembering the amount of each
// initialized reference so verify reports it back as paid.
func fakePaystack(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	amounts := map[string]int64{}

	mux := http.NewServeMux()
	mux.HandleFunc("/transaction/initialize", func(w http.ResponseWriter, r *http.Request) {
		var req paystack.InitializeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		amounts[req.Reference] = req.AmountKobo
		mu.Unlock()
		fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/%s","access_code":"ac","reference":%q}}`, req.Reference, req.Reference)
	})
	mux.HandleFunc("/transaction/verify/", func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
		mu.Lock()
		kobo, ok := amounts[ref]
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"status":false,"message":"Transaction reference not found"}`)
			return
		}
		fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"id":501,"status":"success","reference":%q,"amount":%d,"channel":"card"}}`, ref, kobo)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testApp struct {
	server *httptest.Server
	store  *memory.Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store := memory.NewStore()
	rc := newFakeRedis()
	tokens := auth.NewTokenManager("handler-secret", time.Hour)
	gateway := paystack.NewClient(fakePaystack(t).URL, paystackSecret)
	notifier := service.NewStoreNotifier(store.Notifications())

	payments := service.NewPaymentService(store, gateway, rc, notifier, paystackSecret, "https://app.test/callback")
	h := handler.NewHandler(handler.Services{
		Auth:        service.NewAuthService(store, rc, tokens, decimal.NewFromInt(5)),
		Packages:    service.NewPackageService(store),
		Investments: service.NewInvestmentService(store, notifier),
		Payments:    payments,
		Storage:     service.NewStorageService(store, payments, notifier),
		Commerce:    service.NewCommerceService(store, payments, notifier),
		Referrals:   service.NewReferralService(store, notifier),
		Withdrawals: service.NewWithdrawalService(store, gateway, rc, notifier),
		Admin:       service.NewAdminService(store),
	})

	srv := httptest.NewServer(api.SetupRouter(h, rc, tokens))
	t.Cleanup(srv.Close)
	return &testApp{server: srv, store: store}
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		var raw json.RawMessage
		if json.NewDecoder(resp.Body).Decode(&raw) == nil {
			_ = json.Unmarshal(raw, &out)
		}
	}
	return resp, out
}

func (a *testApp) register(t *testing.T, name string) string {
	t.Helper()
	resp, _ := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    name + "@farm.ng",
		"username": name,
		"password": "harvest-2026",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return a.login(t, name, "harvest-2026")
}

func (a *testApp) login(t *testing.T, login, password string) string {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": login, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (a *testApp) admin(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-pass-1"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, a.store.Users().Create(context.Background(), &models.User{
		Email: "ops@farm.ng", Username: "ops", PasswordHash: string(hash), IsAdmin: true,
	}))
	return a.login(t, "ops", "admin-pass-1")
}

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(paystackSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestAuthRoutes(t *testing.T) {
	app := newTestApp(t)
	token := app.register(t, "ada")

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		resp, body := app.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"email": "ada@farm.ng", "username": "ada", "password": "harvest-2026",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.NotEmpty(t, body["error"])
	})

	t.Run("validation errors name the field", func(t *testing.T) {
		resp, body := app.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"email": "not-an-email", "username": "bo", "password": "x",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body["error"], "email failed email")
	})

	t.Run("wrong password", func(t *testing.T) {
		resp, _ := app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "ada", "password": "nope-nope"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("profile needs a token", func(t *testing.T) {
		resp, _ := app.do(t, http.MethodGet, "/api/auth/profile", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, body := app.do(t, http.MethodGet, "/api/auth/profile", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ada", body["username"])
		assert.NotContains(t, body, "password_hash")
	})

	t.Run("logout revokes the token", func(t *testing.T) {
		resp, _ := app.do(t, http.MethodPost, "/api/auth/logout", token, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, _ = app.do(t, http.MethodGet, "/api/auth/profile", token, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	app := newTestApp(t)
	token := app.register(t, "ada")

	resp, _ := app.do(t, http.MethodGet, "/api/admin/dashboard", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := app.do(t, http.MethodGet, "/api/admin/dashboard", app.admin(t), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["total_users"])
}

func TestInvestmentPaymentFlow(t *testing.T) {
	app := newTestApp(t)
	adminToken := app.admin(t)
	token := app.register(t, "ada")

	resp, pkg := app.do(t, http.MethodPost, "/api/admin/packages", adminToken, map[string]any{
		"name":            "Cassava Block",
		"category":        "cash_crops",
		"risk_level":      "medium",
		"min_amount":      "10000",
		"max_amount":      "200000",
		"interest_rate":   "18",
		"duration_months": 6,
		"total_slots":     2,
		"start_date":      "2026-04-01T00:00:00Z",
		"end_date":        "2026-10-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	pkgID := pkg["id"]

	resp, _ = app.do(t, http.MethodPost, "/api/investments", token, map[string]any{"package_id": pkgID, "amount": "500"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, inv := app.do(t, http.MethodPost, "/api/investments", token, map[string]any{"package_id": pkgID, "amount": "50000"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", inv["status"])
	assert.Equal(t, "9000", inv["expected_return"])
	invID := int64(inv["id"].(float64))

	resp, payment := app.do(t, http.MethodPost, "/api/payments/initialize", token, map[string]any{"kind": "investment", "target_id": invID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ref := payment["reference"].(string)
	assert.Contains(t, payment["authorization_url"], ref)

	other := app.register(t, "bola")
	resp, _ = app.do(t, http.MethodGet, "/api/payments/verify/"+ref, other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, payment = app.do(t, http.MethodGet, "/api/payments/verify/"+ref, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", payment["status"])

	resp, inv = app.do(t, http.MethodGet, fmt.Sprintf("/api/investments/%d", invID), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", inv["status"])

	resp, p := app.do(t, http.MethodGet, fmt.Sprintf("/api/packages/%v", pkgID), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, p["available_slots"])

	resp, _ = app.do(t, http.MethodGet, fmt.Sprintf("/api/investments/%d", invID), other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhookRoutes(t *testing.T) {
	app := newTestApp(t)
	body := []byte(`{"event":"charge.success","data":{"id":1,"reference":"AGR-unknown","status":"success","amount":100,"channel":"card"}}`)

	for _, path := range []string{"/api/payments/webhook/", "/api/storage/webhooks/paystack/"} {
		t.Run(path, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, app.server.URL+path, bytes.NewReader(body))
			require.NoError(t, err)
			req.Header.Set("X-Paystack-Signature", "deadbeef")
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			req, err = http.NewRequest(http.MethodPost, app.server.URL+path, bytes.NewReader(body))
			require.NoError(t, err)
			req.Header.Set("X-Paystack-Signature", sign(body))
			resp, err = http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestCommerceRoutes(t *testing.T) {
	app := newTestApp(t)
	adminToken := app.admin(t)
	token := app.register(t, "ada")

	resp, product := app.do(t, http.MethodPost, "/api/admin/products", adminToken, map[string]any{
		"name": "Yam Flour 5kg", "price": "4500", "stock": 10, "category": "flour",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = app.do(t, http.MethodPost, "/api/cart/checkout", token, map[string]string{
		"email": "ada@farm.ng", "first_name": "Ada", "last_name": "Obi", "phone": "08030000000",
		"address": "12 Marina", "city": "Lagos", "state": "Lagos",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "empty cart")

	resp, cart := app.do(t, http.MethodPost, "/api/cart/items", token, map[string]any{"product_id": product["id"], "quantity": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "9000", cart["total"])

	resp, _ = app.do(t, http.MethodPost, "/api/cart/items", token, map[string]any{"product_id": 999, "quantity": 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, out := app.do(t, http.MethodPost, "/api/cart/checkout", token, map[string]string{
		"email": "ada@farm.ng", "first_name": "Ada", "last_name": "Obi", "phone": "08030000000",
		"address": "12 Marina", "city": "Lagos", "state": "Lagos",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := out["order"].(map[string]any)
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, "9000", order["total_amount"])
}

func TestAdminLedgerRefValidation(t *testing.T) {
	app := newTestApp(t)
	adminToken := app.admin(t)

	resp, body := app.do(t, http.MethodGet, "/api/admin/transactions/XYZ-1", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "invalid transaction id")

	resp, _ = app.do(t, http.MethodGet, "/api/admin/transactions/INV-42", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.do(t, http.MethodGet, "/api/packages", "", nil)

	resp, err := http.Get(app.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestActionRoutesAcceptSnakeCaseAndTrailingSlash(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	adminToken := app.admin(t)
	token := app.register(t, "ada")

	resp, pkg := app.do(t, http.MethodPost, "/api/admin/packages/", adminToken, map[string]any{
		"name":            "Rice Paddy",
		"category":        "grains",
		"risk_level":      "low",
		"min_amount":      "10000",
		"max_amount":      "200000",
		"interest_rate":   "12",
		"duration_months": 6,
		"total_slots":     2,
		"start_date":      "2026-04-01T00:00:00Z",
		"end_date":        "2026-10-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, inv := app.do(t, http.MethodPost, "/api/investments/", token, map[string]any{"package_id": pkg["id"], "amount": "20000"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	invID := int64(inv["id"].(float64))

	resp, inv = app.do(t, http.MethodPost, fmt.Sprintf("/api/admin/investments/%d/force_approve/", invID), adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", inv["status"])

	for _, path := range []string{"/api/investments/%d/payment_status/", "/api/investments/%d/payment-status"} {
		resp, payment := app.do(t, http.MethodGet, fmt.Sprintf(path, invID), token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "success", payment["status"])
	}

	resp, body := app.do(t, http.MethodPost, fmt.Sprintf("/api/investments/%d/complete/", invID), token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "investment matures on")

	_, profile := app.do(t, http.MethodGet, "/api/auth/profile/", token, nil)
	userID := int64(profile["id"].(float64))

	for _, action := range []string{"mark_paid", "mark-paid"} {
		t.Run(action, func(t *testing.T) {
			wr := &models.WithdrawalRequest{
				UserID:          userID,
				Amount:          decimal.NewFromInt(2400),
				RequestedAmount: decimal.NewFromInt(2400),
				Type:            models.WithdrawalInterest,
				Status:          models.WithdrawalPending,
				RequestedAt:     time.Now(),
			}
			require.NoError(t, app.store.Withdrawals().Create(ctx, wr))

			resp, out := app.do(t, http.MethodPost, fmt.Sprintf("/api/admin/withdrawals/%d/%s/", wr.ID, action), adminToken, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "only approved requests can be marked paid")
			assert.NotEmpty(t, out["error"])

			resp, out = app.do(t, http.MethodPost, fmt.Sprintf("/api/admin/withdrawals/%d/approve/", wr.ID), adminToken, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "approved", out["status"])

			resp, out = app.do(t, http.MethodPost, fmt.Sprintf("/api/admin/withdrawals/%d/%s/", wr.ID, action), adminToken, map[string]string{"admin_notes": "paid by bank transfer"})
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "completed", out["status"])
		})
	}
}
