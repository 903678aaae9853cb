package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/honeynil/agri-invest-service/internal/infrastructure/paystack"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type recordingNotifier struct {
	mu    sync.Mutex
	notes []models.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

func (n *recordingNotifier) count(userID int64, typ models.NotificationType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, note := range n.notes {
		if note.UserID == userID && note.Type == typ {
			c++
		}
	}
	return c
}

type mockGateway struct{ mock.Mock }

func (m *mockGateway) Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*paystack.InitializeResult)
	return res, args.Error(1)
}

func (m *mockGateway) Verify(ctx context.Context, reference string) (*paystack.VerifyResult, error) {
	args := m.Called(ctx, reference)
	res, _ := args.Get(0).(*paystack.VerifyResult)
	return res, args.Error(1)
}

func (m *mockGateway) CreateRecipient(ctx context.Context, req paystack.RecipientRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) Transfer(ctx context.Context, req paystack.TransferRequest) (*paystack.TransferResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*paystack.TransferResult)
	return res, args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, reference string, amountKobo int64, reason string) error {
	args := m.Called(ctx, reference, amountKobo, reason)
	return args.Error(0)
}

// okInitialize makes every Initialize call succeed.
func (m *mockGateway) okInitialize() *mock.Call {
	return m.On("Initialize", mock.Anything, mock.Anything).Return(&paystack.InitializeResult{
		AuthorizationURL: "https://checkout.paystack.com/abc",
		AccessCode:       "abc",
	}, nil)
}

type mockRedis struct{ mock.Mock }

func (m *mockRedis) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func (m *mockRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *mockRedis) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockRedis) Close() error { return nil }

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

// env wires every service over one memory store with a fixed clock.
type env struct {
	store    *memory.Store
	gateway  *mockGateway
	notifier *recordingNotifier

	investments *investmentService
	payments    *paymentService
	storage     *storageService
	commerce    *commerceService
	referrals   *referralService
	withdrawals *withdrawalService
	admin       *adminService
}

const webhookSecret = "sk_test_secret"

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{store: memory.NewStore(), gateway: &mockGateway{}, notifier: &recordingNotifier{}}

	e.investments = NewInvestmentService(e.store, e.notifier)
	e.investments.now = fixedClock
	e.payments = NewPaymentService(e.store, e.gateway, nil, e.notifier, webhookSecret, "https://app.test/callback")
	e.payments.now = fixedClock
	e.storage = NewStorageService(e.store, e.payments, e.notifier)
	e.storage.now = fixedClock
	e.commerce = NewCommerceService(e.store, e.payments, e.notifier)
	e.commerce.now = fixedClock
	e.referrals = NewReferralService(e.store, e.notifier)
	e.referrals.now = fixedClock
	e.withdrawals = NewWithdrawalService(e.store, e.gateway, nil, e.notifier)
	e.withdrawals.now = fixedClock
	e.admin = NewAdminService(e.store)
	e.admin.now = fixedClock
	return e
}

func (e *env) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{Email: name + "@farm.ng", Username: name, FirstName: name, PasswordHash: "hash"}
	require.NoError(t, e.store.Users().Create(context.Background(), u))
	return u
}

func (e *env) pkg(t *testing.T, slots int) *models.InvestmentPackage {
	t.Helper()
	p := &models.InvestmentPackage{
		Name:           "Maize Season",
		Category:       "grains",
		RiskLevel:      "low",
		Status:         models.PackageActive,
		MinAmount:      dec("1000"),
		MaxAmount:      dec("500000"),
		InterestRate:   dec("20"),
		DurationMonths: 6,
		TotalSlots:     slots,
		AvailableSlots: slots,
	}
	require.NoError(t, e.store.Packages().Create(context.Background(), p))
	return p
}

func (e *env) invest(t *testing.T, userID, packageID int64, amount string) *models.Investment {
	t.Helper()
	inv, err := e.investments.Create(context.Background(), userID, packageID, dec(amount))
	require.NoError(t, err)
	return inv
}

// pay initializes a payment for the target and confirms it through Verify.
func (e *env) pay(t *testing.T, userID int64, kind models.PaymentKind, targetID int64) *models.Payment {
	t.Helper()
	ctx := context.Background()
	p, err := e.payments.Initialize(ctx, userID, kind, targetID)
	require.NoError(t, err)
	e.gateway.On("Verify", mock.Anything, p.Reference).Return(&paystack.VerifyResult{
		ID:         77,
		Status:     "success",
		Reference:  p.Reference,
		AmountKobo: p.AmountInKobo(),
		Channel:    "card",
	}, nil).Once()
	settled, err := e.payments.Verify(ctx, p.Reference)
	require.NoError(t, err)
	return settled
}

// completeWithReturn takes an active investment to completed with the given
// actual return.
func (e *env) completeWithReturn(t *testing.T, invID int64, actual string) *models.Investment {
	t.Helper()
	inv, err := e.investments.ForceComplete(context.Background(), invID, ptr(dec(actual)))
	require.NoError(t, err)
	return inv
}
