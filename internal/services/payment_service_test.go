package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/honeynil/agri-invest-service/internal/infrastructure/paystack"
	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func chargeEvent(event, reference string, kobo int64) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"data":{"id":901,"reference":%q,"status":"success","amount":%d,"channel":"card"}}`, event, reference, kobo))
}

func TestPaymentService_Initialize(t *testing.T) {
	ctx := context.Background()

	t.Run("persists pending payment before calling gateway", func(t *testing.T) {
		e := newEnv(t)
		user := e.user(t, "ada")
		inv := e.invest(t, user.ID, e.pkg(t, 3).ID, "25000")

		e.gateway.On("Initialize", mock.Anything, mock.MatchedBy(func(req paystack.InitializeRequest) bool {
			return req.AmountKobo == 2500000 && req.Email == "ada@farm.ng" && req.Metadata["kind"] == "investment"
		})).Return(&paystack.InitializeResult{AuthorizationURL: "https://checkout.paystack.com/x", AccessCode: "x"}, nil)

		p, err := e.payments.Initialize(ctx, user.ID, models.PaymentForInvestment, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, p.Status)
		assert.Contains(t, p.Reference, "AGR-")
		assert.Equal(t, "https://checkout.paystack.com/x", p.AuthorizationURL)
		assert.Equal(t, "NGN", p.Currency)
		e.gateway.AssertExpectations(t)
	})

	t.Run("gateway failure marks investment failed", func(t *testing.T) {
		e := newEnv(t)
		user := e.user(t, "ada")
		inv := e.invest(t, user.ID, e.pkg(t, 3).ID, "25000")
		e.gateway.On("Initialize", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

		_, err := e.payments.Initialize(ctx, user.ID, models.PaymentForInvestment, inv.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrGateway)

		stored, err := e.investments.AdminGet(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvestmentFailed, stored.Status)

		payments, err := e.store.Payments().List(ctx, models.PaymentFilter{TargetID: &inv.ID})
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, models.PaymentFailed, payments[0].Status)
	})

	t.Run("other user's investment", func(t *testing.T) {
		e := newEnv(t)
		owner := e.user(t, "ada")
		intruder := e.user(t, "eve")
		inv := e.invest(t, owner.ID, e.pkg(t, 3).ID, "25000")

		_, err := e.payments.Initialize(ctx, intruder.ID, models.PaymentForInvestment, inv.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrInvestmentNotFound)
		e.gateway.AssertNotCalled(t, "Initialize", mock.Anything, mock.Anything)
	})

	t.Run("no gateway configured", func(t *testing.T) {
		e := newEnv(t)
		e.payments.gateway = nil
		_, err := e.payments.Initialize(ctx, 1, models.PaymentForInvestment, 1)
		assert.ErrorIs(t, err, pkgerrors.ErrGatewayUnavailable)
	})
}

func TestPaymentService_VerifyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	user := e.user(t, "ada")
	pkg := e.pkg(t, 3)
	inv := e.invest(t, user.ID, pkg.ID, "10000")

	p := e.pay(t, user.ID, models.PaymentForInvestment, inv.ID)
	require.Equal(t, models.PaymentSuccess, p.Status)
	assert.Equal(t, "card", p.PaymentMethod)
	assert.Equal(t, "77", p.GatewayID)

	again, err := e.payments.Verify(ctx, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, again.Status)
	e.gateway.AssertNumberOfCalls(t, "Verify", 1)

	stored, err := e.store.Packages().GetByID(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.AvailableSlots)

	txs, err := e.store.Transactions().List(ctx, models.TransactionFilter{InvestmentID: &inv.ID, Type: models.TypeInvestment})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestPaymentService_VerifyAmountMismatch(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	user := e.user(t, "ada")
	inv := e.invest(t, user.ID, e.pkg(t, 3).ID, "10000")

	p, err := e.payments.Initialize(ctx, user.ID, models.PaymentForInvestment, inv.ID)
	require.NoError(t, err)
	e.gateway.On("Verify", mock.Anything, p.Reference).Return(&paystack.VerifyResult{
		Status: "success", Reference: p.Reference, AmountKobo: 100,
	}, nil)

	settled, err := e.payments.Verify(ctx, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, settled.Status)

	stored, err := e.investments.AdminGet(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvestmentFailed, stored.Status)
}

func TestPaymentService_Webhook(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	user := e.user(t, "ada")
	pkg := e.pkg(t, 3)
	inv := e.invest(t, user.ID, pkg.ID, "10000")
	p, err := e.payments.Initialize(ctx, user.ID, models.PaymentForInvestment, inv.ID)
	require.NoError(t, err)

	body := chargeEvent("charge.success", p.Reference, p.AmountInKobo())

	t.Run("bad signature changes nothing", func(t *testing.T) {
		err := e.payments.Webhook(ctx, body, "deadbeef")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidSignature)

		stored, err := e.store.Payments().GetByReference(ctx, p.Reference)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, stored.Status)
	})

	t.Run("charge.success activates", func(t *testing.T) {
		require.NoError(t, e.payments.Webhook(ctx, body, sign(webhookSecret, body)))

		stored, err := e.store.Payments().GetByReference(ctx, p.Reference)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentSuccess, stored.Status)
		assert.Equal(t, "901", stored.GatewayID)

		active, err := e.investments.Get(ctx, user.ID, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvestmentActive, active.Status)
	})

	t.Run("duplicate delivery is a no-op", func(t *testing.T) {
		require.NoError(t, e.payments.Webhook(ctx, body, sign(webhookSecret, body)))

		stored, err := e.store.Packages().GetByID(ctx, pkg.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.AvailableSlots)
		assert.Equal(t, 1, e.notifier.count(user.ID, models.NotificationInvestment))
	})

	t.Run("unknown reference is acknowledged", func(t *testing.T) {
		unknown := chargeEvent("charge.success", "AGR-missing", 100)
		assert.NoError(t, e.payments.Webhook(ctx, unknown, sign(webhookSecret, unknown)))
	})

	t.Run("other events ignored", func(t *testing.T) {
		other := chargeEvent("transfer.success", p.Reference, 100)
		assert.NoError(t, e.payments.Webhook(ctx, other, sign(webhookSecret, other)))
	})

	t.Run("malformed payload", func(t *testing.T) {
		bad := []byte(`{"event":`)
		assert.ErrorIs(t, e.payments.Webhook(ctx, bad, sign(webhookSecret, bad)), pkgerrors.ErrInvalidInput)
	})
}

func TestPaymentService_LatePaymentForFullPackageIsRefunded(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	e.gateway.On("Refund", mock.Anything, mock.Anything, int64(1500000), "purchase could not be fulfilled").Return(nil).Once()
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")
	pkg := e.pkg(t, 1)

	a := e.invest(t, alice.ID, pkg.ID, "10000")
	b := e.invest(t, bob.ID, pkg.ID, "15000")
	pb, err := e.payments.Initialize(ctx, bob.ID, models.PaymentForInvestment, b.ID)
	require.NoError(t, err)

	e.pay(t, alice.ID, models.PaymentForInvestment, a.ID)

	body := chargeEvent("charge.success", pb.Reference, pb.AmountInKobo())
	require.NoError(t, e.payments.Webhook(ctx, body, sign(webhookSecret, body)))

	stored, err := e.store.Payments().GetByReference(ctx, pb.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, stored.Status)

	pkgNow, err := e.store.Packages().GetByID(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, pkgNow.AvailableSlots)

	refunds, err := e.store.Transactions().List(ctx, models.TransactionFilter{InvestmentID: &b.ID, Type: models.TypeRefund})
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.True(t, dec("15000").Equal(refunds[0].Amount))
	e.gateway.AssertExpectations(t)
}

func TestPaymentService_Refund(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	user := e.user(t, "ada")
	pkg := e.pkg(t, 3)

	t.Run("partial refund only books a transaction", func(t *testing.T) {
		inv := e.invest(t, user.ID, pkg.ID, "10000")
		p := e.pay(t, user.ID, models.PaymentForInvestment, inv.ID)
		e.gateway.On("Refund", mock.Anything, p.Reference, int64(250000), "overcharge").Return(nil).Once()

		refunded, err := e.payments.Refund(ctx, p.Reference, ptr(dec("2500")), "overcharge")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentSuccess, refunded.Status)

		active, err := e.investments.Get(ctx, user.ID, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvestmentActive, active.Status)

		txs, err := e.store.Transactions().List(ctx, models.TransactionFilter{InvestmentID: &inv.ID, Type: models.TypeRefund})
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.True(t, dec("2500").Equal(txs[0].Amount))
	})

	t.Run("gateway error rolls back", func(t *testing.T) {
		inv := e.invest(t, user.ID, pkg.ID, "10000")
		p := e.pay(t, user.ID, models.PaymentForInvestment, inv.ID)
		e.gateway.On("Refund", mock.Anything, p.Reference, mock.Anything, mock.Anything).Return(errors.New("declined")).Once()

		_, err := e.payments.Refund(ctx, p.Reference, nil, "")
		assert.ErrorIs(t, err, pkgerrors.ErrGateway)

		stored, err := e.store.Payments().GetByReference(ctx, p.Reference)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentSuccess, stored.Status)
		active, err := e.investments.Get(ctx, user.ID, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvestmentActive, active.Status)
	})

	t.Run("amount above payment", func(t *testing.T) {
		inv := e.invest(t, user.ID, pkg.ID, "10000")
		p := e.pay(t, user.ID, models.PaymentForInvestment, inv.ID)
		_, err := e.payments.Refund(ctx, p.Reference, ptr(dec("10000.01")), "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})
}

func TestPaymentService_AbandonStale(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	user := e.user(t, "ada")
	pkg := e.pkg(t, 3)

	quiet := e.invest(t, user.ID, pkg.ID, "10000")
	late := e.invest(t, user.ID, pkg.ID, "20000")
	pq, err := e.payments.Initialize(ctx, user.ID, models.PaymentForInvestment, quiet.ID)
	require.NoError(t, err)
	pl, err := e.payments.Initialize(ctx, user.ID, models.PaymentForInvestment, late.ID)
	require.NoError(t, err)

	e.gateway.On("Verify", mock.Anything, pq.Reference).Return(&paystack.VerifyResult{Status: "abandoned", Reference: pq.Reference}, nil)
	e.gateway.On("Verify", mock.Anything, pl.Reference).Return(&paystack.VerifyResult{Status: "success", Reference: pl.Reference, AmountKobo: pl.AmountInKobo()}, nil)

	n, err := e.payments.AbandonStale(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	abandoned, err := e.investments.AdminGet(ctx, quiet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvestmentCancelled, abandoned.Status)
	assert.NotNil(t, abandoned.DeletedAt)
	refunds, err := e.store.Transactions().List(ctx, models.TransactionFilter{InvestmentID: &quiet.ID, Type: models.TypeRefund})
	require.NoError(t, err)
	assert.Empty(t, refunds)

	paid, err := e.investments.AdminGet(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvestmentActive, paid.Status)
}
