package service

import (
	"context"
	"testing"
	"time"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestInvestmentService_Create(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	user := e.user(t, "ada")
	pkg := e.pkg(t, 10)

	t.Run("pending with expected return and dates", func(t *testing.T) {
		inv := e.invest(t, user.ID, pkg.ID, "10000")
		assert.Equal(t, models.InvestmentPending, inv.Status)
		assert.True(t, dec("2000").Equal(inv.ExpectedReturn))
		assert.Equal(t, dateOf(testNow), inv.StartDate)
		assert.Equal(t, dateOf(testNow).AddDate(0, 6, 0), inv.EndDate)
		assert.Nil(t, inv.ActualReturn)

		stored, err := e.store.Packages().GetByID(ctx, pkg.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, stored.AvailableSlots, "slots are taken on payment, not on create")
	})

	t.Run("amount outside package range", func(t *testing.T) {
		_, err := e.investments.Create(ctx, user.ID, pkg.ID, dec("999.99"))
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

		_, err = e.investments.Create(ctx, user.ID, pkg.ID, dec("500000.01"))
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("inactive package", func(t *testing.T) {
		closed := e.pkg(t, 5)
		closed.Status = models.PackageSuspended
		require.NoError(t, e.store.Packages().Update(ctx, closed))

		_, err := e.investments.Create(ctx, user.ID, closed.ID, dec("5000"))
		assert.ErrorIs(t, err, pkgerrors.ErrPackageUnavailable)
	})

	t.Run("unknown package", func(t *testing.T) {
		_, err := e.investments.Create(ctx, user.ID, 9999, dec("5000"))
		assert.ErrorIs(t, err, pkgerrors.ErrPackageNotFound)
	})
}

func TestInvestmentService_ReferralActivatesOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	referrer := e.user(t, "referrer")
	referred := e.user(t, "referred")
	pkg := e.pkg(t, 10)

	code := &models.ReferralCode{UserID: referrer.ID, Code: "FARM1234", IsActive: true}
	require.NoError(t, e.store.Referrals().CreateCode(ctx, code))
	require.NoError(t, e.store.Referrals().Create(ctx, &models.Referral{
		ReferrerID:     referrer.ID,
		ReferredUserID: referred.ID,
		ReferralCodeID: code.ID,
		Status:         models.ReferralPending,
		CommissionRate: dec("5"),
	}))

	first := e.invest(t, referred.ID, pkg.ID, "20000")
	require.NotNil(t, first.ReferredBy)
	assert.Equal(t, referrer.ID, *first.ReferredBy)

	ref, err := e.store.Referrals().GetByReferredUser(ctx, referred.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReferralActive, ref.Status)
	require.NotNil(t, ref.ActivatedAt)

	second := e.invest(t, referred.ID, pkg.ID, "30000")
	assert.Nil(t, second.ReferredBy)

	earnings, err := e.referrals.Earnings(ctx, models.EarningFilter{ReferrerID: &referrer.ID})
	require.NoError(t, err)
	require.Len(t, earnings, 1)
	assert.True(t, dec("1000").Equal(earnings[0].Amount))
	assert.Equal(t, first.ID, earnings[0].InvestmentID)
	assert.Equal(t, models.EarningPending, earnings[0].Status)

	assert.Equal(t, 1, e.notifier.count(referrer.ID, models.NotificationReferral))
	assert.Equal(t, 1, e.notifier.count(referrer.ID, models.NotificationEarning))
}

func TestInvestmentService_LastSlotCancelsOtherPending(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")
	pkg := e.pkg(t, 1)

	a := e.invest(t, alice.ID, pkg.ID, "10000")
	b := e.invest(t, bob.ID, pkg.ID, "15000")

	payment := e.pay(t, alice.ID, models.PaymentForInvestment, a.ID)
	assert.Equal(t, models.PaymentSuccess, payment.Status)

	activeA, err := e.investments.Get(ctx, alice.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvestmentActive, activeA.Status)

	stored, err := e.store.Packages().GetByID(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AvailableSlots)

	cancelledB, err := e.investments.AdminGet(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvestmentCancelled, cancelledB.Status)
	assert.NotNil(t, cancelledB.DeletedAt)

	refunds, err := e.store.Transactions().List(ctx, models.TransactionFilter{InvestmentID: &b.ID, Type: models.TypeRefund})
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.True(t, dec("15000").Equal(refunds[0].Amount))

	listed, err := e.investments.List(ctx, models.InvestmentFilter{UserID: &bob.ID})
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = e.investments.Get(ctx, bob.ID, b.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvestmentNotFound)

	_, err = e.payments.Initialize(ctx, bob.ID, models.PaymentForInvestment, b.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvestmentNotFound)
}

func TestInvestmentService_SlotsStayWithinBounds(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	e.gateway.On("Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	user := e.user(t, "ada")
	pkg := e.pkg(t, 2)

	first := e.invest(t, user.ID, pkg.ID, "10000")
	second := e.invest(t, user.ID, pkg.ID, "10000")
	p1 := e.pay(t, user.ID, models.PaymentForInvestment, first.ID)
	e.pay(t, user.ID, models.PaymentForInvestment, second.ID)

	stored, err := e.store.Packages().GetByID(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AvailableSlots)

	_, err = e.payments.Refund(ctx, p1.Reference, nil, "customer request")
	require.NoError(t, err)
	stored, err = e.store.Packages().GetByID(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AvailableSlots)

	// Refunding the same payment twice must not release a second slot.
	_, err = e.payments.Refund(ctx, p1.Reference, nil, "again")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	_, err = e.store.Packages().Release(ctx, pkg.ID, 5)
	require.NoError(t, err)
	stored, err = e.store.Packages().GetByID(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.TotalSlots, stored.AvailableSlots)

	_, err = e.store.Packages().Reserve(ctx, pkg.ID, 3)
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientCapacity)
}

func TestInvestmentService_ActualReturn(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	user := e.user(t, "ada")
	pkg := e.pkg(t, 5)
	inv := e.invest(t, user.ID, pkg.ID, "10000")

	t.Run("not settable before completion", func(t *testing.T) {
		_, err := e.investments.Update(ctx, inv.ID, InvestmentPatch{ActualReturn: ptr(dec("12000"))}, true)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	})

	_, err := e.investments.ForceApprove(ctx, inv.ID)
	require.NoError(t, err)
	completed, err := e.investments.ForceComplete(ctx, inv.ID, nil)
	require.NoError(t, err)
	require.Nil(t, completed.ActualReturn)
	assert.False(t, completed.CanWithdraw())

	t.Run("first set is accepted", func(t *testing.T) {
		updated, err := e.investments.Update(ctx, inv.ID, InvestmentPatch{ActualReturn: ptr(dec("12000"))}, false)
		require.NoError(t, err)
		assert.True(t, dec("12000").Equal(*updated.ActualReturn))
	})

	t.Run("locked for non-admin once set", func(t *testing.T) {
		_, err := e.investments.Update(ctx, inv.ID, InvestmentPatch{ActualReturn: ptr(dec("99999"))}, false)
		assert.ErrorIs(t, err, pkgerrors.ErrActualReturnLocked)

		stored, err := e.investments.AdminGet(ctx, inv.ID)
		require.NoError(t, err)
		assert.True(t, dec("12000").Equal(*stored.ActualReturn))
	})

	t.Run("admin override", func(t *testing.T) {
		updated, err := e.investments.Update(ctx, inv.ID, InvestmentPatch{ActualReturn: ptr(dec("12500"))}, true)
		require.NoError(t, err)
		assert.True(t, dec("12500").Equal(*updated.ActualReturn))
	})
}

func TestInvestmentService_ForceApproveRecordsPayment(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	user := e.user(t, "ada")
	pkg := e.pkg(t, 3)
	inv := e.invest(t, user.ID, pkg.ID, "10000")

	_, err := e.investments.Approve(ctx, inv.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition, "approve needs a successful payment")

	active, err := e.investments.ForceApprove(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvestmentActive, active.Status)

	payment, err := e.investments.PaymentStatus(ctx, user.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, payment.Status)
	assert.Equal(t, "admin_override", payment.PaymentMethod)
	assert.Equal(t, defaultCurrency, payment.Currency)

	txs, err := e.store.Transactions().List(ctx, models.TransactionFilter{InvestmentID: &inv.ID, Type: models.TypeInvestment})
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	_, err = e.investments.ForceApprove(ctx, inv.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
}

func TestInvestmentService_CompleteAndCancel(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	user := e.user(t, "ada")
	other := e.user(t, "eve")
	pkg := e.pkg(t, 5)

	t.Run("complete waits for end date", func(t *testing.T) {
		inv := e.invest(t, user.ID, pkg.ID, "10000")
		_, err := e.investments.ForceApprove(ctx, inv.ID)
		require.NoError(t, err)

		_, err = e.investments.Complete(ctx, user.ID, inv.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

		e.investments.now = func() time.Time { return testNow.AddDate(0, 6, 0) }
		defer func() { e.investments.now = fixedClock }()
		done, err := e.investments.Complete(ctx, user.ID, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvestmentCompleted, done.Status)
		assert.NotNil(t, done.CompletedAt)
	})

	t.Run("cancel only while pending", func(t *testing.T) {
		inv := e.invest(t, user.ID, pkg.ID, "10000")
		assert.ErrorIs(t, e.investments.Cancel(ctx, other.ID, inv.ID), pkgerrors.ErrInvestmentNotFound)
		require.NoError(t, e.investments.Cancel(ctx, user.ID, inv.ID))

		stored, err := e.investments.AdminGet(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvestmentCancelled, stored.Status)
		assert.NotNil(t, stored.DeletedAt)

		active := e.invest(t, user.ID, pkg.ID, "10000")
		_, err = e.investments.ForceApprove(ctx, active.ID)
		require.NoError(t, err)
		assert.ErrorIs(t, e.investments.Cancel(ctx, user.ID, active.ID), pkgerrors.ErrInvalidTransition)
	})
}
