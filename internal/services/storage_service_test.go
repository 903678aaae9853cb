package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/honeynil/agri-invest-service/internal/infrastructure/paystack"
	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (e *env) plan(t *testing.T, bags int) *models.StoragePlan {
	t.Helper()
	p := &models.StoragePlan{
		ProductName:           "Paddy Rice",
		BuyingPricePerBag:     dec("40000"),
		ProjectedSellingPrice: dec("52000"),
		StorageDueDate:        testNow.AddDate(0, 4, 0),
		TotalQuantity:         bags,
		MinimumQuantity:       1,
		MaximumQuantity:       50,
		IsActive:              true,
	}
	require.NoError(t, e.storage.CreatePlan(context.Background(), p))
	return p
}

// confirm settles a pending payment as successful through Verify.
func (e *env) confirm(t *testing.T, p *models.Payment) *models.Payment {
	t.Helper()
	e.gateway.On("Verify", mock.Anything, p.Reference).Return(&paystack.VerifyResult{
		ID: 5, Status: "success", Reference: p.Reference, AmountKobo: p.AmountInKobo(), Channel: "bank",
	}, nil).Once()
	settled, err := e.payments.Verify(context.Background(), p.Reference)
	require.NoError(t, err)
	return settled
}

func TestStorageService_CreatePlan(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	p := e.plan(t, 100)
	assert.Equal(t, 100, p.AvailableQuantity)
	assert.True(t, dec("30").Equal(p.ROIPercentage()))

	past := &models.StoragePlan{
		ProductName: "Maize", BuyingPricePerBag: dec("1"), ProjectedSellingPrice: dec("2"),
		StorageDueDate: testNow, TotalQuantity: 10,
	}
	assert.ErrorIs(t, e.storage.CreatePlan(ctx, past), pkgerrors.ErrInvalidInput)

	bad := &models.StoragePlan{
		ProductName: "Maize", BuyingPricePerBag: dec("1"), ProjectedSellingPrice: dec("2"),
		StorageDueDate: testNow.AddDate(0, 1, 0), TotalQuantity: 10, MinimumQuantity: 5, MaximumQuantity: 2,
	}
	assert.ErrorIs(t, e.storage.CreatePlan(ctx, bad), pkgerrors.ErrInvalidInput)
}

func TestStorageService_Purchase(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	user := e.user(t, "ada")
	plan := e.plan(t, 10)

	t.Run("reserves bags and opens checkout", func(t *testing.T) {
		inv, payment, err := e.storage.Purchase(ctx, user.ID, PurchaseInput{PlanID: plan.ID, Quantity: 4, CustomerPhone: "0803"})
		require.NoError(t, err)
		assert.Equal(t, models.StoragePending, inv.Status)
		assert.True(t, dec("160000").Equal(inv.TotalInvestmentAmount))
		assert.True(t, dec("208000").Equal(inv.ProjectedReturns))
		assert.Equal(t, "ada@farm.ng", inv.CustomerEmail)
		assert.Equal(t, payment.Reference, inv.PaymentReference)
		assert.Equal(t, models.PaymentForStorage, payment.Kind)

		stored, err := e.storage.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, 6, stored.AvailableQuantity)
	})

	t.Run("more than available", func(t *testing.T) {
		_, _, err := e.storage.Purchase(ctx, user.ID, PurchaseInput{PlanID: plan.ID, Quantity: 7})
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientCapacity)
	})

	t.Run("outside plan bounds", func(t *testing.T) {
		_, _, err := e.storage.Purchase(ctx, user.ID, PurchaseInput{PlanID: plan.ID, Quantity: 0})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		_, _, err = e.storage.Purchase(ctx, user.ID, PurchaseInput{PlanID: plan.ID, Quantity: 51})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("unknown plan", func(t *testing.T) {
		_, _, err := e.storage.Purchase(ctx, user.ID, PurchaseInput{PlanID: 999, Quantity: 1})
		assert.ErrorIs(t, err, pkgerrors.ErrStoragePlanNotFound)
	})
}

func TestStorageService_GatewayFailureReleasesBags(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.On("Initialize", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	user := e.user(t, "ada")
	plan := e.plan(t, 10)

	_, _, err := e.storage.Purchase(ctx, user.ID, PurchaseInput{PlanID: plan.ID, Quantity: 3})
	assert.ErrorIs(t, err, pkgerrors.ErrGateway)

	stored, err := e.storage.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.AvailableQuantity)

	invs, err := e.storage.List(ctx, models.StorageFilter{UserID: &user.ID})
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, models.StorageCancelled, invs[0].Status)
	assert.Equal(t, string(models.PaymentFailed), invs[0].PaymentStatus)
}

func TestStorageService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	user := e.user(t, "ada")
	plan := e.plan(t, 2)

	inv, payment, err := e.storage.Purchase(ctx, user.ID, PurchaseInput{PlanID: plan.ID, Quantity: 2})
	require.NoError(t, err)
	e.confirm(t, payment)

	active, err := e.storage.Get(ctx, &user.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StorageActive, active.Status)
	assert.Equal(t, string(models.PaymentSuccess), active.PaymentStatus)
	require.NotNil(t, active.PaymentDate)

	_, err = e.storage.Mature(ctx, user.ID, inv.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition, "not due yet")

	price := dec("55000")
	require.NoError(t, e.storage.AddUpdate(ctx, &models.StorageUpdate{
		InvestmentID: inv.ID, Type: models.UpdatePrice, Title: "Market moved", CurrentMarketPrice: &price,
	}))
	repriced, err := e.storage.Get(ctx, nil, inv.ID)
	require.NoError(t, err)
	assert.True(t, dec("110000").Equal(repriced.ProjectedReturns))

	e.storage.now = func() time.Time { return plan.StorageDueDate.Add(time.Hour) }
	matured, err := e.storage.Mature(ctx, user.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StorageMatured, matured.Status)

	completed, err := e.storage.Complete(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StorageCompleted, completed.Status)

	returns, err := e.store.Transactions().List(ctx, models.TransactionFilter{UserID: &user.ID, Type: models.TypeReturn})
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.True(t, dec("110000").Equal(returns[0].Amount))

	updates, err := e.storage.Updates(ctx, &user.ID, inv.ID)
	require.NoError(t, err)
	var types []models.StorageUpdateType
	for _, u := range updates {
		types = append(types, u.Type)
	}
	assert.ElementsMatch(t, []models.StorageUpdateType{
		models.UpdateStorageStart, models.UpdatePrice, models.UpdateMaturity, models.UpdateSaleComplete,
	}, types)

	other := e.user(t, "eve")
	_, err = e.storage.Updates(ctx, &other.ID, inv.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrStorageInvestmentNotFound)

	dash, err := e.storage.Dashboard(ctx, &user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.CompletedInvestments)
	assert.Equal(t, 2, dash.TotalBags)

	assert.ErrorIs(t, e.storage.DeletePlan(ctx, plan.ID), pkgerrors.ErrPlanHasInvestments)
}

func TestStorageService_CancelOverdue(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	user := e.user(t, "ada")
	plan := e.plan(t, 10)

	unpaid, _, err := e.storage.Purchase(ctx, user.ID, PurchaseInput{PlanID: plan.ID, Quantity: 3})
	require.NoError(t, err)
	paidInv, payment, err := e.storage.Purchase(ctx, user.ID, PurchaseInput{PlanID: plan.ID, Quantity: 2})
	require.NoError(t, err)
	e.confirm(t, payment)

	n, err := e.storage.CancelOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is due yet")

	e.storage.now = func() time.Time { return plan.StorageDueDate }
	n, err = e.storage.CancelOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cancelled, err := e.storage.Get(ctx, nil, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StorageCancelled, cancelled.Status)
	assert.Equal(t, string(models.PaymentAbandoned), cancelled.PaymentStatus)

	stillActive, err := e.storage.Get(ctx, nil, paidInv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StorageActive, stillActive.Status)

	stored, err := e.storage.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, stored.AvailableQuantity)
}

func TestStorageService_RefundReleasesBags(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	user := e.user(t, "ada")
	plan := e.plan(t, 10)

	inv, payment, err := e.storage.Purchase(ctx, user.ID, PurchaseInput{PlanID: plan.ID, Quantity: 5})
	require.NoError(t, err)
	e.confirm(t, payment)
	e.gateway.On("Refund", mock.Anything, payment.Reference, int64(20000000), mock.Anything).Return(nil).Once()

	_, err = e.payments.Refund(ctx, payment.Reference, nil, "")
	require.NoError(t, err)

	cancelled, err := e.storage.Get(ctx, nil, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StorageCancelled, cancelled.Status)
	assert.Equal(t, string(models.PaymentRefunded), cancelled.PaymentStatus)

	stored, err := e.storage.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.AvailableQuantity)
}
