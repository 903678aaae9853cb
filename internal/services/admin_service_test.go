package service

import (
	"context"
	"testing"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminService_Dashboard(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	user := e.user(t, "ada")
	e.user(t, "bola")
	pkg := e.pkg(t, 5)
	e.invest(t, user.ID, pkg.ID, "10000")
	active := e.invest(t, user.ID, pkg.ID, "20000")
	_, err := e.investments.ForceApprove(ctx, active.ID)
	require.NoError(t, err)

	d, err := e.admin.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.TotalUsers)
	assert.Equal(t, 1, d.ActiveInvestments)
	assert.Equal(t, 1, d.PendingInvestments)
	assert.Equal(t, 1, d.ActivePackages)
	assert.Equal(t, 1, d.CompletedTransactions)
	assert.Zero(t, d.Orders)
}

func TestAdminService_Ledger(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	user := e.user(t, "ada")
	inv := e.invest(t, user.ID, e.pkg(t, 5).ID, "10000")
	storage, _, err := e.storage.Purchase(ctx, user.ID, PurchaseInput{PlanID: e.plan(t, 10).ID, Quantity: 1})
	require.NoError(t, err)

	all, err := e.admin.Ledger(ctx, LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyStorage, err := e.admin.Ledger(ctx, LedgerFilter{Kind: models.LedgerStorage})
	require.NoError(t, err)
	require.Len(t, onlyStorage, 1)
	assert.Equal(t, "STO-"+itoa(storage.ID), onlyStorage[0].Ref.String())

	entry, err := e.admin.LedgerEntry(ctx, models.LedgerRef{Kind: models.LedgerInvestment, ID: inv.ID})
	require.NoError(t, err)
	assert.True(t, dec("10000").Equal(entry.Amount))
	assert.Equal(t, "pending", entry.Status)

	_, err = e.admin.LedgerEntry(ctx, models.LedgerRef{Kind: models.LedgerOrder, ID: 999})
	assert.ErrorIs(t, err, pkgerrors.ErrOrderNotFound)
}

func TestAdminService_PatchLedger(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	user := e.user(t, "ada")
	pkg := e.pkg(t, 5)

	t.Run("pending amount recomputes expected return", func(t *testing.T) {
		inv := e.invest(t, user.ID, pkg.ID, "10000")
		ref := models.LedgerRef{Kind: models.LedgerInvestment, ID: inv.ID}

		entry, err := e.admin.PatchLedger(ctx, ref, models.LedgerPatch{Amount: ptr(dec("15000"))})
		require.NoError(t, err)
		assert.True(t, dec("15000").Equal(entry.Amount))

		stored, err := e.investments.AdminGet(ctx, inv.ID)
		require.NoError(t, err)
		assert.True(t, dec("3000").Equal(stored.ExpectedReturn))
	})

	t.Run("active amount is frozen", func(t *testing.T) {
		inv := e.invest(t, user.ID, pkg.ID, "10000")
		_, err := e.investments.ForceApprove(ctx, inv.ID)
		require.NoError(t, err)

		_, err = e.admin.PatchLedger(ctx, models.LedgerRef{Kind: models.LedgerInvestment, ID: inv.ID}, models.LedgerPatch{Amount: ptr(dec("1"))})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	})

	t.Run("status cannot skip the payment", func(t *testing.T) {
		inv := e.invest(t, user.ID, pkg.ID, "10000")
		_, err := e.admin.PatchLedger(ctx, models.LedgerRef{Kind: models.LedgerInvestment, ID: inv.ID}, models.LedgerPatch{Status: ptr("active")})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

		entry, err := e.admin.PatchLedger(ctx, models.LedgerRef{Kind: models.LedgerInvestment, ID: inv.ID}, models.LedgerPatch{Status: ptr("cancelled")})
		require.NoError(t, err)
		assert.Equal(t, "cancelled", entry.Status)
	})

	t.Run("empty patch", func(t *testing.T) {
		_, err := e.admin.PatchLedger(ctx, models.LedgerRef{Kind: models.LedgerOrder, ID: 1}, models.LedgerPatch{})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})
}
