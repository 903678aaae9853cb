package service

import (
	"context"
	"errors"
	"testing"

	"github.com/honeynil/agri-invest-service/internal/infrastructure/paystack"
	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// matured creates a completed investment of amount with the given actual return.
func (e *env) matured(t *testing.T, userID, packageID int64, amount, actual string) *models.Investment {
	t.Helper()
	inv := e.invest(t, userID, packageID, amount)
	_, err := e.investments.ForceApprove(context.Background(), inv.ID)
	require.NoError(t, err)
	return e.completeWithReturn(t, inv.ID, actual)
}

func TestWithdrawalService_Create(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	user := e.user(t, "ada")
	pkg := e.pkg(t, 10)

	t.Run("nothing eligible", func(t *testing.T) {
		_, err := e.withdrawals.Create(ctx, user.ID, models.WithdrawalFull, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrNothingToWithdraw)
	})

	first := e.matured(t, user.ID, pkg.ID, "10000", "12000")
	second := e.matured(t, user.ID, pkg.ID, "20000", "23000")

	t.Run("completed without actual return is not eligible", func(t *testing.T) {
		inv := e.invest(t, user.ID, pkg.ID, "5000")
		_, err := e.investments.ForceApprove(ctx, inv.ID)
		require.NoError(t, err)
		_, err = e.investments.ForceComplete(ctx, inv.ID, nil)
		require.NoError(t, err)

		_, err = e.withdrawals.Create(ctx, user.ID, models.WithdrawalFull, []int64{inv.ID})
		assert.ErrorIs(t, err, pkgerrors.ErrNothingToWithdraw)
	})

	t.Run("interest pays only the gain", func(t *testing.T) {
		w, err := e.withdrawals.Create(ctx, user.ID, models.WithdrawalInterest, []int64{first.ID, first.ID})
		require.NoError(t, err)
		assert.True(t, dec("2000").Equal(w.Amount))
		assert.Equal(t, []int64{first.ID}, w.InvestmentIDs)
		assert.Equal(t, models.WithdrawalPending, w.Status)

		_, err = e.withdrawals.Create(ctx, user.ID, models.WithdrawalFull, []int64{first.ID})
		assert.ErrorIs(t, err, pkgerrors.ErrNothingToWithdraw, "linked investments cannot be withdrawn twice")
	})

	t.Run("full takes everything remaining", func(t *testing.T) {
		w, err := e.withdrawals.Create(ctx, user.ID, "", nil)
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawalFull, w.Type)
		assert.True(t, dec("23000").Equal(w.Amount))
		assert.Equal(t, []int64{second.ID}, w.InvestmentIDs)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := e.withdrawals.Create(ctx, user.ID, "everything", nil)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})
}

func TestWithdrawalService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	user := e.user(t, "ada")
	other := e.user(t, "eve")
	pkg := e.pkg(t, 10)
	inv := e.matured(t, user.ID, pkg.ID, "10000", "12000")

	w, err := e.withdrawals.Create(ctx, user.ID, models.WithdrawalFull, nil)
	require.NoError(t, err)

	_, err = e.withdrawals.Get(ctx, &other.ID, w.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrWithdrawalNotFound)

	_, err = e.withdrawals.MarkPaid(ctx, w.ID, "")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition, "pending cannot be paid")

	approved, err := e.withdrawals.Approve(ctx, w.ID, "checked")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalApproved, approved.Status)
	assert.Regexp(t, `^WDR-[0-9A-F]{12}$`, approved.PaymentReference)
	assert.Equal(t, "checked", approved.AdminNotes)

	_, err = e.withdrawals.Reject(ctx, w.ID, "")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	paid, err := e.withdrawals.MarkPaid(ctx, w.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, paid.Status)
	assert.NotNil(t, paid.ProcessedAt)
	assert.Equal(t, "checked", paid.AdminNotes)

	txs, err := e.store.Transactions().List(ctx, models.TransactionFilter{UserID: &user.ID, Type: models.TypeWithdrawal})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, dec("12000").Equal(txs[0].Amount))
	assert.Equal(t, approved.PaymentReference, txs[0].PaymentReference)

	// The investment stays linked to the paid request.
	stored, err := e.investments.AdminGet(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.WithdrawalRequestID)
	assert.Equal(t, w.ID, *stored.WithdrawalRequestID)

	_, err = e.investments.Update(ctx, inv.ID, InvestmentPatch{ActualReturn: ptr(dec("1"))}, true)
	assert.ErrorIs(t, err, pkgerrors.ErrActualReturnLocked)

	stats, err := e.withdrawals.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CompletedWithdrawals)
	assert.True(t, dec("12000").Equal(stats.TotalAmount))
}

func TestWithdrawalService_RejectReleasesInvestments(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	user := e.user(t, "ada")
	inv := e.matured(t, user.ID, e.pkg(t, 10).ID, "10000", "12000")

	w, err := e.withdrawals.Create(ctx, user.ID, models.WithdrawalFull, nil)
	require.NoError(t, err)
	rejected, err := e.withdrawals.Reject(ctx, w.ID, "docs missing")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalRejected, rejected.Status)

	eligible, err := e.investments.Withdrawable(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, inv.ID, eligible[0].ID)

	again, err := e.withdrawals.Create(ctx, user.ID, models.WithdrawalFull, []int64{inv.ID})
	require.NoError(t, err)
	assert.NotEqual(t, w.ID, again.ID)
}

func TestWithdrawalService_Disburse(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*env, *models.User, *models.WithdrawalRequest) {
		e := newEnv(t)
		user := e.user(t, "ada")
		e.matured(t, user.ID, e.pkg(t, 10).ID, "10000", "12000")
		w, err := e.withdrawals.Create(ctx, user.ID, models.WithdrawalFull, nil)
		require.NoError(t, err)
		w, err = e.withdrawals.Approve(ctx, w.ID, "")
		require.NoError(t, err)
		return e, user, w
	}

	t.Run("requires bank account", func(t *testing.T) {
		e, _, w := setup(t)
		_, err := e.withdrawals.Disburse(ctx, w.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrBankAccountNotFound)
		e.gateway.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
	})

	t.Run("creates recipient once and completes", func(t *testing.T) {
		e, user, w := setup(t)
		require.NoError(t, e.store.Users().UpsertBankAccount(ctx, &models.BankAccount{
			UserID: user.ID, AccountNumber: "0123456789", BankCode: "058", AccountName: "Ada Obi",
		}))
		e.gateway.On("CreateRecipient", mock.Anything, paystack.RecipientRequest{
			Name: "Ada Obi", AccountNumber: "0123456789", BankCode: "058",
		}).Return("RCP_abc", nil).Once()
		e.gateway.On("Transfer", mock.Anything, paystack.TransferRequest{
			AmountKobo: 1200000, Recipient: "RCP_abc", Reference: w.PaymentReference, Reason: "Withdrawal #" + itoa(w.ID),
		}).Return(&paystack.TransferResult{TransferCode: "TRF_1", Status: "success"}, nil).Once()

		done, err := e.withdrawals.Disburse(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawalCompleted, done.Status)

		account, err := e.store.Users().GetBankAccount(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "RCP_abc", account.RecipientCode)

		_, err = e.withdrawals.Disburse(ctx, w.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
		e.gateway.AssertExpectations(t)
	})

	t.Run("failed transfer fails request and frees investments", func(t *testing.T) {
		e, user, w := setup(t)
		require.NoError(t, e.store.Users().UpsertBankAccount(ctx, &models.BankAccount{
			UserID: user.ID, AccountNumber: "0123456789", BankCode: "058", AccountName: "Ada Obi", RecipientCode: "RCP_known",
		}))
		e.gateway.On("Transfer", mock.Anything, mock.Anything).Return(nil, errors.New("insufficient balance")).Once()

		_, err := e.withdrawals.Disburse(ctx, w.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrGateway)
		e.gateway.AssertNotCalled(t, "CreateRecipient", mock.Anything, mock.Anything)

		failed, err := e.withdrawals.Get(ctx, nil, w.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawalFailed, failed.Status)
		assert.Contains(t, failed.AdminNotes, "insufficient balance")

		eligible, err := e.investments.Withdrawable(ctx, user.ID)
		require.NoError(t, err)
		assert.Len(t, eligible, 1)
	})

	t.Run("locked by another worker", func(t *testing.T) {
		e, _, w := setup(t)
		rc := &mockRedis{}
		rc.On("SetNX", mock.Anything, "withdrawal:"+itoa(w.ID)+":lock", mock.Anything, lockTTL).Return(false, nil)
		e.withdrawals.redisClient = rc

		_, err := e.withdrawals.Disburse(ctx, w.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrResourceLocked)
		rc.AssertExpectations(t)
	})
}
