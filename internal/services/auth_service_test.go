package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/honeynil/agri-invest-service/internal/infrastructure/auth"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository/memory"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAuth(t *testing.T) (*authService, *memory.Store, *mockRedis, *auth.TokenManager) {
	t.Helper()
	store := memory.NewStore()
	rc := &mockRedis{}
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	return NewAuthService(store, rc, tokens, dec("5")), store, rc, tokens
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newAuth(t)

	referrer, err := svc.Register(ctx, RegisterInput{Email: "Ada@Farm.ng", Username: "ada", Password: "harvest-2026"})
	require.NoError(t, err)
	assert.Equal(t, "ada@farm.ng", referrer.Email)
	assert.NotEqual(t, "harvest-2026", referrer.PasswordHash)

	code, err := store.Referrals().GetCodeByUser(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9A-F]{8}$`, code.Code)

	t.Run("with referral code", func(t *testing.T) {
		referred, err := svc.Register(ctx, RegisterInput{
			Email: "bola@farm.ng", Username: "bola", Password: "harvest-2026", ReferralCode: " " + code.Code,
		})
		require.NoError(t, err)

		ref, err := store.Referrals().GetByReferredUser(ctx, referred.ID)
		require.NoError(t, err)
		assert.Equal(t, referrer.ID, ref.ReferrerID)
		assert.Equal(t, models.ReferralPending, ref.Status)
		assert.True(t, dec("5").Equal(ref.CommissionRate))
	})

	t.Run("unknown referral code rolls back", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterInput{Email: "chi@farm.ng", Username: "chi", Password: "harvest-2026", ReferralCode: "NOPE0000"})
		assert.ErrorIs(t, err, pkgerrors.ErrReferralCodeNotFound)

		_, err = store.Users().GetByUsername(ctx, "chi")
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterInput{Email: "other@farm.ng", Username: "ada", Password: "harvest-2026"})
		assert.ErrorIs(t, err, pkgerrors.ErrUserAlreadyExists)
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterInput{Email: "d@farm.ng", Username: "d", Password: "short"})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	svc, _, rc, tokens := newAuth(t)
	user, err := svc.Register(ctx, RegisterInput{Email: "ada@farm.ng", Username: "ada", Password: "harvest-2026"})
	require.NoError(t, err)

	rc.On("Set", mock.Anything, auth.TokenKey(user.ID), mock.AnythingOfType("string"), time.Hour).Return(nil)

	for _, login := range []string{"ada", "ADA@farm.ng"} {
		token, got, err := svc.Login(ctx, login, "harvest-2026")
		require.NoError(t, err, login)
		assert.Equal(t, user.ID, got.ID)

		claims, err := tokens.Parse(token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
		assert.False(t, claims.IsAdmin)
	}
	rc.AssertNumberOfCalls(t, "Set", 2)

	_, _, err = svc.Login(ctx, "ada", "wrong-password")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody", "harvest-2026")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
}

func TestAuthService_LoginSessionStoreDown(t *testing.T) {
	ctx := context.Background()
	svc, _, rc, _ := newAuth(t)
	_, err := svc.Register(ctx, RegisterInput{Email: "ada@farm.ng", Username: "ada", Password: "harvest-2026"})
	require.NoError(t, err)
	rc.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	_, _, err = svc.Login(ctx, "ada", "harvest-2026")
	assert.Error(t, err)
}

func TestAuthService_Logout(t *testing.T) {
	svc, _, rc, _ := newAuth(t)
	rc.On("Del", mock.Anything, "user:7:token").Return(nil)

	require.NoError(t, svc.Logout(context.Background(), 7))
	rc.AssertExpectations(t)
}

func TestAuthService_BankAccountKeepsRecipient(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newAuth(t)

	require.NoError(t, store.Users().UpsertBankAccount(ctx, &models.BankAccount{
		UserID: 3, AccountNumber: "0123456789", BankCode: "058", AccountName: "Ada", RecipientCode: "RCP_1",
	}))

	require.NoError(t, svc.SetBankAccount(ctx, &models.BankAccount{UserID: 3, AccountNumber: "0123456789", BankCode: "058", AccountName: "Ada Obi"}))
	got, err := svc.BankAccount(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "RCP_1", got.RecipientCode)
	assert.Equal(t, "Ada Obi", got.AccountName)

	require.NoError(t, svc.SetBankAccount(ctx, &models.BankAccount{UserID: 3, AccountNumber: "9999999999", BankCode: "058", AccountName: "Ada Obi"}))
	got, err = svc.BankAccount(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, got.RecipientCode)

	assert.ErrorIs(t, svc.SetBankAccount(ctx, &models.BankAccount{UserID: 3}), pkgerrors.ErrInvalidInput)
}
