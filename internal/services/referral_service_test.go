package service

import (
	"context"
	"testing"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferralService_MyCodeIssuesOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	user := e.user(t, "ada")

	first, err := e.referrals.MyCode(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, first.IsActive)

	second, err := e.referrals.MyCode(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Code, second.Code)
}

func TestReferralService_MarkEarningPaid(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	referrer := e.user(t, "referrer")
	referred := e.user(t, "referred")

	code, err := e.referrals.MyCode(ctx, referrer.ID)
	require.NoError(t, err)
	require.NoError(t, e.store.Referrals().Create(ctx, &models.Referral{
		ReferrerID: referrer.ID, ReferredUserID: referred.ID, ReferralCodeID: code.ID,
		Status: models.ReferralPending, CommissionRate: dec("5"),
	}))
	e.invest(t, referred.ID, e.pkg(t, 5).ID, "40000")

	earnings, err := e.referrals.Earnings(ctx, models.EarningFilter{ReferrerID: &referrer.ID, Status: models.EarningPending})
	require.NoError(t, err)
	require.Len(t, earnings, 1)

	paid, err := e.referrals.MarkEarningPaid(ctx, earnings[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.EarningPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	_, err = e.referrals.MarkEarningPaid(ctx, earnings[0].ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	bonuses, err := e.store.Transactions().List(ctx, models.TransactionFilter{UserID: &referrer.ID, Type: models.TypeReferralBonus})
	require.NoError(t, err)
	require.Len(t, bonuses, 1)
	assert.True(t, dec("2000").Equal(bonuses[0].Amount))

	stats, err := e.referrals.Stats(ctx, &referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalReferrals)
	assert.Equal(t, 1, stats.ActiveReferrals)
	assert.True(t, dec("2000").Equal(stats.PaidEarnings))
	assert.True(t, stats.PendingEarnings.IsZero())

	codes, err := e.referrals.CodeStats(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, codes)
	for _, c := range codes {
		if c.ID == code.ID {
			assert.Equal(t, 1, c.TotalReferrals)
			assert.True(t, dec("2000").Equal(c.PaidEarnings))
		}
	}
}
