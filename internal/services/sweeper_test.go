package service

import (
	"context"
	"testing"
	"time"

	"github.com/honeynil/agri-invest-service/internal/infrastructure/paystack"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.okInitialize()
	user := e.user(t, "ada")
	inv := e.invest(t, user.ID, e.pkg(t, 3).ID, "10000")
	p, err := e.payments.Initialize(ctx, user.ID, models.PaymentForInvestment, inv.ID)
	require.NoError(t, err)
	e.gateway.On("Verify", mock.Anything, p.Reference).Return(&paystack.VerifyResult{Status: "abandoned", Reference: p.Reference}, nil)

	sw := NewSweeper(e.payments, e.storage, time.Minute)
	sw.now = func() time.Time { return time.Now().Add(time.Hour) }
	sw.Sweep(ctx)

	stored, err := e.store.Payments().GetByReference(ctx, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentAbandoned, stored.Status)
}

func TestSweeper_StartRejectsBadSchedule(t *testing.T) {
	e := newEnv(t)
	sw := NewSweeper(e.payments, e.storage, time.Minute)
	assert.Error(t, sw.Start("every tuesday"))
}
