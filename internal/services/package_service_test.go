package service

import (
	"context"
	"testing"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageService_Create(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := NewPackageService(e.store)

	p := &models.InvestmentPackage{
		Name: "Catfish Ponds", Category: "aquaculture", RiskLevel: "high",
		MinAmount: dec("5000"), MaxAmount: dec("100000"), InterestRate: dec("25"),
		DurationMonths: 4, TotalSlots: 12,
	}
	require.NoError(t, svc.Create(ctx, p))
	assert.Equal(t, models.PackageActive, p.Status)
	assert.Equal(t, 12, p.AvailableSlots)

	bad := []*models.InvestmentPackage{
		{Name: "", MinAmount: dec("1"), MaxAmount: dec("2"), DurationMonths: 1, TotalSlots: 1},
		{Name: "x", Category: "mining", MinAmount: dec("1"), MaxAmount: dec("2"), DurationMonths: 1, TotalSlots: 1},
		{Name: "x", MinAmount: dec("5"), MaxAmount: dec("2"), DurationMonths: 1, TotalSlots: 1},
		{Name: "x", MinAmount: dec("1"), MaxAmount: dec("2"), InterestRate: dec("101"), DurationMonths: 1, TotalSlots: 1},
		{Name: "x", MinAmount: dec("1"), MaxAmount: dec("2"), DurationMonths: 1, TotalSlots: 2, AvailableSlots: 3},
	}
	for _, b := range bad {
		assert.ErrorIs(t, svc.Create(ctx, b), pkgerrors.ErrInvalidInput)
	}
}

func TestPackageService_ListAndStats(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := NewPackageService(e.store)

	open := e.pkg(t, 4)
	closed := e.pkg(t, 2)
	closed.Status = models.PackageSuspended
	require.NoError(t, svc.Update(ctx, closed))

	active, err := svc.List(ctx, models.PackageFilter{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)

	suspended, err := svc.List(ctx, models.PackageFilter{Status: models.PackageSuspended})
	require.NoError(t, err)
	require.Len(t, suspended, 1)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPackages)
	assert.Equal(t, 1, stats.ActivePackages)
	assert.Equal(t, 6, stats.TotalSlots)

	assert.Contains(t, svc.Categories(), "livestock")
}

func TestPackageService_UpdateUnknown(t *testing.T) {
	e := newEnv(t)
	svc := NewPackageService(e.store)
	p := &models.InvestmentPackage{
		ID: 404, Name: "Ghost", Status: models.PackageActive,
		MinAmount: dec("1"), MaxAmount: dec("2"), DurationMonths: 1, TotalSlots: 1, AvailableSlots: 1,
	}
	assert.ErrorIs(t, svc.Update(context.Background(), p), pkgerrors.ErrPackageNotFound)
}
