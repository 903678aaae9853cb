package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
)

type PackageService interface {
	List(ctx context.Context, filter models.PackageFilter) ([]models.InvestmentPackage, error)
	Get(ctx context.Context, id int64) (*models.InvestmentPackage, error)
	Categories() []string
	Create(ctx context.Context, pkg *models.InvestmentPackage) error
	Update(ctx context.Context, pkg *models.InvestmentPackage) error
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*models.PackageStats, error)
}

type packageService struct {
	store repository.Store
}

func NewPackageService(store repository.Store) *packageService {
	return &packageService{store: store}
}

// List returns active packages unless the filter asks for another status.
func (s *packageService) List(ctx context.Context, filter models.PackageFilter) ([]models.InvestmentPackage, error) {
	if filter.Status == "" {
		filter.Status = models.PackageActive
	}
	return s.store.Packages().List(ctx, filter)
}

func (s *packageService) Get(ctx context.Context, id int64) (*models.InvestmentPackage, error) {
	return s.store.Packages().GetByID(ctx, id)
}

func (s *packageService) Categories() []string {
	return slices.Clone(models.PackageCategories)
}

func validatePackage(pkg *models.InvestmentPackage) error {
	switch {
	case strings.TrimSpace(pkg.Name) == "":
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "name is required")
	case pkg.Category != "" && !slices.Contains(models.PackageCategories, pkg.Category):
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "unknown category %q", pkg.Category)
	case pkg.RiskLevel != "" && !slices.Contains(models.RiskLevels, pkg.RiskLevel):
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "unknown risk level %q", pkg.RiskLevel)
	case !pkg.Status.Valid():
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "unknown status %q", pkg.Status)
	case !pkg.MinAmount.IsPositive():
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "minimum amount must be positive")
	case pkg.MinAmount.GreaterThan(pkg.MaxAmount):
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "minimum amount cannot be greater than maximum amount")
	case pkg.InterestRate.IsNegative() || pkg.InterestRate.GreaterThan(decimal.NewFromInt(100)):
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "interest rate must be between 0 and 100")
	case pkg.DurationMonths <= 0:
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "duration must be at least one month")
	case pkg.TotalSlots <= 0:
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "total slots must be positive")
	case pkg.AvailableSlots < 0 || pkg.AvailableSlots > pkg.TotalSlots:
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "available slots cannot exceed total slots")
	case !pkg.EndDate.IsZero() && pkg.EndDate.Before(pkg.StartDate):
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "end date cannot be before start date")
	}
	return nil
}

func (s *packageService) Create(ctx context.Context, pkg *models.InvestmentPackage) error {
	ctx, span := startSpan(ctx, "package-service", "Create")
	defer span.End()

	if pkg.Status == "" {
		pkg.Status = models.PackageActive
	}
	if pkg.AvailableSlots == 0 {
		pkg.AvailableSlots = pkg.TotalSlots
	}
	if err := validatePackage(pkg); err != nil {
		return fail(span, err, "invalid package")
	}
	if err := s.store.Packages().Create(ctx, pkg); err != nil {
		return fail(span, err, "package create failed")
	}
	slog.Info("package created", "package_id", pkg.ID, "name", pkg.Name, "slots", pkg.TotalSlots)
	return nil
}

func (s *packageService) Update(ctx context.Context, pkg *models.InvestmentPackage) error {
	ctx, span := startSpan(ctx, "package-service", "Update")
	defer span.End()

	if err := validatePackage(pkg); err != nil {
		return fail(span, err, "invalid package")
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Packages().GetByID(ctx, pkg.ID); err != nil {
			return err
		}
		return repos.Packages().Update(ctx, pkg)
	})
	if err != nil {
		return fail(span, err, "package update failed")
	}
	slog.Info("package updated", "package_id", pkg.ID, "status", pkg.Status, "available_slots", pkg.AvailableSlots)
	return nil
}

func (s *packageService) Delete(ctx context.Context, id int64) error {
	if err := s.store.Packages().Delete(ctx, id); err != nil {
		slog.Warn("package delete failed", "package_id", id, "error", err)
		return err
	}
	slog.Info("package deleted", "package_id", id)
	return nil
}

func (s *packageService) Stats(ctx context.Context) (*models.PackageStats, error) {
	return s.store.Packages().Stats(ctx)
}
