package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/agri-invest-service/internal/infrastructure/observability"
	"github.com/honeynil/agri-invest-service/internal/repository"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// track opens a span for a repository call and returns the func that closes
// it and records the call metrics.
func track(ctx context.Context, component, method string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := otel.Tracer(component).Start(ctx, method)
	span.SetAttributes(attrs...)
	start := time.Now()
	return ctx, func(errp *error) {
		status := "success"
		if errp != nil && *errp != nil {
			status = "error"
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
		}
		observability.RepositoryCalls.WithLabelValues(method, status).Inc()
		observability.RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		span.End()
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isForeignKeyViolation reports a delete refused because other rows still
// reference the target.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == "23503"
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// rowsAffected turns a zero-row UPDATE/DELETE into notFound.
func rowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

type repos struct {
	users              *PostgresUserRepository
	notifications      *PostgresNotificationRepository
	packages           *PostgresPackageRepository
	investments        *PostgresInvestmentRepository
	payments           *PostgresPaymentRepository
	transactions       *PostgresTransactionRepository
	withdrawals        *PostgresWithdrawalRepository
	referrals          *PostgresReferralRepository
	storagePlans       *PostgresStoragePlanRepository
	storageInvestments *PostgresStorageInvestmentRepository
	products           *PostgresProductRepository
	carts              *PostgresCartRepository
	orders             *PostgresOrderRepository
}

func newRepos(db DBTX) *repos {
	return &repos{
		users:              NewPostgresUserRepository(db),
		notifications:      NewPostgresNotificationRepository(db),
		packages:           NewPostgresPackageRepository(db),
		investments:        NewPostgresInvestmentRepository(db),
		payments:           NewPostgresPaymentRepository(db),
		transactions:       NewPostgresTransactionRepository(db),
		withdrawals:        NewPostgresWithdrawalRepository(db),
		referrals:          NewPostgresReferralRepository(db),
		storagePlans:       NewPostgresStoragePlanRepository(db),
		storageInvestments: NewPostgresStorageInvestmentRepository(db),
		products:           NewPostgresProductRepository(db),
		carts:              NewPostgresCartRepository(db),
		orders:             NewPostgresOrderRepository(db),
	}
}

func (r *repos) Users() repository.UserRepository                 { return r.users }
func (r *repos) Notifications() repository.NotificationRepository { return r.notifications }
func (r *repos) Packages() repository.PackageRepository           { return r.packages }
func (r *repos) Investments() repository.InvestmentRepository     { return r.investments }
func (r *repos) Payments() repository.PaymentRepository           { return r.payments }
func (r *repos) Transactions() repository.TransactionRepository   { return r.transactions }
func (r *repos) Withdrawals() repository.WithdrawalRepository     { return r.withdrawals }
func (r *repos) Referrals() repository.ReferralRepository         { return r.referrals }
func (r *repos) StoragePlans() repository.StoragePlanRepository   { return r.storagePlans }
func (r *repos) StorageInvestments() repository.StorageInvestmentRepository {
	return r.storageInvestments
}
func (r *repos) Products() repository.ProductRepository { return r.products }
func (r *repos) Carts() repository.CartRepository       { return r.carts }
func (r *repos) Orders() repository.OrderRepository     { return r.orders }

type Store struct {
	*repos
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{repos: newRepos(db), db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	ctx, done := track(ctx, "store", "WithinTx")
	defer done(&err)

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "WithinTx", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err = fn(ctx, newRepos(dbTx)); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "method", "WithinTx", "error", rbErr)
			return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
		}
		return err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "WithinTx", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
