package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

type PostgresUserRepository struct {
	db DBTX
}

func NewPostgresUserRepository(db DBTX) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, email, username, first_name, last_name, password_hash, is_admin, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) (err error) {
	ctx, done := track(ctx, "user-repository", "CreateUser")
	defer done(&err)

	if user == nil {
		err = pkgerrors.ErrNilUser
		return err
	}
	if user.Username == "" || user.Email == "" || user.PasswordHash == "" {
		err = fmt.Errorf("%w: email, username and password are required", pkgerrors.ErrInvalidInput)
		return err
	}

	query := `
	INSERT INTO users (email, username, first_name, last_name, password_hash, is_admin)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		user.Email, user.Username, user.FirstName, user.LastName, user.PasswordHash, user.IsAdmin,
	).Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		slog.Warn("user already exists", "method", "Create", "username", user.Username, "email", user.Email)
		return pkgerrors.ErrUserAlreadyExists
	}
	if err != nil {
		slog.Error("failed to create user", "method", "Create", "username", user.Username, "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", "method", "Create", "user_id", user.ID, "username", user.Username)
	return nil
}

func (r *PostgresUserRepository) getBy(ctx context.Context, method, column string, value any) (user *models.User, err error) {
	ctx, done := track(ctx, "user-repository", method)
	defer done(&err)

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	user, err = scanUser(r.db.QueryRowContext(ctx, query, value))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrUserNotFound
	}
	if err != nil {
		slog.Error("failed to get user", "method", method, "error", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getBy(ctx, "GetUserByID", "id", id)
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}
	return r.getBy(ctx, "GetUserByEmail", "email", email)
}

func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	return r.getBy(ctx, "GetUserByUsername", "username", username)
}

func (r *PostgresUserRepository) Count(ctx context.Context) (n int, err error) {
	ctx, done := track(ctx, "user-repository", "CountUsers")
	defer done(&err)

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (r *PostgresUserRepository) UpsertBankAccount(ctx context.Context, account *models.BankAccount) (err error) {
	ctx, done := track(ctx, "user-repository", "UpsertBankAccount", attribute.Int64("user_id", account.UserID))
	defer done(&err)

	query := `
	INSERT INTO bank_accounts (user_id, account_number, bank_code, bank_name, account_name, recipient_code)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (user_id) DO UPDATE SET
		account_number = EXCLUDED.account_number,
		bank_code = EXCLUDED.bank_code,
		bank_name = EXCLUDED.bank_name,
		account_name = EXCLUDED.account_name,
		recipient_code = EXCLUDED.recipient_code,
		updated_at = NOW()
	RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		account.UserID, account.AccountNumber, account.BankCode, account.BankName, account.AccountName, account.RecipientCode,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		slog.Error("failed to upsert bank account", "method", "UpsertBankAccount", "user_id", account.UserID, "error", err)
		return fmt.Errorf("failed to upsert bank account: %w", err)
	}
	slog.Info("bank account saved", "method", "UpsertBankAccount", "user_id", account.UserID)
	return nil
}

func (r *PostgresUserRepository) GetBankAccount(ctx context.Context, userID int64) (acc *models.BankAccount, err error) {
	ctx, done := track(ctx, "user-repository", "GetBankAccount", attribute.Int64("user_id", userID))
	defer done(&err)

	var a models.BankAccount
	query := `SELECT id, user_id, account_number, bank_code, bank_name, account_name, recipient_code, created_at, updated_at
	FROM bank_accounts WHERE user_id = $1`
	err = r.db.QueryRowContext(ctx, query, userID).Scan(
		&a.ID, &a.UserID, &a.AccountNumber, &a.BankCode, &a.BankName, &a.AccountName, &a.RecipientCode, &a.CreatedAt, &a.UpdatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrBankAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank account: %w", err)
	}
	return &a, nil
}

type PostgresNotificationRepository struct {
	db DBTX
}

func NewPostgresNotificationRepository(db DBTX) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *models.Notification) (err error) {
	ctx, done := track(ctx, "notification-repository", "CreateNotification", attribute.Int64("user_id", n.UserID))
	defer done(&err)

	query := `INSERT INTO notifications (user_id, notification_type, message, is_read, created_at)
	VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, NOW())) RETURNING id, created_at`
	var createdAt sql.NullTime
	if !n.CreatedAt.IsZero() {
		createdAt = sql.NullTime{Time: n.CreatedAt, Valid: true}
	}
	err = r.db.QueryRowContext(ctx, query, n.UserID, n.Type, n.Message, n.IsRead, createdAt).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		slog.Error("failed to create notification", "method", "Create", "user_id", n.UserID, "error", err)
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool) (out []models.Notification, err error) {
	ctx, done := track(ctx, "notification-repository", "ListNotifications", attribute.Int64("user_id", userID))
	defer done(&err)

	query := `SELECT id, user_id, notification_type, message, is_read, created_at
	FROM notifications WHERE user_id = $1 AND ($2 = FALSE OR is_read = FALSE)
	ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n models.Notification
		if err = rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, userID, id int64) (err error) {
	ctx, done := track(ctx, "notification-repository", "MarkNotificationRead", attribute.Int64("notification_id", id))
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return rowsAffected(res, pkgerrors.ErrNotificationNotFound)
}
