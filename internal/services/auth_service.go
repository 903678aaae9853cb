package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/auth"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/redis"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type RegisterInput struct {
	Email        string
	Username     string
	Password     string
	FirstName    string
	LastName     string
	ReferralCode string
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, error)
	Login(ctx context.Context, login, password string) (string, *models.User, error)
	Logout(ctx context.Context, userID int64) error
	Profile(ctx context.Context, userID int64) (*models.User, error)
	SetBankAccount(ctx context.Context, account *models.BankAccount) error
	BankAccount(ctx context.Context, userID int64) (*models.BankAccount, error)
	Notifications(ctx context.Context, userID int64, unreadOnly bool) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id int64) error
}

type authService struct {
	store          repository.Store
	redisClient    redis.RedisClient
	tokens         *auth.TokenManager
	commissionRate decimal.Decimal
	now            clock
}

func NewAuthService(store repository.Store, redisClient redis.RedisClient, tokens *auth.TokenManager, commissionRate decimal.Decimal) *authService {
	return &authService{
		store:          store,
		redisClient:    redisClient,
		tokens:         tokens,
		commissionRate: commissionRate,
		now:            systemClock,
	}
}

// newReferralCode returns an 8 character upper-case code.
func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	ctx, span := startSpan(ctx, "auth-service", "Register")
	defer span.End()

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if in.Email == "" || in.Username == "" || in.Password == "" {
		return nil, fail(span, pkgerrors.ErrInvalidInput, "missing credentials")
	}
	if len(in.Password) < 8 {
		return nil, fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "password must be at least 8 characters"), "weak password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "username", in.Username, "error", err)
		return nil, fail(span, fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal), "password hashing failed")
	}

	user := &models.User{
		Email:        in.Email,
		Username:     in.Username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: string(hash),
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var referrerCode *models.ReferralCode
		if in.ReferralCode != "" {
			code, err := repos.Referrals().GetCodeByValue(ctx, strings.ToUpper(strings.TrimSpace(in.ReferralCode)))
			if stderrors.Is(err, pkgerrors.ErrReferralCodeNotFound) {
				return pkgerrors.Business(pkgerrors.ErrReferralCodeNotFound, "invalid referral code")
			}
			if err != nil {
				return err
			}
			if !code.IsActive {
				return pkgerrors.Business(pkgerrors.ErrInvalidInput, "referral code is no longer active")
			}
			referrerCode = code
		}

		if err := repos.Users().Create(ctx, user); err != nil {
			return err
		}
		if err := repos.Referrals().CreateCode(ctx, &models.ReferralCode{UserID: user.ID, Code: newReferralCode(), IsActive: true}); err != nil {
			return err
		}
		if referrerCode == nil {
			return nil
		}
		return repos.Referrals().Create(ctx, &models.Referral{
			ReferrerID:     referrerCode.UserID,
			ReferredUserID: user.ID,
			ReferralCodeID: referrerCode.ID,
			Status:         models.ReferralPending,
			CommissionRate: s.commissionRate,
		})
	})
	if err != nil {
		slog.Warn("registration failed", "username", in.Username, "email", in.Email, "error", err)
		return nil, fail(span, err, "registration failed")
	}

	slog.Info("user registered", "user_id", user.ID, "username", user.Username, "referred", in.ReferralCode != "")
	return user, nil
}

// Login accepts either the e-mail address or the username.
func (s *authService) Login(ctx context.Context, login, password string) (string, *models.User, error) {
	ctx, span := startSpan(ctx, "auth-service", "Login")
	defer span.End()

	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return "", nil, fail(span, pkgerrors.ErrInvalidCredentials, "missing credentials")
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(login, "@") {
		user, err = s.store.Users().GetByEmail(ctx, strings.ToLower(login))
	} else {
		user, err = s.store.Users().GetByUsername(ctx, login)
	}
	if err != nil {
		slog.Warn("login failed", "login", login, "error", err)
		return "", nil, fail(span, pkgerrors.ErrInvalidCredentials, "user lookup failed")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("invalid password", "user_id", user.ID)
		return "", nil, fail(span, pkgerrors.ErrInvalidCredentials, "invalid password")
	}

	token, err := s.tokens.Generate(user.ID, user.IsAdmin)
	if err != nil {
		slog.Error("failed to generate JWT", "user_id", user.ID, "error", err)
		return "", nil, fail(span, fmt.Errorf("failed to generate token: %w", err), "token generation failed")
	}

	if err := s.redisClient.Set(ctx, auth.TokenKey(user.ID), token, s.tokens.TTL()); err != nil {
		slog.Error("failed to cache JWT", "user_id", user.ID, "error", err)
		return "", nil, fail(span, fmt.Errorf("failed to store session: %w", err), "token cache failed")
	}

	slog.Info("user logged in", "user_id", user.ID, "username", user.Username)
	return token, user, nil
}

func (s *authService) Logout(ctx context.Context, userID int64) error {
	if err := s.redisClient.Del(ctx, auth.TokenKey(userID)); err != nil {
		slog.Error("failed to drop session", "user_id", userID, "error", err)
		return err
	}
	slog.Info("user logged out", "user_id", userID)
	return nil
}

func (s *authService) Profile(ctx context.Context, userID int64) (*models.User, error) {
	ctx, span := startSpan(ctx, "auth-service", "Profile")
	defer span.End()

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fail(span, err, "profile lookup failed")
	}
	return user, nil
}

func (s *authService) SetBankAccount(ctx context.Context, account *models.BankAccount) error {
	ctx, span := startSpan(ctx, "auth-service", "SetBankAccount")
	defer span.End()

	if account.AccountNumber == "" || account.BankCode == "" || account.AccountName == "" {
		return fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "account number, bank code and account name are required"), "invalid bank account")
	}
	// A changed account invalidates the cached transfer recipient.
	if existing, err := s.store.Users().GetBankAccount(ctx, account.UserID); err == nil &&
		existing.AccountNumber == account.AccountNumber && existing.BankCode == account.BankCode {
		account.RecipientCode = existing.RecipientCode
	}
	if err := s.store.Users().UpsertBankAccount(ctx, account); err != nil {
		return fail(span, err, "bank account upsert failed")
	}
	return nil
}

func (s *authService) BankAccount(ctx context.Context, userID int64) (*models.BankAccount, error) {
	return s.store.Users().GetBankAccount(ctx, userID)
}

func (s *authService) Notifications(ctx context.Context, userID int64, unreadOnly bool) ([]models.Notification, error) {
	return s.store.Notifications().ListByUser(ctx, userID, unreadOnly)
}

func (s *authService) MarkNotificationRead(ctx context.Context, userID, id int64) error {
	return s.store.Notifications().MarkRead(ctx, userID, id)
}
