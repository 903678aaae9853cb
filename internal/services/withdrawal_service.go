package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/paystack"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/redis"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
)

type WithdrawalService interface {
	Create(ctx context.Context, userID int64, typ models.WithdrawalType, investmentIDs []int64) (*models.WithdrawalRequest, error)
	List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalRequest, error)
	Get(ctx context.Context, userID *int64, id int64) (*models.WithdrawalRequest, error)
	Approve(ctx context.Context, id int64, notes string) (*models.WithdrawalRequest, error)
	Reject(ctx context.Context, id int64, notes string) (*models.WithdrawalRequest, error)
	MarkPaid(ctx context.Context, id int64, notes string) (*models.WithdrawalRequest, error)
	Disburse(ctx context.Context, id int64) (*models.WithdrawalRequest, error)
	SetNotes(ctx context.Context, id int64, notes string) (*models.WithdrawalRequest, error)
	Stats(ctx context.Context) (*models.WithdrawalStats, error)
}

type withdrawalService struct {
	store       repository.Store
	gateway     PaymentGateway
	redisClient redis.RedisClient
	notifier    Notifier
	now         clock
}

func NewWithdrawalService(store repository.Store, gateway PaymentGateway, redisClient redis.RedisClient, notifier Notifier) *withdrawalService {
	return &withdrawalService{store: store, gateway: gateway, redisClient: redisClient, notifier: notifier, now: systemClock}
}

// Create bundles withdrawable investments into one request. With no ids
// every withdrawable investment of the user is taken; with ids each one has
// to be withdrawable.
func (s *withdrawalService) Create(ctx context.Context, userID int64, typ models.WithdrawalType, investmentIDs []int64) (*models.WithdrawalRequest, error) {
	ctx, span := startSpan(ctx, "withdrawal-service", "Create")
	defer span.End()

	if typ == "" {
		typ = models.WithdrawalFull
	}
	if !typ.Valid() {
		return nil, fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "unknown withdrawal type %q", typ), "invalid type")
	}
	ids := slices.Clone(investmentIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var (
		w   *models.WithdrawalRequest
		box outbox
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		invs, err := repos.Investments().LockWithdrawable(ctx, userID, ids)
		if err != nil {
			return err
		}
		if len(invs) == 0 {
			return pkgerrors.Business(pkgerrors.ErrNothingToWithdraw, "no completed investments available for withdrawal")
		}
		if len(ids) > 0 && len(invs) != len(ids) {
			return pkgerrors.Business(pkgerrors.ErrNothingToWithdraw, "some selected investments are not eligible for withdrawal")
		}

		amount := models.WithdrawalAmount(typ, invs)
		if !amount.IsPositive() {
			return pkgerrors.Business(pkgerrors.ErrNothingToWithdraw, "selected investments have nothing to pay out for a %s withdrawal", typ)
		}
		linked := make([]int64, 0, len(invs))
		for _, inv := range invs {
			linked = append(linked, inv.ID)
		}

		w = &models.WithdrawalRequest{
			UserID:          userID,
			Amount:          amount,
			RequestedAmount: amount,
			Type:            typ,
			Status:          models.WithdrawalPending,
		}
		if err := repos.Withdrawals().Create(ctx, w); err != nil {
			return err
		}
		if err := repos.Investments().LinkWithdrawal(ctx, w.ID, linked); err != nil {
			return err
		}
		w.InvestmentIDs = linked
		box.add(userID, models.NotificationWithdrawal, fmt.Sprintf("Your withdrawal request of %s has been submitted.", amount.StringFixed(2)))
		return nil
	})
	if err != nil {
		slog.Warn("withdrawal request failed", "user_id", userID, "type", typ, "error", err)
		return nil, fail(span, err, "withdrawal create failed")
	}
	box.flush(ctx, s.notifier)
	slog.Info("withdrawal requested", "withdrawal_id", w.ID, "user_id", userID, "type", typ, "amount", w.Amount, "investments", w.InvestmentIDs)
	return w, nil
}

func (s *withdrawalService) List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalRequest, error) {
	return s.store.Withdrawals().List(ctx, filter)
}

func (s *withdrawalService) Get(ctx context.Context, userID *int64, id int64) (*models.WithdrawalRequest, error) {
	w, err := s.store.Withdrawals().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != nil && w.UserID != *userID {
		return nil, pkgerrors.ErrWithdrawalNotFound
	}
	return w, nil
}

func (s *withdrawalService) Stats(ctx context.Context) (*models.WithdrawalStats, error) {
	return s.store.Withdrawals().Stats(ctx)
}

// transition runs fn on the locked request once its status is from.
func (s *withdrawalService) transition(ctx context.Context, method string, id int64, from models.WithdrawalStatus,
	fn func(ctx context.Context, repos repository.Repositories, w *models.WithdrawalRequest, box *outbox) error,
) (*models.WithdrawalRequest, error) {
	ctx, span := startSpan(ctx, "withdrawal-service", method)
	defer span.End()

	var (
		w   *models.WithdrawalRequest
		box outbox
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		w, err = repos.Withdrawals().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != from {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "withdrawal is %s, expected %s", w.Status, from)
		}
		if err := fn(ctx, repos, w, &box); err != nil {
			return err
		}
		return repos.Withdrawals().Update(ctx, w)
	})
	if err != nil {
		return nil, fail(span, err, "withdrawal "+strings.ToLower(method)+" failed")
	}
	box.flush(ctx, s.notifier)
	slog.Info("withdrawal updated", "withdrawal_id", id, "method", method, "status", w.Status)
	return w, nil
}

func appendNotes(w *models.WithdrawalRequest, notes string) {
	if notes = strings.TrimSpace(notes); notes != "" {
		w.AdminNotes = notes
	}
}

func (s *withdrawalService) Approve(ctx context.Context, id int64, notes string) (*models.WithdrawalRequest, error) {
	return s.transition(ctx, "Approve", id, models.WithdrawalPending, func(_ context.Context, _ repository.Repositories, w *models.WithdrawalRequest, box *outbox) error {
		w.Status = models.WithdrawalApproved
		w.PaymentReference = "WDR-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
		appendNotes(w, notes)
		box.add(w.UserID, models.NotificationWithdrawal, fmt.Sprintf("Your withdrawal of %s has been approved.", w.Amount.StringFixed(2)))
		return nil
	})
}

func (s *withdrawalService) Reject(ctx context.Context, id int64, notes string) (*models.WithdrawalRequest, error) {
	return s.transition(ctx, "Reject", id, models.WithdrawalPending, func(ctx context.Context, repos repository.Repositories, w *models.WithdrawalRequest, box *outbox) error {
		now := s.now()
		w.Status = models.WithdrawalRejected
		w.ProcessedAt = &now
		appendNotes(w, notes)
		if err := unlinkInvestments(ctx, repos, w); err != nil {
			return err
		}
		box.add(w.UserID, models.NotificationWithdrawal, fmt.Sprintf("Your withdrawal of %s was rejected.", w.Amount.StringFixed(2)))
		return nil
	})
}

func (s *withdrawalService) MarkPaid(ctx context.Context, id int64, notes string) (*models.WithdrawalRequest, error) {
	return s.transition(ctx, "MarkPaid", id, models.WithdrawalApproved, func(ctx context.Context, repos repository.Repositories, w *models.WithdrawalRequest, box *outbox) error {
		appendNotes(w, notes)
		return s.complete(ctx, repos, w, "manual", box)
	})
}

func (s *withdrawalService) SetNotes(ctx context.Context, id int64, notes string) (*models.WithdrawalRequest, error) {
	var w *models.WithdrawalRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		w, err = repos.Withdrawals().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		w.AdminNotes = strings.TrimSpace(notes)
		return repos.Withdrawals().Update(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *withdrawalService) complete(ctx context.Context, repos repository.Repositories, w *models.WithdrawalRequest, method string, box *outbox) error {
	now := s.now()
	w.Status = models.WithdrawalCompleted
	w.ProcessedAt = &now
	if _, err := repos.Transactions().Create(ctx, &models.Transaction{
		UserID:           w.UserID,
		Type:             models.TypeWithdrawal,
		Amount:           w.Amount,
		Status:           models.StatusCompleted,
		PaymentMethod:    method,
		PaymentReference: w.PaymentReference,
		Description:      fmt.Sprintf("Withdrawal #%d (%s)", w.ID, w.Type),
		CompletedAt:      &now,
	}); err != nil {
		return err
	}
	box.add(w.UserID, models.NotificationWithdrawal, fmt.Sprintf("Your withdrawal of %s has been paid.", w.Amount.StringFixed(2)))
	return nil
}

// unlinkInvestments frees the request's investments so they can be
// withdrawn again.
func unlinkInvestments(ctx context.Context, repos repository.Repositories, w *models.WithdrawalRequest) error {
	for _, invID := range w.InvestmentIDs {
		inv, err := repos.Investments().GetByIDForUpdate(ctx, invID)
		if err != nil {
			return err
		}
		if inv.WithdrawalRequestID == nil || *inv.WithdrawalRequestID != w.ID {
			continue
		}
		inv.WithdrawalRequestID = nil
		if err := repos.Investments().Update(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}

// Disburse pays an approved request out to the user's bank account through a
// Paystack transfer. A refused transfer fails the request and releases its
// investments.
func (s *withdrawalService) Disburse(ctx context.Context, id int64) (*models.WithdrawalRequest, error) {
	ctx, span := startSpan(ctx, "withdrawal-service", "Disburse")
	defer span.End()

	if s.gateway == nil {
		return nil, fail(span, pkgerrors.ErrGatewayUnavailable, "gateway not configured")
	}
	unlock, err := acquireLock(ctx, s.redisClient, fmt.Sprintf("withdrawal:%d:lock", id), fmt.Sprintf("withdrawal %d", id))
	if err != nil {
		return nil, fail(span, err, "withdrawal locked")
	}
	defer unlock()

	w, err := s.store.Withdrawals().GetByID(ctx, id)
	if err != nil {
		return nil, fail(span, err, "withdrawal lookup failed")
	}
	if w.Status != models.WithdrawalApproved {
		return nil, fail(span, pkgerrors.Business(pkgerrors.ErrInvalidTransition, "only approved withdrawals can be disbursed"), "invalid status")
	}

	account, err := s.store.Users().GetBankAccount(ctx, w.UserID)
	if stderrors.Is(err, pkgerrors.ErrBankAccountNotFound) {
		return nil, fail(span, pkgerrors.Business(pkgerrors.ErrBankAccountNotFound, "user has no bank account on file"), "no bank account")
	}
	if err != nil {
		return nil, fail(span, err, "bank account lookup failed")
	}

	transferErr := s.transfer(ctx, w, account)
	if transferErr != nil {
		slog.Error("withdrawal transfer failed", "withdrawal_id", id, "error", transferErr)
		_, err := s.transition(ctx, "Fail", id, models.WithdrawalApproved, func(ctx context.Context, repos repository.Repositories, w *models.WithdrawalRequest, box *outbox) error {
			now := s.now()
			w.Status = models.WithdrawalFailed
			w.ProcessedAt = &now
			w.AdminNotes = "transfer failed: " + transferErr.Error()
			box.add(w.UserID, models.NotificationWithdrawal, fmt.Sprintf("Your withdrawal of %s could not be paid out; you can request it again.", w.Amount.StringFixed(2)))
			return unlinkInvestments(ctx, repos, w)
		})
		if err != nil {
			slog.Error("failed to record failed withdrawal", "withdrawal_id", id, "error", err)
		}
		return nil, fail(span, fmt.Errorf("%w: %v", pkgerrors.ErrGateway, transferErr), "transfer failed")
	}

	return s.transition(ctx, "Disburse", id, models.WithdrawalApproved, func(ctx context.Context, repos repository.Repositories, w *models.WithdrawalRequest, box *outbox) error {
		return s.complete(ctx, repos, w, "paystack_transfer", box)
	})
}

func (s *withdrawalService) transfer(ctx context.Context, w *models.WithdrawalRequest, account *models.BankAccount) error {
	if account.RecipientCode == "" {
		code, err := s.gateway.CreateRecipient(ctx, paystack.RecipientRequest{
			Name:          account.AccountName,
			AccountNumber: account.AccountNumber,
			BankCode:      account.BankCode,
		})
		if err != nil {
			return err
		}
		account.RecipientCode = code
		if err := s.store.Users().UpsertBankAccount(ctx, account); err != nil {
			slog.Warn("failed to cache transfer recipient", "user_id", account.UserID, "error", err)
		}
	}
	_, err := s.gateway.Transfer(ctx, paystack.TransferRequest{
		AmountKobo: w.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Recipient:  account.RecipientCode,
		Reference:  w.PaymentReference,
		Reason:     fmt.Sprintf("Withdrawal #%d", w.ID),
	})
	return err
}
