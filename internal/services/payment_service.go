package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/observability"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/paystack"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/redis"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
)

const defaultCurrency = "NGN"

type chargeInfo struct {
	Amount decimal.Decimal
	Email  string
	Label  string
}

// settler binds payments of one kind to the rows they pay for. Every method
// runs inside the caller's unit of work.
type settler interface {
	// charge loads the pending target owned by userID and says what to bill.
	charge(ctx context.Context, repos repository.Repositories, userID, targetID int64) (*chargeInfo, error)
	attach(ctx context.Context, repos repository.Repositories, targetID int64, reference string) error
	// succeed reports true when the money has to go back because the target
	// can no longer be fulfilled.
	succeed(ctx context.Context, repos repository.Repositories, p *models.Payment, now time.Time, box *outbox) (bool, error)
	reject(ctx context.Context, repos repository.Repositories, p *models.Payment, now time.Time, box *outbox) error
	refund(ctx context.Context, repos repository.Repositories, p *models.Payment, now time.Time, box *outbox) error
}

type PaymentService interface {
	Initialize(ctx context.Context, userID int64, kind models.PaymentKind, targetID int64) (*models.Payment, error)
	Verify(ctx context.Context, reference string) (*models.Payment, error)
	Webhook(ctx context.Context, body []byte, signature string) error
	Refund(ctx context.Context, reference string, amount *decimal.Decimal, reason string) (*models.Payment, error)
	Get(ctx context.Context, userID int64, reference string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error)
	AbandonStale(ctx context.Context, before time.Time) (int, error)
}

type paymentService struct {
	store       repository.Store
	gateway     PaymentGateway
	redisClient redis.RedisClient
	notifier    Notifier
	secretKey   string
	callbackURL string
	settlers    map[models.PaymentKind]settler
	now         clock
}

// NewPaymentService wires the gateway and the per-kind settlers. gateway may
// be nil when no Paystack key is configured.
func NewPaymentService(store repository.Store, gateway PaymentGateway, redisClient redis.RedisClient, notifier Notifier, secretKey, callbackURL string) *paymentService {
	return &paymentService{
		store:       store,
		gateway:     gateway,
		redisClient: redisClient,
		notifier:    notifier,
		secretKey:   secretKey,
		callbackURL: callbackURL,
		settlers: map[models.PaymentKind]settler{
			models.PaymentForInvestment: investmentSettler{},
			models.PaymentForStorage:    storageSettler{},
			models.PaymentForOrder:      orderSettler{},
		},
		now: systemClock,
	}
}

func newPaymentReference() string {
	return "AGR-" + uuid.NewString()
}

func (s *paymentService) settlerFor(kind models.PaymentKind) (settler, error) {
	st, ok := s.settlers[kind]
	if !ok {
		return nil, pkgerrors.Business(pkgerrors.ErrInvalidInput, "unknown payment kind %q", kind)
	}
	return st, nil
}

// Initialize persists a pending payment with a fresh reference and only then
// asks the gateway for a checkout URL.
func (s *paymentService) Initialize(ctx context.Context, userID int64, kind models.PaymentKind, targetID int64) (*models.Payment, error) {
	ctx, span := startSpan(ctx, "payment-service", "Initialize")
	defer span.End()

	st, err := s.settlerFor(kind)
	if err != nil {
		return nil, fail(span, err, "unknown payment kind")
	}
	if s.gateway == nil {
		return nil, fail(span, pkgerrors.ErrGatewayUnavailable, "gateway not configured")
	}

	var (
		payment *models.Payment
		info    *chargeInfo
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		info, err = st.charge(ctx, repos, userID, targetID)
		if err != nil {
			return err
		}
		if !info.Amount.IsPositive() {
			return pkgerrors.Business(pkgerrors.ErrInvalidInput, "nothing to pay for")
		}
		payment = &models.Payment{
			UserID:   userID,
			Kind:     kind,
			TargetID: targetID,
			Amount:   info.Amount,
			Currency: defaultCurrency,
			Status:   models.PaymentPending,
		}
		payment.Reference = newPaymentReference()
		if err := repos.Payments().Create(ctx, payment); err != nil {
			return err
		}
		return st.attach(ctx, repos, targetID, payment.Reference)
	})
	if err != nil {
		slog.Warn("payment initialize failed", "user_id", userID, "kind", kind, "target_id", targetID, "error", err)
		return nil, fail(span, err, "payment initialize failed")
	}

	res, gwErr := s.gateway.Initialize(ctx, paystack.InitializeRequest{
		Email:       info.Email,
		AmountKobo:  payment.AmountInKobo(),
		Reference:   payment.Reference,
		CallbackURL: s.callbackURL,
		Metadata: map[string]string{
			"kind":      string(kind),
			"target_id": strconv.FormatInt(targetID, 10),
			"user_id":   strconv.FormatInt(userID, 10),
		},
	})
	if gwErr != nil {
		slog.Error("gateway initialize failed", "reference", payment.Reference, "kind", kind, "target_id", targetID, "error", gwErr)
		if _, err := s.settle(ctx, payment.Reference, models.PaymentFailed, nil); err != nil {
			slog.Error("failed to record gateway failure", "reference", payment.Reference, "error", err)
		}
		return nil, fail(span, fmt.Errorf("%w: %v", pkgerrors.ErrGateway, gwErr), "gateway initialize failed")
	}

	payment.AccessCode = res.AccessCode
	payment.AuthorizationURL = res.AuthorizationURL
	if err := s.store.Payments().Update(ctx, payment); err != nil {
		return nil, fail(span, err, "payment update failed")
	}

	slog.Info("payment initialized", "reference", payment.Reference, "user_id", userID, "kind", kind, "target_id", targetID, "amount", payment.Amount, "label", info.Label)
	return payment, nil
}

// lock takes the short per-reference lock shared by Verify and the webhook.
func (s *paymentService) lock(ctx context.Context, reference string) (func(), error) {
	return acquireLock(ctx, s.redisClient, fmt.Sprintf("payment:%s:lock", reference), "payment "+reference)
}

// Verify asks the gateway for the outcome of a pending payment. Payments
// already settled are returned unchanged.
func (s *paymentService) Verify(ctx context.Context, reference string) (*models.Payment, error) {
	ctx, span := startSpan(ctx, "payment-service", "Verify")
	defer span.End()

	unlock, err := s.lock(ctx, reference)
	if err != nil {
		return nil, fail(span, err, "payment locked")
	}
	defer unlock()

	payment, err := s.store.Payments().GetByReference(ctx, reference)
	if err != nil {
		return nil, fail(span, err, "payment lookup failed")
	}
	if payment.Status != models.PaymentPending {
		return payment, nil
	}
	if s.gateway == nil {
		return nil, fail(span, pkgerrors.ErrGatewayUnavailable, "gateway not configured")
	}

	res, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		slog.Error("gateway verify failed", "reference", reference, "error", err)
		return nil, fail(span, fmt.Errorf("%w: %v", pkgerrors.ErrGateway, err), "gateway verify failed")
	}

	status := models.NormalizePaymentStatus(res.Status)
	if status == models.PaymentSuccess && res.AmountKobo != payment.AmountInKobo() {
		slog.Error("gateway amount mismatch", "reference", reference, "expected_kobo", payment.AmountInKobo(), "paid_kobo", res.AmountKobo)
		status = models.PaymentFailed
	}
	return s.settle(ctx, reference, status, res)
}

// Webhook handles a signed Paystack event.
func (s *paymentService) Webhook(ctx context.Context, body []byte, signature string) error {
	ctx, span := startSpan(ctx, "payment-service", "Webhook")
	defer span.End()

	if !paystack.VerifySignature(s.secretKey, body, signature) {
		slog.Warn("webhook signature mismatch")
		return fail(span, pkgerrors.ErrInvalidSignature, "invalid signature")
	}
	ev, err := paystack.ParseEvent(body)
	if err != nil {
		return fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "malformed webhook payload"), "malformed webhook")
	}

	var status models.PaymentStatus
	switch ev.Event {
	case "charge.success":
		status = models.PaymentSuccess
	case "charge.failed":
		status = models.PaymentFailed
	default:
		slog.Info("webhook event ignored", "event", ev.Event, "reference", ev.Data.Reference)
		return nil
	}

	unlock, err := s.lock(ctx, ev.Data.Reference)
	if err != nil {
		return fail(span, err, "payment locked")
	}
	defer unlock()

	payment, err := s.store.Payments().GetByReference(ctx, ev.Data.Reference)
	if stderrors.Is(err, pkgerrors.ErrPaymentNotFound) {
		slog.Warn("webhook for unknown reference", "event", ev.Event, "reference", ev.Data.Reference)
		return nil
	}
	if err != nil {
		return fail(span, err, "payment lookup failed")
	}
	if status == models.PaymentSuccess && ev.Data.Amount != payment.AmountInKobo() {
		slog.Error("webhook amount mismatch", "reference", payment.Reference, "expected_kobo", payment.AmountInKobo(), "paid_kobo", ev.Data.Amount)
		status = models.PaymentFailed
	}

	_, err = s.settle(ctx, payment.Reference, status, &paystack.VerifyResult{
		ID:         ev.Data.ID,
		Status:     ev.Data.Status,
		Reference:  ev.Data.Reference,
		AmountKobo: ev.Data.Amount,
		Channel:    ev.Data.Channel,
		Raw:        body,
	})
	if err != nil {
		return fail(span, err, "webhook settle failed")
	}
	return nil
}

// settle applies a gateway outcome exactly once: a payment that is no longer
// pending is left as it is.
func (s *paymentService) settle(ctx context.Context, reference string, status models.PaymentStatus, res *paystack.VerifyResult) (*models.Payment, error) {
	var (
		payment     *models.Payment
		box         outbox
		needsRefund bool
		settled     bool
	)
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		payment, err = repos.Payments().GetByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentPending || status == models.PaymentPending {
			return nil
		}
		st, err := s.settlerFor(payment.Kind)
		if err != nil {
			return err
		}

		payment.Status = status
		if res != nil {
			if res.ID != 0 {
				payment.GatewayID = strconv.FormatInt(res.ID, 10)
			}
			if res.Channel != "" {
				payment.PaymentMethod = res.Channel
			}
			if len(res.Raw) > 0 {
				payment.Metadata = res.Raw
			}
		}
		if status == models.PaymentSuccess {
			paidAt := now
			if res != nil && res.PaidAt != nil {
				paidAt = *res.PaidAt
			}
			payment.PaidAt = &paidAt
		}
		if err := repos.Payments().Update(ctx, payment); err != nil {
			return err
		}
		settled = true

		if status == models.PaymentSuccess {
			needsRefund, err = st.succeed(ctx, repos, payment, now, &box)
			return err
		}
		live, err := hasLivePayment(ctx, repos, payment)
		if err != nil || live {
			return err
		}
		return st.reject(ctx, repos, payment, now, &box)
	})
	if err != nil {
		slog.Error("payment settle failed", "reference", reference, "status", status, "error", err)
		return nil, err
	}
	if !settled {
		return payment, nil
	}

	if status == models.PaymentSuccess {
		observability.PaymentsConfirmed.WithLabelValues(string(payment.Kind)).Inc()
	}
	box.flush(ctx, s.notifier)
	slog.Info("payment settled", "reference", reference, "kind", payment.Kind, "target_id", payment.TargetID, "status", status)

	if needsRefund {
		s.refundUnfulfilled(ctx, payment)
	}
	return payment, nil
}

// hasLivePayment reports whether another attempt for the same target is still
// pending or already paid, in which case a failed attempt must not touch the
// target.
func hasLivePayment(ctx context.Context, repos repository.Repositories, p *models.Payment) (bool, error) {
	others, err := repos.Payments().List(ctx, models.PaymentFilter{Kind: p.Kind, TargetID: &p.TargetID})
	if err != nil {
		return false, err
	}
	for _, o := range others {
		if o.Reference != p.Reference && (o.Status == models.PaymentPending || o.Status == models.PaymentSuccess) {
			return true, nil
		}
	}
	return false, nil
}

// refundUnfulfilled returns money for a payment whose target was cancelled
// or sold out before the confirmation arrived.
func (s *paymentService) refundUnfulfilled(ctx context.Context, p *models.Payment) {
	if s.gateway == nil {
		slog.Error("cannot refund unfulfilled payment without gateway", "reference", p.Reference)
		return
	}
	if err := s.gateway.Refund(ctx, p.Reference, p.AmountInKobo(), "purchase could not be fulfilled"); err != nil {
		slog.Error("automatic refund failed", "reference", p.Reference, "error", err)
		return
	}
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		p.Status = models.PaymentRefunded
		if err := repos.Payments().Update(ctx, p); err != nil {
			return err
		}
		booked, err := refundBooked(ctx, repos, p)
		if err != nil || booked {
			return err
		}
		_, err = repos.Transactions().Create(ctx, refundEntry(p, p.Amount, "purchase could not be fulfilled", now))
		return err
	})
	if err != nil {
		slog.Error("failed to record automatic refund", "reference", p.Reference, "error", err)
		return
	}
	notice := outbox{}
	notice.add(p.UserID, notificationFor(p.Kind), fmt.Sprintf("Your payment %s of %s was refunded because the purchase could not be fulfilled.", p.Reference, p.Amount.StringFixed(2)))
	notice.flush(ctx, s.notifier)
	slog.Info("unfulfilled payment refunded", "reference", p.Reference, "amount", p.Amount)
}

// refundBooked reports whether the cancellation that made p unfulfillable
// already put a refund for it in the ledger.
func refundBooked(ctx context.Context, repos repository.Repositories, p *models.Payment) (bool, error) {
	filter := models.TransactionFilter{UserID: &p.UserID, Type: models.TypeRefund}
	if p.Kind == models.PaymentForInvestment {
		filter.InvestmentID = &p.TargetID
	}
	txs, err := repos.Transactions().List(ctx, filter)
	if err != nil {
		return false, err
	}
	for _, tx := range txs {
		if p.Kind == models.PaymentForInvestment || tx.PaymentReference == p.Reference {
			return true, nil
		}
	}
	return false, nil
}

func refundEntry(p *models.Payment, amount decimal.Decimal, reason string, now time.Time) *models.Transaction {
	tx := &models.Transaction{
		UserID:           p.UserID,
		Type:             models.TypeRefund,
		Amount:           amount,
		Status:           models.StatusCompleted,
		PaymentMethod:    p.PaymentMethod,
		PaymentReference: p.Reference,
		Description:      "Refund: " + reason,
		CompletedAt:      &now,
	}
	if p.Kind == models.PaymentForInvestment {
		id := p.TargetID
		tx.InvestmentID = &id
	}
	return tx
}

func notificationFor(kind models.PaymentKind) models.NotificationType {
	switch kind {
	case models.PaymentForStorage:
		return models.NotificationStorage
	case models.PaymentForOrder:
		return models.NotificationOrder
	}
	return models.NotificationInvestment
}

// Refund returns money for a successful payment. A full refund also
// cancels the target and gives its capacity back; a partial one is only
// booked as a refund transaction. The gateway is called last so a gateway
// error rolls the booking back.
func (s *paymentService) Refund(ctx context.Context, reference string, amount *decimal.Decimal, reason string) (*models.Payment, error) {
	ctx, span := startSpan(ctx, "payment-service", "Refund")
	defer span.End()

	if s.gateway == nil {
		return nil, fail(span, pkgerrors.ErrGatewayUnavailable, "gateway not configured")
	}
	if reason == "" {
		reason = "refunded by administrator"
	}

	var (
		payment *models.Payment
		box     outbox
	)
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		payment, err = repos.Payments().GetByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentSuccess {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "only successful payments can be refunded")
		}
		refundAmount := payment.Amount
		if amount != nil {
			refundAmount = *amount
		}
		if !refundAmount.IsPositive() || refundAmount.GreaterThan(payment.Amount) {
			return pkgerrors.Business(pkgerrors.ErrInvalidInput, "refund amount must be between 0 and %s", payment.Amount.StringFixed(2))
		}

		if refundAmount.Equal(payment.Amount) {
			st, err := s.settlerFor(payment.Kind)
			if err != nil {
				return err
			}
			if err := st.refund(ctx, repos, payment, now, &box); err != nil {
				return err
			}
			payment.Status = models.PaymentRefunded
			if err := repos.Payments().Update(ctx, payment); err != nil {
				return err
			}
		} else if _, err := repos.Transactions().Create(ctx, refundEntry(payment, refundAmount, reason, now)); err != nil {
			return err
		}

		kobo := refundAmount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
		if err := s.gateway.Refund(ctx, reference, kobo, reason); err != nil {
			slog.Error("gateway refund failed", "reference", reference, "error", err)
			return fmt.Errorf("%w: %v", pkgerrors.ErrGateway, err)
		}
		box.add(payment.UserID, notificationFor(payment.Kind), fmt.Sprintf("%s of your payment %s has been refunded.", refundAmount.StringFixed(2), reference))
		return nil
	})
	if err != nil {
		return nil, fail(span, err, "refund failed")
	}
	box.flush(ctx, s.notifier)
	slog.Info("payment refunded", "reference", reference, "status", payment.Status, "reason", reason)
	return payment, nil
}

func (s *paymentService) Get(ctx context.Context, userID int64, reference string) (*models.Payment, error) {
	payment, err := s.store.Payments().GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, pkgerrors.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *paymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error) {
	return s.store.Payments().List(ctx, filter)
}

// AbandonStale closes payments left pending since before. The gateway is
// asked first so a confirmation whose webhook got lost still counts.
func (s *paymentService) AbandonStale(ctx context.Context, before time.Time) (int, error) {
	ctx, span := startSpan(ctx, "payment-service", "AbandonStale")
	defer span.End()

	stale, err := s.store.Payments().List(ctx, models.PaymentFilter{Status: models.PaymentPending, CreatedBefore: &before})
	if err != nil {
		return 0, fail(span, err, "stale payment lookup failed")
	}

	abandoned := 0
	for _, p := range stale {
		status := models.PaymentAbandoned
		var res *paystack.VerifyResult
		if s.gateway != nil {
			res, err = s.gateway.Verify(ctx, p.Reference)
			if err != nil {
				slog.Warn("stale payment verify failed, leaving pending", "reference", p.Reference, "error", err)
				continue
			}
			if gw := models.NormalizePaymentStatus(res.Status); gw != models.PaymentPending {
				status = gw
			}
			if status == models.PaymentSuccess && res.AmountKobo != p.AmountInKobo() {
				status = models.PaymentFailed
			}
		}
		if _, err := s.settle(ctx, p.Reference, status, res); err != nil {
			slog.Error("failed to close stale payment", "reference", p.Reference, "error", err)
			continue
		}
		if status == models.PaymentAbandoned {
			abandoned++
		}
	}
	if len(stale) > 0 {
		slog.Info("stale payments swept", "found", len(stale), "abandoned", abandoned)
	}
	return abandoned, nil
}
