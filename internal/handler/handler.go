package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/auth"
	service "github.com/honeynil/agri-invest-service/internal/services"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
)

// Services bundles everything the HTTP layer calls into.
type Services struct {
	Auth        service.AuthService
	Packages    service.PackageService
	Investments service.InvestmentService
	Payments    service.PaymentService
	Storage     service.StorageService
	Commerce    service.CommerceService
	Referrals   service.ReferralService
	Withdrawals service.WithdrawalService
	Admin       service.AdminService
}

type Handler struct {
	Services
	validate *validator.Validate
}

func NewHandler(s Services) *Handler {
	return &Handler{Services: s, validate: validator.New(validator.WithRequiredStructEnabled())}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, pkgerrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, pkgerrors.ErrUserNotFound),
		errors.Is(err, pkgerrors.ErrPackageNotFound),
		errors.Is(err, pkgerrors.ErrInvestmentNotFound),
		errors.Is(err, pkgerrors.ErrPaymentNotFound),
		errors.Is(err, pkgerrors.ErrTransactionNotFound),
		errors.Is(err, pkgerrors.ErrWithdrawalNotFound),
		errors.Is(err, pkgerrors.ErrBankAccountNotFound),
		errors.Is(err, pkgerrors.ErrReferralNotFound),
		errors.Is(err, pkgerrors.ErrEarningNotFound),
		errors.Is(err, pkgerrors.ErrStoragePlanNotFound),
		errors.Is(err, pkgerrors.ErrStorageInvestmentNotFound),
		errors.Is(err, pkgerrors.ErrProductNotFound),
		errors.Is(err, pkgerrors.ErrOrderNotFound),
		errors.Is(err, pkgerrors.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrUserAlreadyExists),
		errors.Is(err, pkgerrors.ErrRequestAlreadyProcessed),
		errors.Is(err, pkgerrors.ErrResourceLocked),
		errors.Is(err, pkgerrors.ErrPlanHasInvestments):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrGateway):
		return http.StatusBadGateway
	case errors.Is(err, pkgerrors.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, pkgerrors.ErrInvalidInput),
		errors.Is(err, pkgerrors.ErrInvalidLedgerRef),
		errors.Is(err, pkgerrors.ErrInvalidSignature),
		errors.Is(err, pkgerrors.ErrPackageUnavailable),
		errors.Is(err, pkgerrors.ErrInsufficientCapacity),
		errors.Is(err, pkgerrors.ErrInvalidTransition),
		errors.Is(err, pkgerrors.ErrActualReturnLocked),
		errors.Is(err, pkgerrors.ErrNothingToWithdraw),
		errors.Is(err, pkgerrors.ErrReferralCodeNotFound),
		errors.Is(err, pkgerrors.ErrEmptyCart):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError hides unexpected errors behind a generic message; business
// errors carry their own.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	var be *pkgerrors.BusinessError
	switch {
	case errors.As(err, &be):
		msg = be.Message
	case status == http.StatusInternalServerError:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// decode reads a JSON body into dst and runs the struct validation tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.badRequest(w, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			h.badRequest(w, "validation failed: %s", strings.Join(fields, ", "))
			return false
		}
		h.badRequest(w, "invalid request body")
		return false
	}
	return true
}

// decodeOptional accepts an empty body for routes whose fields are all optional.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return h.decode(w, r, dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.Business(pkgerrors.ErrInvalidInput, "invalid %s", name)
	}
	return id, nil
}

func queryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, pkgerrors.Business(pkgerrors.ErrInvalidInput, "invalid %s", name)
	}
	return &id, nil
}

func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "user not authenticated"})
		return 0, false
	}
	return userID, true
}

// handleAction registers an action route under its snake_case name and the
// hyphenated form older clients call.
func handleAction(r *mux.Router, path string, fn http.HandlerFunc, method string) {
	r.HandleFunc(path, fn).Methods(method)
	i := strings.LastIndex(path, "/")
	if alias := path[:i] + strings.ReplaceAll(path[i:], "_", "-"); alias != path {
		r.HandleFunc(alias, fn).Methods(method)
	}
}

// RegisterPublicRoutes mounts the unauthenticated routes on the /api router.
func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	r.HandleFunc("/packages", h.ListPackages).Methods(http.MethodGet)
	r.HandleFunc("/packages/categories", h.PackageCategories).Methods(http.MethodGet)
	r.HandleFunc("/packages/stats", h.PackageStats).Methods(http.MethodGet)
	r.HandleFunc("/packages/{id:[0-9]+}", h.GetPackage).Methods(http.MethodGet)

	r.HandleFunc("/storage/plans", h.ListPlans).Methods(http.MethodGet)
	r.HandleFunc("/storage/plans/{id:[0-9]+}", h.GetPlan).Methods(http.MethodGet)

	r.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/{id:[0-9]+}", h.GetProduct).Methods(http.MethodGet)

	r.HandleFunc("/payments/webhook", h.PaystackWebhook).Methods(http.MethodPost)
	r.HandleFunc("/storage/webhooks/paystack", h.PaystackWebhook).Methods(http.MethodPost)
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/auth/profile", h.Profile).Methods(http.MethodGet)
	r.HandleFunc("/auth/bank-account", h.GetBankAccount).Methods(http.MethodGet)
	r.HandleFunc("/auth/bank-account", h.SetBankAccount).Methods(http.MethodPut)
	r.HandleFunc("/auth/notifications", h.Notifications).Methods(http.MethodGet)
	r.HandleFunc("/auth/notifications/{id:[0-9]+}/read", h.MarkNotificationRead).Methods(http.MethodPost)

	r.HandleFunc("/investments", h.ListInvestments).Methods(http.MethodGet)
	r.HandleFunc("/investments", h.CreateInvestment).Methods(http.MethodPost)
	r.HandleFunc("/investments/active", h.investmentsByStatus("active")).Methods(http.MethodGet)
	r.HandleFunc("/investments/completed", h.investmentsByStatus("completed")).Methods(http.MethodGet)
	r.HandleFunc("/investments/pending", h.investmentsByStatus("pending")).Methods(http.MethodGet)
	r.HandleFunc("/investments/summary", h.InvestmentSummary).Methods(http.MethodGet)
	r.HandleFunc("/investments/withdrawable", h.WithdrawableInvestments).Methods(http.MethodGet)
	r.HandleFunc("/investments/{id:[0-9]+}", h.GetInvestment).Methods(http.MethodGet)
	handleAction(r, "/investments/{id:[0-9]+}/payment_status", h.InvestmentPaymentStatus, http.MethodGet)
	r.HandleFunc("/investments/{id:[0-9]+}/complete", h.CompleteInvestment).Methods(http.MethodPost)
	r.HandleFunc("/investments/{id:[0-9]+}/cancel", h.CancelInvestment).Methods(http.MethodPost)

	r.HandleFunc("/payments", h.ListPayments).Methods(http.MethodGet)
	r.HandleFunc("/payments/initialize", h.InitializePayment).Methods(http.MethodPost)
	r.HandleFunc("/payments/verify/{reference}", h.VerifyPayment).Methods(http.MethodGet)
	r.HandleFunc("/payments/{reference}", h.GetPayment).Methods(http.MethodGet)

	r.HandleFunc("/storage/investments", h.ListStorage).Methods(http.MethodGet)
	r.HandleFunc("/storage/investments", h.PurchaseStorage).Methods(http.MethodPost)
	r.HandleFunc("/storage/investments/{id:[0-9]+}", h.GetStorage).Methods(http.MethodGet)
	r.HandleFunc("/storage/investments/{id:[0-9]+}/mature", h.MatureStorage).Methods(http.MethodPost)
	r.HandleFunc("/storage/investments/{id:[0-9]+}/updates", h.StorageUpdates).Methods(http.MethodGet)
	r.HandleFunc("/storage/dashboard", h.StorageDashboard).Methods(http.MethodGet)

	r.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet)
	r.HandleFunc("/cart", h.ClearCart).Methods(http.MethodDelete)
	r.HandleFunc("/cart/items", h.AddToCart).Methods(http.MethodPost)
	r.HandleFunc("/cart/items/{product_id:[0-9]+}", h.UpdateCartItem).Methods(http.MethodPut)
	r.HandleFunc("/cart/items/{product_id:[0-9]+}", h.RemoveFromCart).Methods(http.MethodDelete)
	r.HandleFunc("/cart/checkout", h.Checkout).Methods(http.MethodPost)
	r.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id:[0-9]+}", h.GetOrder).Methods(http.MethodGet)

	r.HandleFunc("/referrals/code", h.MyReferralCode).Methods(http.MethodGet)
	r.HandleFunc("/referrals", h.MyReferrals).Methods(http.MethodGet)
	r.HandleFunc("/referrals/earnings", h.MyEarnings).Methods(http.MethodGet)
	r.HandleFunc("/referrals/stats", h.MyReferralStats).Methods(http.MethodGet)

	r.HandleFunc("/withdrawals", h.ListWithdrawals).Methods(http.MethodGet)
	r.HandleFunc("/withdrawals", h.CreateWithdrawal).Methods(http.MethodPost)
	r.HandleFunc("/withdrawals/{id:[0-9]+}", h.GetWithdrawal).Methods(http.MethodGet)
}

// RegisterAdminRoutes mounts /api/admin; the router wraps it in AdminOnly.
func (h *Handler) RegisterAdminRoutes(r *mux.Router) {
	r.HandleFunc("/dashboard", h.AdminDashboard).Methods(http.MethodGet)
	r.HandleFunc("/transactions", h.AdminLedger).Methods(http.MethodGet)
	r.HandleFunc("/transactions/stats", h.AdminTransactionStats).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{ref}", h.AdminLedgerEntry).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{ref}", h.AdminPatchLedger).Methods(http.MethodPatch)

	r.HandleFunc("/packages", h.AdminListPackages).Methods(http.MethodGet)
	r.HandleFunc("/packages", h.AdminCreatePackage).Methods(http.MethodPost)
	r.HandleFunc("/packages/stats", h.PackageStats).Methods(http.MethodGet)
	r.HandleFunc("/packages/{id:[0-9]+}", h.AdminUpdatePackage).Methods(http.MethodPut)
	r.HandleFunc("/packages/{id:[0-9]+}", h.AdminDeletePackage).Methods(http.MethodDelete)

	r.HandleFunc("/investments", h.AdminListInvestments).Methods(http.MethodGet)
	r.HandleFunc("/investments/stats", h.AdminInvestmentStats).Methods(http.MethodGet)
	r.HandleFunc("/investments/{id:[0-9]+}", h.AdminGetInvestment).Methods(http.MethodGet)
	r.HandleFunc("/investments/{id:[0-9]+}", h.AdminUpdateInvestment).Methods(http.MethodPatch)
	r.HandleFunc("/investments/{id:[0-9]+}", h.AdminDeleteInvestment).Methods(http.MethodDelete)
	r.HandleFunc("/investments/{id:[0-9]+}/approve", h.AdminApproveInvestment).Methods(http.MethodPost)
	r.HandleFunc("/investments/{id:[0-9]+}/reject", h.AdminRejectInvestment).Methods(http.MethodPost)
	handleAction(r, "/investments/{id:[0-9]+}/force_approve", h.AdminForceApprove, http.MethodPost)
	handleAction(r, "/investments/{id:[0-9]+}/force_complete", h.AdminForceComplete, http.MethodPost)

	r.HandleFunc("/payments", h.AdminListPayments).Methods(http.MethodGet)
	r.HandleFunc("/payments/{reference}/refund", h.AdminRefundPayment).Methods(http.MethodPost)

	r.HandleFunc("/storage/plans", h.AdminListPlans).Methods(http.MethodGet)
	r.HandleFunc("/storage/plans", h.AdminCreatePlan).Methods(http.MethodPost)
	r.HandleFunc("/storage/plans/{id:[0-9]+}", h.AdminUpdatePlan).Methods(http.MethodPut)
	r.HandleFunc("/storage/plans/{id:[0-9]+}", h.AdminDeletePlan).Methods(http.MethodDelete)
	r.HandleFunc("/storage/investments", h.AdminListStorage).Methods(http.MethodGet)
	r.HandleFunc("/storage/investments/{id:[0-9]+}/complete", h.AdminCompleteStorage).Methods(http.MethodPost)
	r.HandleFunc("/storage/investments/{id:[0-9]+}/updates", h.AdminAddStorageUpdate).Methods(http.MethodPost)
	r.HandleFunc("/storage/dashboard", h.AdminStorageDashboard).Methods(http.MethodGet)

	r.HandleFunc("/products", h.AdminListProducts).Methods(http.MethodGet)
	r.HandleFunc("/products", h.AdminCreateProduct).Methods(http.MethodPost)
	r.HandleFunc("/products/{id:[0-9]+}", h.AdminUpdateProduct).Methods(http.MethodPut)
	r.HandleFunc("/products/{id:[0-9]+}", h.AdminDeleteProduct).Methods(http.MethodDelete)
	r.HandleFunc("/orders", h.AdminListOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id:[0-9]+}", h.AdminGetOrder).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id:[0-9]+}/status", h.AdminUpdateOrderStatus).Methods(http.MethodPost)

	r.HandleFunc("/referrals", h.AdminReferrals).Methods(http.MethodGet)
	r.HandleFunc("/referrals/earnings", h.AdminEarnings).Methods(http.MethodGet)
	handleAction(r, "/referrals/earnings/{id:[0-9]+}/mark_paid", h.AdminMarkEarningPaid, http.MethodPost)
	r.HandleFunc("/referrals/codes", h.AdminReferralCodes).Methods(http.MethodGet)

	r.HandleFunc("/withdrawals", h.AdminListWithdrawals).Methods(http.MethodGet)
	r.HandleFunc("/withdrawals/stats", h.AdminWithdrawalStats).Methods(http.MethodGet)
	r.HandleFunc("/withdrawals/{id:[0-9]+}/approve", h.AdminApproveWithdrawal).Methods(http.MethodPost)
	r.HandleFunc("/withdrawals/{id:[0-9]+}/reject", h.AdminRejectWithdrawal).Methods(http.MethodPost)
	handleAction(r, "/withdrawals/{id:[0-9]+}/mark_paid", h.AdminMarkWithdrawalPaid, http.MethodPost)
	r.HandleFunc("/withdrawals/{id:[0-9]+}/disburse", h.AdminDisburseWithdrawal).Methods(http.MethodPost)
	r.HandleFunc("/withdrawals/{id:[0-9]+}/notes", h.AdminWithdrawalNotes).Methods(http.MethodPut)
}
