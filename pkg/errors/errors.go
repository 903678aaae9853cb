package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrUserAlreadyExists       = errors.New("user already exists")
	ErrNilUser                 = errors.New("user is nil")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrForbidden               = errors.New("forbidden")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInternal                = errors.New("internal error")
	ErrRequestAlreadyProcessed = errors.New("request already processed")
	ErrResourceLocked          = errors.New("resource is locked")

	ErrPackageNotFound      = errors.New("package not found")
	ErrPackageUnavailable   = errors.New("package is not available")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrInvestmentNotFound   = errors.New("investment not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrActualReturnLocked   = errors.New("actual return already set")

	ErrPaymentNotFound    = errors.New("payment not found")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrGateway            = errors.New("payment gateway error")
	ErrGatewayUnavailable = errors.New("payment gateway not configured")

	ErrNilTransaction           = errors.New("transaction is nil")
	ErrInvalidTransactionType   = errors.New("invalid transaction type")
	ErrInvalidTransactionStatus = errors.New("invalid transaction status")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrInvalidLedgerRef         = errors.New("invalid transaction id format")

	ErrWithdrawalNotFound  = errors.New("withdrawal request not found")
	ErrNothingToWithdraw   = errors.New("no completed investments available for withdrawal")
	ErrBankAccountNotFound = errors.New("bank account not found")

	ErrReferralNotFound     = errors.New("referral not found")
	ErrReferralCodeNotFound = errors.New("referral code not found")
	ErrEarningNotFound      = errors.New("referral earning not found")

	ErrStoragePlanNotFound       = errors.New("storage plan not found")
	ErrStorageInvestmentNotFound = errors.New("storage investment not found")
	ErrPlanHasInvestments        = errors.New("storage plan has investments")

	ErrProductNotFound      = errors.New("product not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrNotificationNotFound = errors.New("notification not found")
)

// BusinessError carries a message meant for the API caller and keeps the
// sentinel reachable through errors.Is.
type BusinessError struct {
	Err     error
	Message string
}

func (e *BusinessError) Error() string { return e.Message }

func (e *BusinessError) Unwrap() error { return e.Err }

func Business(sentinel error, format string, args ...any) error {
	return &BusinessError{Err: sentinel, Message: fmt.Sprintf(format, args...)}
}
