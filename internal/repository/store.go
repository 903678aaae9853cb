package repository

import "context"

// Repositories groups every repository bound to the same connection or
// transaction.
type Repositories interface {
	Users() UserRepository
	Notifications() NotificationRepository
	Packages() PackageRepository
	Investments() InvestmentRepository
	Payments() PaymentRepository
	Transactions() TransactionRepository
	Withdrawals() WithdrawalRepository
	Referrals() ReferralRepository
	StoragePlans() StoragePlanRepository
	StorageInvestments() StorageInvestmentRepository
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
}

// Store is the unit of work. fn runs inside one database transaction; a
// returned error rolls everything back.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
