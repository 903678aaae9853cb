// Package memory is a process-local Store used for development without
// Postgres and as the fixture behind the service tests.
package memory

import (
	"context"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository"
)

type cartLine struct {
	qty       int
	updatedAt time.Time
}

type state struct {
	seq int64

	users         map[int64]models.User
	bankAccounts  map[int64]models.BankAccount
	notifications map[int64]models.Notification
	packages      map[int64]models.InvestmentPackage
	investments   map[int64]models.Investment
	payments      map[string]models.Payment
	transactions  map[int64]models.Transaction
	withdrawals   map[int64]models.WithdrawalRequest
	codes         map[int64]models.ReferralCode
	referrals     map[int64]models.Referral
	earnings      map[int64]models.ReferralEarning
	plans         map[int64]models.StoragePlan
	storage       map[int64]models.StorageInvestment
	updates       map[int64]models.StorageUpdate
	products      map[int64]models.Product
	carts         map[int64]map[int64]cartLine
	orders        map[int64]models.Order
}

func newState() *state {
	return &state{
		users:         map[int64]models.User{},
		bankAccounts:  map[int64]models.BankAccount{},
		notifications: map[int64]models.Notification{},
		packages:      map[int64]models.InvestmentPackage{},
		investments:   map[int64]models.Investment{},
		payments:      map[string]models.Payment{},
		transactions:  map[int64]models.Transaction{},
		withdrawals:   map[int64]models.WithdrawalRequest{},
		codes:         map[int64]models.ReferralCode{},
		referrals:     map[int64]models.Referral{},
		earnings:      map[int64]models.ReferralEarning{},
		plans:         map[int64]models.StoragePlan{},
		storage:       map[int64]models.StorageInvestment{},
		updates:       map[int64]models.StorageUpdate{},
		products:      map[int64]models.Product{},
		carts:         map[int64]map[int64]cartLine{},
		orders:        map[int64]models.Order{},
	}
}

// clone copies every table. Stored values are replaced, never mutated in
// place, so copying the maps is enough.
func (st *state) clone() *state {
	c := &state{
		seq:           st.seq,
		users:         maps.Clone(st.users),
		bankAccounts:  maps.Clone(st.bankAccounts),
		notifications: maps.Clone(st.notifications),
		packages:      maps.Clone(st.packages),
		investments:   maps.Clone(st.investments),
		payments:      maps.Clone(st.payments),
		transactions:  maps.Clone(st.transactions),
		withdrawals:   maps.Clone(st.withdrawals),
		codes:         maps.Clone(st.codes),
		referrals:     maps.Clone(st.referrals),
		earnings:      maps.Clone(st.earnings),
		plans:         maps.Clone(st.plans),
		storage:       maps.Clone(st.storage),
		updates:       maps.Clone(st.updates),
		products:      maps.Clone(st.products),
		carts:         make(map[int64]map[int64]cartLine, len(st.carts)),
		orders:        maps.Clone(st.orders),
	}
	for userID, lines := range st.carts {
		c.carts[userID] = maps.Clone(lines)
	}
	return c
}

func (st *state) nextID() int64 {
	st.seq++
	return st.seq
}

// Store keeps every table in maps behind one mutex. WithinTx runs one
// transaction at a time and restores the snapshot taken at its start when fn
// fails.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   *state
	now  func() time.Time
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		slog.Debug("memory transaction rolled back", "error", err)
		return err
	}
	return nil
}

func (s *Store) Users() repository.UserRepository                 { return userRepo{s} }
func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s} }
func (s *Store) Packages() repository.PackageRepository           { return packageRepo{s} }
func (s *Store) Investments() repository.InvestmentRepository     { return investmentRepo{s} }
func (s *Store) Payments() repository.PaymentRepository           { return paymentRepo{s} }
func (s *Store) Transactions() repository.TransactionRepository   { return transactionRepo{s} }
func (s *Store) Withdrawals() repository.WithdrawalRepository     { return withdrawalRepo{s} }
func (s *Store) Referrals() repository.ReferralRepository         { return referralRepo{s} }
func (s *Store) StoragePlans() repository.StoragePlanRepository   { return planRepo{s} }
func (s *Store) StorageInvestments() repository.StorageInvestmentRepository {
	return storageRepo{s}
}
func (s *Store) Products() repository.ProductRepository { return productRepo{s} }
func (s *Store) Carts() repository.CartRepository       { return cartRepo{s} }
func (s *Store) Orders() repository.OrderRepository     { return orderRepo{s} }

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// newestFirst orders rows the way the SQL listings do.
func newestFirst[T any](rows []T, id func(T) int64) []T {
	sort.Slice(rows, func(i, j int) bool { return id(rows[i]) > id(rows[j]) })
	return rows
}
