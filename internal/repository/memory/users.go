package memory

import (
	"context"
	"fmt"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
)

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *models.User) error {
	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if user.Username == "" || user.Email == "" || user.PasswordHash == "" {
		return fmt.Errorf("%w: email, username and password are required", pkgerrors.ErrInvalidInput)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.st.users {
		if u.Email == user.Email || u.Username == user.Username {
			return pkgerrors.ErrUserAlreadyExists
		}
	}
	user.ID = r.s.st.nextID()
	user.CreatedAt = r.s.now()
	r.s.st.users[user.ID] = *user
	return nil
}

func (r userRepo) find(match func(models.User) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.st.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (r userRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}
	return r.find(func(u models.User) bool { return u.Email == email })
}

func (r userRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	return r.find(func(u models.User) bool { return u.Username == username })
}

func (r userRepo) Count(context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.st.users), nil
}

func (r userRepo) UpsertBankAccount(_ context.Context, account *models.BankAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if existing, ok := r.s.st.bankAccounts[account.UserID]; ok {
		account.ID = existing.ID
		account.CreatedAt = existing.CreatedAt
	} else {
		account.ID = r.s.st.nextID()
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	r.s.st.bankAccounts[account.UserID] = *account
	return nil
}

func (r userRepo) GetBankAccount(_ context.Context, userID int64) (*models.BankAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.st.bankAccounts[userID]
	if !ok {
		return nil, pkgerrors.ErrBankAccountNotFound
	}
	return &a, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) Create(_ context.Context, n *models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n.ID = r.s.st.nextID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.s.now()
	}
	r.s.st.notifications[n.ID] = *n
	return nil
}

func (r notificationRepo) ListByUser(_ context.Context, userID int64, unreadOnly bool) ([]models.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Notification
	for _, n := range r.s.st.notifications {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return newestFirst(out, func(n models.Notification) int64 { return n.ID }), nil
}

func (r notificationRepo) MarkRead(_ context.Context, userID, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.st.notifications[id]
	if !ok || n.UserID != userID {
		return pkgerrors.ErrNotificationNotFound
	}
	n.IsRead = true
	r.s.st.notifications[id] = n
	return nil
}
