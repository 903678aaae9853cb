package postgres_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository/postgres"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresUserRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresUserRepository(db)
	ctx := context.Background()

	newUser := func() *models.User {
		return &models.User{Email: "ada@farm.ng", Username: "ada", FirstName: "Ada", PasswordHash: "hash"}
	}

	t.Run("NilUser", func(t *testing.T) {
		assert.ErrorIs(t, repo.Create(ctx, nil), pkgerrors.ErrNilUser)
	})

	t.Run("MissingFields", func(t *testing.T) {
		u := newUser()
		u.Email = ""
		assert.ErrorIs(t, repo.Create(ctx, u), pkgerrors.ErrInvalidInput)
	})

	t.Run("Success", func(t *testing.T) {
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (email, username, first_name, last_name, password_hash, is_admin)`)).
			WithArgs("ada@farm.ng", "ada", "Ada", "", "hash", false).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), createdAt))

		u := newUser()
		require.NoError(t, repo.Create(ctx, u))
		assert.Equal(t, int64(5), u.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyExists", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
			WillReturnError(&pq.Error{Code: "23505"})

		assert.ErrorIs(t, repo.Create(ctx, newUser()), pkgerrors.ErrUserAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresUserRepository_GetByUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresUserRepository(db)
	ctx := context.Background()
	cols := []string{"id", "email", "username", "first_name", "last_name", "password_hash", "is_admin", "created_at"}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).WithArgs("ada").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(5), "ada@farm.ng", "ada", "Ada", "Obi", "hash", true, time.Now()))

		u, err := repo.GetByUsername(ctx, "ada")
		require.NoError(t, err)
		assert.Equal(t, "Ada Obi", u.FullName())
		assert.True(t, u.IsAdmin)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		u, err := repo.GetByUsername(ctx, "ghost")
		assert.Nil(t, u)
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyUsername", func(t *testing.T) {
		_, err := repo.GetByUsername(ctx, "")
		assert.Error(t, err)
	})
}

func TestPostgresNotificationRepository_MarkRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`)).
		WithArgs(int64(3), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.MarkRead(context.Background(), 1, 3))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notifications`)).
		WithArgs(int64(4), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.MarkRead(context.Background(), 1, 4), pkgerrors.ErrNotificationNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
