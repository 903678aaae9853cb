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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresWithdrawalRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresWithdrawalRepository(db)
	ctx := context.Background()
	cols := []string{"id", "user_id", "amount", "requested_amount", "withdrawal_type", "status",
		"payment_reference", "admin_notes", "requested_at", "processed_at", "array"}

	t.Run("WithLinkedInvestments", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM withdrawal_requests w WHERE w.id = $1`)).WithArgs(int64(2)).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(
				int64(2), int64(1), "1100.00", "1100.00", "full", "pending", "", "", time.Now(), nil, []byte("{3,4}"),
			))

		w, err := repo.GetByID(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 4}, w.InvestmentIDs)
		assert.Equal(t, models.WithdrawalFull, w.Type)
		assert.Nil(t, w.ProcessedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM withdrawal_requests w WHERE w.id = $1 FOR UPDATE OF w`)).
			WithArgs(int64(3)).WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByIDForUpdate(ctx, 3)
		assert.ErrorIs(t, err, pkgerrors.ErrWithdrawalNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
