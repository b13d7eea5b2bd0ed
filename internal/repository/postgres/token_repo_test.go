package postgres

import (
	"context"
	"errors"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestTokenRepo_GetOrCreate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	user := uuid.Must(uuid.NewV4())
	reset := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q(`INSERT INTO token_balances (user_id, balance, free_tokens_used, free_tokens_reset_date) VALUES ($1, 0, 0, $2) ON CONFLICT (user_id)`)).
		WithArgs(user, reset).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "balance", "free_tokens_used", "free_tokens_reset_date", "updated_at"}).
			AddRow(user, 5, 1, reset, updated))

	l, err := r.GetOrCreate(ctx, user, reset)
	require.NoError(t, err)
	require.Equal(t, user, l.UserID)
	require.Equal(t, 5, l.Balance)
	require.Equal(t, 1, l.FreeTokensUsed)
	require.True(t, l.FreeTokensResetDate.Equal(reset))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_SetFreeUsed_CompareAndSet(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	user := uuid.Must(uuid.NewV4())

	mock.ExpectExec(q(`UPDATE token_balances SET free_tokens_used = $3, updated_at = now() WHERE user_id = $1 AND free_tokens_used = $2`)).
		WithArgs(user, 0, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetFreeUsed(ctx, user, 0, 1))

	mock.ExpectExec(q(`UPDATE token_balances SET free_tokens_used = $3`)).
		WithArgs(user, 0, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetFreeUsed(ctx, user, 0, 1), errs.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_SetBalance(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	user := uuid.Must(uuid.NewV4())

	mock.ExpectExec(q(`UPDATE token_balances SET balance = $3, updated_at = now() WHERE user_id = $1 AND balance = $2`)).
		WithArgs(user, 5, 4).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetBalance(ctx, user, 5, 4))

	mock.ExpectExec(q(`UPDATE token_balances SET balance = $3`)).
		WithArgs(user, 5, 4).
		WillReturnError(&net.OpError{Op: "read", Err: errors.New("connection reset")})
	require.ErrorIs(t, r.SetBalance(ctx, user, 5, 4), errs.ErrNetwork)
}

func TestTokenRepo_ResetFree(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	user := uuid.Must(uuid.NewV4())
	prev := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 3, 1, 0, 0, 1, 0, time.UTC)

	mock.ExpectExec(q(`UPDATE token_balances SET free_tokens_used = 0, free_tokens_reset_date = $3`)).
		WithArgs(user, prev, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := r.ResetFree(ctx, user, prev, now)
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectExec(q(`UPDATE token_balances SET free_tokens_used = 0, free_tokens_reset_date = $3`)).
		WithArgs(user, prev, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = r.ResetFree(ctx, user, prev, now)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTokenRepo_InsertTransaction_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	tx := model.TokenTransaction{
		ID:          uuid.Must(uuid.NewV4()),
		UserID:      uuid.Must(uuid.NewV4()),
		Amount:      3,
		Type:        model.TxPurchase,
		ReferenceID: "2000000123",
		CreatedAt:   time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec(q(`INSERT INTO token_transactions (id, user_id, amount, type, reference_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`)).
		WithArgs(tx.ID, tx.UserID, 3, "purchase", "2000000123", tx.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.InsertTransaction(ctx, tx))

	mock.ExpectExec(q(`INSERT INTO token_transactions`)).
		WithArgs(tx.ID, tx.UserID, 3, "purchase", "2000000123", tx.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.InsertTransaction(ctx, tx), errs.ErrAlreadyExists)
}

func TestTokenRepo_MarkRefunded(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	user := uuid.Must(uuid.NewV4())

	mock.ExpectExec(q(`UPDATE token_transactions SET refunded = true WHERE id = ( SELECT id FROM token_transactions WHERE user_id = $1 AND reference_id = $2 AND type = 'use' AND amount < 0 AND NOT refunded`)).
		WithArgs(user, "chat-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.MarkRefunded(ctx, user, "chat-1"))

	mock.ExpectExec(q(`UPDATE token_transactions SET refunded = true`)).
		WithArgs(user, "chat-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.MarkRefunded(ctx, user, "chat-1"), errs.ErrNotFound)
}

func TestClassify(t *testing.T) {
	require.NoError(t, Classify(nil))
	require.ErrorIs(t, Classify(pgx.ErrNoRows), errs.ErrNotFound)
	require.ErrorIs(t, Classify(context.Canceled), context.Canceled)
	require.ErrorIs(t, Classify(context.DeadlineExceeded), errs.ErrNetwork)
	require.ErrorIs(t, Classify(&pgconn.PgError{Code: "23505"}), errs.ErrAlreadyExists)

	dbErr := Classify(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})
	require.ErrorIs(t, dbErr, errs.ErrDatabase)
	var pg *pgconn.PgError
	require.True(t, errors.As(dbErr, &pg))
}
