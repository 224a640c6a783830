package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newBookRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestBookRepositoryDecrementAvailable(t *testing.T) {
	db, mock, cleanup := newBookRepoMock(t)
	defer cleanup()

	repo := NewBookRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE books SET available_copies = available_copies - 1")).
		WithArgs("book-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	taken, err := repo.DecrementAvailable(context.Background(), nil, "book-1")
	require.NoError(t, err)
	require.True(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryDecrementAvailableOutOfStock(t *testing.T) {
	db, mock, cleanup := newBookRepoMock(t)
	defer cleanup()

	repo := NewBookRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE books SET available_copies = available_copies - 1")).
		WithArgs("book-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	taken, err := repo.DecrementAvailable(context.Background(), nil, "book-1")
	require.NoError(t, err)
	require.False(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryIncrementAvailableAtCapacity(t *testing.T) {
	db, mock, cleanup := newBookRepoMock(t)
	defer cleanup()

	repo := NewBookRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE books SET available_copies = available_copies + 1")).
		WithArgs("book-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	returned, err := repo.IncrementAvailable(context.Background(), nil, "book-1")
	require.NoError(t, err)
	require.False(t, returned)
	require.NoError(t, mock.ExpectationsWereMet())
}
