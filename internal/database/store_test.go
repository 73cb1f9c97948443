package database

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0idhrt/radar/internal/models"
)

func newMock(t *testing.T) pgxmock.PgxConnIface {
	t.Helper()
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return mock
}

func sampleNews() models.NewsItem {
	now := time.Now().UTC()
	return models.NewsItem{
		CompanyName:    "Sberbank",
		Title:          "Sberbank posts record profit",
		Content:        "Quarterly results beat expectations.",
		URL:            "https://example.com/news/1",
		Source:         "google",
		PublishDate:    &now,
		CollectedAt:    now,
		RelevanceScore: 0.7,
		DedupGroup:     "abcd1234",
	}
}

func TestInsertNewsReturnsID(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery("INSERT INTO news").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := insertNews(context.Background(), mock, sampleNews())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestInsertNewsDuplicateYieldsZeroID(t *testing.T) {
	mock := newMock(t)

	// ON CONFLICT DO NOTHING produces no row for a duplicate.
	mock.ExpectQuery("INSERT INTO news").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	id, err := insertNews(context.Background(), mock, sampleNews())
	require.NoError(t, err, "a duplicate is not an error")
	assert.Zero(t, id)
}

func TestInsertCompany(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("INSERT INTO companies").
		WithArgs("Sberbank", "SBER", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := insertCompany(context.Background(), mock, "Sberbank", "SBER")
	assert.NoError(t, err)
}

func TestSelectCompanyFound(t *testing.T) {
	mock := newMock(t)

	created := time.Now().UTC()
	mock.ExpectQuery("SELECT id, name, created_at, last_searched FROM companies").
		WithArgs("SBER").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at", "last_searched"}).
			AddRow(int64(1), "Sberbank", created, (*time.Time)(nil)))

	company, err := selectCompany(context.Background(), mock,
		`SELECT id, name, created_at, last_searched FROM companies WHERE ticker = $1`, "SBER")
	require.NoError(t, err)
	require.NotNil(t, company)
	assert.Equal(t, "Sberbank", company.Name)
	assert.Nil(t, company.LastSearched)
}

func TestSelectCompanyMissingIsNotAnError(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery("SELECT id, name, created_at, last_searched FROM companies").
		WithArgs("NOPE").
		WillReturnError(pgx.ErrNoRows)

	company, err := selectCompany(context.Background(), mock,
		`SELECT id, name, created_at, last_searched FROM companies WHERE ticker = $1`, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, company)
}
