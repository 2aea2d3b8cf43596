package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-search/internal/index"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewWithPool(nil)
	require.Error(t, err)
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	for _, stmt := range schemaStatements {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSiteReturnsID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("INSERT INTO sites").
		WithArgs("https://example.com", "Example", "CRAWLING", at, "").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	site, err := store.CreateSite(context.Background(), index.Site{
		URL:        "https://example.com",
		Name:       "Example",
		Status:     index.StatusCrawling,
		StatusTime: at,
	})
	require.NoError(t, err)
	require.Equal(t, int64(11), site.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteByURLMapsNoRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM sites WHERE url").
		WithArgs("https://missing.example").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.SiteByURL(context.Background(), "https://missing.example")
	require.ErrorIs(t, err, index.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSitesScansRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("FROM sites ORDER BY id").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "name", "status", "status_time", "last_error"}).
			AddRow(int64(1), "https://a.example", "A", "INDEXED", at, "").
			AddRow(int64(2), "https://b.example", "B", "FAILED", at, "timeout"))

	sites, err := store.Sites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.Equal(t, index.StatusFailed, sites[1].Status)
	require.Equal(t, "timeout", sites[1].LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetSiteStatusUnknownSite(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("UPDATE sites SET status").
		WithArgs("FAILED", "stopped", at, int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.SetSiteStatus(context.Background(), 9, index.StatusFailed, "stopped", at)
	require.ErrorIs(t, err, index.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePageWritesLemmasAndPostings(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO pages").
		WithArgs(int64(1), "https://example.com/a", 200, "<p>apple</p>").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery("INSERT INTO lemmas").
		WithArgs(int64(1), "appl", 2).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec("INSERT INTO postings").
		WithArgs(int64(7), int64(3), 2.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("INSERT INTO lemmas").
		WithArgs(int64(1), "banana", 1).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectExec("INSERT INTO postings").
		WithArgs(int64(7), int64(4), 1.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	page, err := store.SavePage(context.Background(), index.Page{
		SiteID:  1,
		Path:    "https://example.com/a",
		Code:    200,
		Content: "<p>apple</p>",
	}, map[string]int{"banana": 1, "appl": 2})
	require.NoError(t, err)
	require.Equal(t, int64(7), page.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePageDuplicatePathRollsBack(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO pages").
		WithArgs(int64(1), "https://example.com/a", 200, "").
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})
	mock.ExpectRollback()

	_, err := store.SavePage(context.Background(), index.Page{
		SiteID: 1,
		Path:   "https://example.com/a",
		Code:   200,
	}, map[string]int{"appl": 1})
	require.ErrorIs(t, err, index.ErrDuplicatePage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePagePostingFailureRollsBack(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO pages").
		WithArgs(int64(1), "https://example.com/a", 200, "").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery("INSERT INTO lemmas").
		WithArgs(int64(1), "appl", 1).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec("INSERT INTO postings").
		WithArgs(int64(7), int64(3), 1.0).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.SavePage(context.Background(), index.Page{
		SiteID: 1,
		Path:   "https://example.com/a",
		Code:   200,
	}, map[string]int{"appl": 1})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePageCascades(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM pages").
		WithArgs(int64(1), "https://example.com/a").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("UPDATE lemmas SET frequency").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("DELETE FROM pages").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM lemmas").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.DeletePage(context.Background(), 1, "https://example.com/a"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePageMissingIsNoop(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM pages").
		WithArgs(int64(1), "https://example.com/none").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	require.NoError(t, store.DeletePage(context.Background(), 1, "https://example.com/none"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTermPostingsScansRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM postings p JOIN lemmas l").
		WithArgs(int64(1), "banana").
		WillReturnRows(pgxmock.NewRows([]string{"id", "page_id", "lemma_id", "search_rank"}).
			AddRow(int64(1), int64(10), int64(3), 1.0).
			AddRow(int64(2), int64(11), int64(3), 3.0))

	postings, err := store.TermPostings(context.Background(), 1, "banana")
	require.NoError(t, err)
	require.Equal(t, []index.Posting{
		{ID: 1, PageID: 10, LemmaID: 3, Rank: 1},
		{ID: 2, PageID: 11, LemmaID: 3, Rank: 3},
	}, postings)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountPages(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM pages WHERE site_id").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := store.CountPages(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 42, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetTruncates(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("TRUNCATE TABLE postings, lemmas, pages, sites").
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))

	require.NoError(t, store.Reset(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
