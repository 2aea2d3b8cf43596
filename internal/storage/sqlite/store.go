// Package sqlite provides an embedded, file-backed index store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/site-search/internal/index"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sites (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	url         TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	status_time TIMESTAMP NOT NULL,
	last_error  TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS pages (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id INTEGER NOT NULL REFERENCES sites (id) ON DELETE CASCADE,
	path    TEXT NOT NULL,
	code    INTEGER NOT NULL,
	content TEXT NOT NULL,
	UNIQUE (site_id, path)
)`,
	`CREATE TABLE IF NOT EXISTS lemmas (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id   INTEGER NOT NULL REFERENCES sites (id) ON DELETE CASCADE,
	lemma     TEXT NOT NULL,
	frequency INTEGER NOT NULL,
	UNIQUE (site_id, lemma)
)`,
	`CREATE TABLE IF NOT EXISTS postings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	page_id     INTEGER NOT NULL REFERENCES pages (id) ON DELETE CASCADE,
	lemma_id    INTEGER NOT NULL REFERENCES lemmas (id) ON DELETE CASCADE,
	search_rank REAL NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS postings_lemma_idx ON postings (lemma_id)`,
	`CREATE INDEX IF NOT EXISTS postings_page_idx ON postings (page_id)`,
}

// Store implements index.Store on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage.sqlite_path is required")
	}
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection serializes writers and keeps ":memory:" databases alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on"
	}
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Reset deletes every row from the index tables.
func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"postings", "lemmas", "pages", "sites"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// CreateSite inserts a site row.
func (s *Store) CreateSite(ctx context.Context, site index.Site) (index.Site, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (url, name, status, status_time, last_error) VALUES (?, ?, ?, ?, ?)`,
		site.URL, site.Name, string(site.Status), site.StatusTime.UTC(), site.LastError,
	)
	if err != nil {
		return index.Site{}, fmt.Errorf("insert site: %w", err)
	}
	if site.ID, err = res.LastInsertId(); err != nil {
		return index.Site{}, fmt.Errorf("site id: %w", err)
	}
	return site, nil
}

const siteColumns = `id, url, name, status, status_time, last_error`

// SiteByURL looks a site up by root URL.
func (s *Store) SiteByURL(ctx context.Context, url string) (index.Site, error) {
	return scanSite(s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE url = ?`, url))
}

// SiteByID looks a site up by id.
func (s *Store) SiteByID(ctx context.Context, id int64) (index.Site, error) {
	return scanSite(s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id))
}

// Sites lists every site ordered by id.
func (s *Store) Sites(ctx context.Context) ([]index.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()
	var out []index.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return out, nil
}

// SetSiteStatus updates a site's lifecycle fields.
func (s *Store) SetSiteStatus(
	ctx context.Context,
	id int64,
	status index.SiteStatus,
	lastError string,
	at time.Time,
) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites SET status = ?, last_error = ?, status_time = ? WHERE id = ?`,
		string(status), lastError, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update site status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update site status: %w", err)
	}
	if n == 0 {
		return index.ErrNotFound
	}
	return nil
}

// SavePage writes the page, upserts each lemma and links postings in one transaction.
func (s *Store) SavePage(ctx context.Context, page index.Page, terms map[string]int) (index.Page, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO pages (site_id, path, code, content) VALUES (?, ?, ?, ?)`,
			page.SiteID, page.Path, page.Code, page.Content,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert page %q: %w", page.Path, index.ErrDuplicatePage)
			}
			return fmt.Errorf("insert page: %w", err)
		}
		if page.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("page id: %w", err)
		}
		for _, term := range sortedTerms(terms) {
			count := terms[term]
			var lemmaID int64
			err := tx.QueryRowContext(ctx,
				`INSERT INTO lemmas (site_id, lemma, frequency) VALUES (?, ?, ?)
ON CONFLICT (site_id, lemma) DO UPDATE SET frequency = frequency + excluded.frequency
RETURNING id`,
				page.SiteID, term, count,
			).Scan(&lemmaID)
			if err != nil {
				return fmt.Errorf("upsert lemma %q: %w", term, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO postings (page_id, lemma_id, search_rank) VALUES (?, ?, ?)`,
				page.ID, lemmaID, float64(count),
			); err != nil {
				return fmt.Errorf("insert posting: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return index.Page{}, err
	}
	return page, nil
}

// DeletePage removes a page and rolls its postings back out of the lemma frequencies.
func (s *Store) DeletePage(ctx context.Context, siteID int64, path string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var pageID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM pages WHERE site_id = ? AND path = ?`, siteID, path).Scan(&pageID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find page: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE lemmas SET frequency = frequency - (
	SELECT CAST(p.search_rank AS INTEGER) FROM postings p WHERE p.lemma_id = lemmas.id AND p.page_id = ?
) WHERE id IN (SELECT lemma_id FROM postings WHERE page_id = ?)`,
			pageID, pageID,
		); err != nil {
			return fmt.Errorf("decrement lemmas: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, pageID); err != nil {
			return fmt.Errorf("delete page: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lemmas WHERE site_id = ? AND frequency <= 0`, siteID); err != nil {
			return fmt.Errorf("prune lemmas: %w", err)
		}
		return nil
	})
}

// PageByID returns a page.
func (s *Store) PageByID(ctx context.Context, id int64) (index.Page, error) {
	var page index.Page
	err := s.db.QueryRowContext(ctx,
		`SELECT id, site_id, path, code, content FROM pages WHERE id = ?`, id,
	).Scan(&page.ID, &page.SiteID, &page.Path, &page.Code, &page.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return index.Page{}, index.ErrNotFound
	}
	if err != nil {
		return index.Page{}, fmt.Errorf("select page: %w", err)
	}
	return page, nil
}

// LemmaByTerm returns the canonical lemma row.
func (s *Store) LemmaByTerm(ctx context.Context, siteID int64, term string) (index.Lemma, error) {
	var lemma index.Lemma
	err := s.db.QueryRowContext(ctx,
		`SELECT id, site_id, lemma, frequency FROM lemmas WHERE site_id = ? AND lemma = ?`, siteID, term,
	).Scan(&lemma.ID, &lemma.SiteID, &lemma.Term, &lemma.Frequency)
	if errors.Is(err, sql.ErrNoRows) {
		return index.Lemma{}, index.ErrNotFound
	}
	if err != nil {
		return index.Lemma{}, fmt.Errorf("select lemma: %w", err)
	}
	return lemma, nil
}

// TermPostings returns the postings of a term within a site ordered by insertion.
func (s *Store) TermPostings(ctx context.Context, siteID int64, term string) ([]index.Posting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.page_id, p.lemma_id, p.search_rank
FROM postings p JOIN lemmas l ON l.id = p.lemma_id
WHERE l.site_id = ? AND l.lemma = ?
ORDER BY p.id`,
		siteID, term,
	)
	if err != nil {
		return nil, fmt.Errorf("query postings: %w", err)
	}
	defer rows.Close()
	var out []index.Posting
	for rows.Next() {
		var posting index.Posting
		if err := rows.Scan(&posting.ID, &posting.PageID, &posting.LemmaID, &posting.Rank); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		out = append(out, posting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate postings: %w", err)
	}
	return out, nil
}

// CountPages counts a site's pages.
func (s *Store) CountPages(ctx context.Context, siteID int64) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM pages WHERE site_id = ?`, siteID)
}

// CountLemmas counts a site's lemmas.
func (s *Store) CountLemmas(ctx context.Context, siteID int64) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM lemmas WHERE site_id = ?`, siteID)
}

func (s *Store) count(ctx context.Context, query string, siteID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, siteID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (index.Site, error) {
	var (
		site   index.Site
		status string
	)
	err := row.Scan(&site.ID, &site.URL, &site.Name, &status, &site.StatusTime, &site.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return index.Site{}, index.ErrNotFound
	}
	if err != nil {
		return index.Site{}, fmt.Errorf("scan site: %w", err)
	}
	site.Status = index.SiteStatus(status)
	return site, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func sortedTerms(terms map[string]int) []string {
	out := make([]string, 0, len(terms))
	for term := range terms {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}
