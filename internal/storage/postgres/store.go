// Package postgres provides the Postgres-backed index store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/site-search/internal/index"
)

const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store implements index.Store on Postgres.
type Store struct {
	pool pool
}

// New connects a pool using cfg and applies the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &Store{pool: p}
	if err := store.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Reset truncates every index table.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE TABLE postings, lemmas, pages, sites CASCADE`); err != nil {
		return fmt.Errorf("truncate index: %w", err)
	}
	return nil
}

// CreateSite inserts a site row.
func (s *Store) CreateSite(ctx context.Context, site index.Site) (index.Site, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sites (url, name, status, status_time, last_error) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		site.URL, site.Name, string(site.Status), site.StatusTime, site.LastError,
	).Scan(&site.ID)
	if err != nil {
		return index.Site{}, fmt.Errorf("insert site: %w", err)
	}
	return site, nil
}

const siteColumns = `id, url, name, status, status_time, last_error`

// SiteByURL looks a site up by root URL.
func (s *Store) SiteByURL(ctx context.Context, url string) (index.Site, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE url = $1`, url)
	return scanSite(row)
}

// SiteByID looks a site up by id.
func (s *Store) SiteByID(ctx context.Context, id int64) (index.Site, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id)
	return scanSite(row)
}

// Sites lists every site ordered by id.
func (s *Store) Sites(ctx context.Context) ([]index.Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY id`)
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
	tag, err := s.pool.Exec(ctx,
		`UPDATE sites SET status = $1, last_error = $2, status_time = $3 WHERE id = $4`,
		string(status), lastError, at, id,
	)
	if err != nil {
		return fmt.Errorf("update site status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return index.ErrNotFound
	}
	return nil
}

// SavePage writes the page, upserts each lemma and links postings in one transaction.
// Terms are written in sorted order so concurrent transactions lock lemma rows consistently.
func (s *Store) SavePage(ctx context.Context, page index.Page, terms map[string]int) (index.Page, error) {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO pages (site_id, path, code, content) VALUES ($1, $2, $3, $4) RETURNING id`,
			page.SiteID, page.Path, page.Code, page.Content,
		).Scan(&page.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert page %q: %w", page.Path, index.ErrDuplicatePage)
			}
			return fmt.Errorf("insert page: %w", err)
		}
		for _, term := range sortedTerms(terms) {
			count := terms[term]
			var lemmaID int64
			err := tx.QueryRow(ctx,
				`INSERT INTO lemmas (site_id, lemma, frequency) VALUES ($1, $2, $3)
ON CONFLICT (site_id, lemma) DO UPDATE SET frequency = lemmas.frequency + EXCLUDED.frequency
RETURNING id`,
				page.SiteID, term, count,
			).Scan(&lemmaID)
			if err != nil {
				return fmt.Errorf("upsert lemma %q: %w", term, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO postings (page_id, lemma_id, search_rank) VALUES ($1, $2, $3)`,
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
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var pageID int64
		err := tx.QueryRow(ctx, `SELECT id FROM pages WHERE site_id = $1 AND path = $2`, siteID, path).Scan(&pageID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find page: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE lemmas SET frequency = lemmas.frequency - CAST(postings.search_rank AS INTEGER)
FROM postings WHERE postings.lemma_id = lemmas.id AND postings.page_id = $1`,
			pageID,
		); err != nil {
			return fmt.Errorf("decrement lemmas: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM pages WHERE id = $1`, pageID); err != nil {
			return fmt.Errorf("delete page: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM lemmas WHERE site_id = $1 AND frequency <= 0`, siteID); err != nil {
			return fmt.Errorf("prune lemmas: %w", err)
		}
		return nil
	})
}

// PageByID returns a page.
func (s *Store) PageByID(ctx context.Context, id int64) (index.Page, error) {
	var page index.Page
	err := s.pool.QueryRow(ctx,
		`SELECT id, site_id, path, code, content FROM pages WHERE id = $1`, id,
	).Scan(&page.ID, &page.SiteID, &page.Path, &page.Code, &page.Content)
	if errors.Is(err, pgx.ErrNoRows) {
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
	err := s.pool.QueryRow(ctx,
		`SELECT id, site_id, lemma, frequency FROM lemmas WHERE site_id = $1 AND lemma = $2`, siteID, term,
	).Scan(&lemma.ID, &lemma.SiteID, &lemma.Term, &lemma.Frequency)
	if errors.Is(err, pgx.ErrNoRows) {
		return index.Lemma{}, index.ErrNotFound
	}
	if err != nil {
		return index.Lemma{}, fmt.Errorf("select lemma: %w", err)
	}
	return lemma, nil
}

// TermPostings returns the postings of a term within a site ordered by insertion.
func (s *Store) TermPostings(ctx context.Context, siteID int64, term string) ([]index.Posting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.page_id, p.lemma_id, p.search_rank
FROM postings p JOIN lemmas l ON l.id = p.lemma_id
WHERE l.site_id = $1 AND l.lemma = $2
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
	return s.count(ctx, `SELECT count(*) FROM pages WHERE site_id = $1`, siteID)
}

// CountLemmas counts a site's lemmas.
func (s *Store) CountLemmas(ctx context.Context, siteID int64) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM lemmas WHERE site_id = $1`, siteID)
}

func (s *Store) count(ctx context.Context, query string, siteID int64) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, query, siteID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return int(n), nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
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
	if errors.Is(err, pgx.ErrNoRows) {
		return index.Site{}, index.ErrNotFound
	}
	if err != nil {
		return index.Site{}, fmt.Errorf("scan site: %w", err)
	}
	site.Status = index.SiteStatus(status)
	return site, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func sortedTerms(terms map[string]int) []string {
	out := make([]string, 0, len(terms))
	for term := range terms {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}
