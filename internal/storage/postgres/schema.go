package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sites (
	id          BIGSERIAL PRIMARY KEY,
	url         TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	status_time TIMESTAMPTZ NOT NULL,
	last_error  TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS pages (
	id      BIGSERIAL PRIMARY KEY,
	site_id BIGINT NOT NULL REFERENCES sites (id) ON DELETE CASCADE,
	path    TEXT NOT NULL,
	code    INTEGER NOT NULL,
	content TEXT NOT NULL,
	UNIQUE (site_id, path)
)`,
	`CREATE TABLE IF NOT EXISTS lemmas (
	id        BIGSERIAL PRIMARY KEY,
	site_id   BIGINT NOT NULL REFERENCES sites (id) ON DELETE CASCADE,
	lemma     TEXT NOT NULL,
	frequency INTEGER NOT NULL,
	UNIQUE (site_id, lemma)
)`,
	`CREATE TABLE IF NOT EXISTS postings (
	id          BIGSERIAL PRIMARY KEY,
	page_id     BIGINT NOT NULL REFERENCES pages (id) ON DELETE CASCADE,
	lemma_id    BIGINT NOT NULL REFERENCES lemmas (id) ON DELETE CASCADE,
	search_rank DOUBLE PRECISION NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS postings_lemma_idx ON postings (lemma_id)`,
	`CREATE INDEX IF NOT EXISTS postings_page_idx ON postings (page_id)`,
}

// Migrate creates the index tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
