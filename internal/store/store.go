package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store is the data access layer for docket's tables. It runs on SQLite by
// default and on PostgreSQL when given a postgres:// DSN.
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l.Named("store") }
}

// NewStore opens the database named by dsn. A postgres:// or
// postgresql:// URL selects PostgreSQL; anything else is a SQLite file path
// opened with WAL mode and foreign keys enabled.
func NewStore(dsn string, opts ...Option) (*Store, error) {
	d := DialectFor(dsn)
	source := dsn
	if d == SQLite {
		source = dsn + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000"
	}
	db, err := sql.Open(d.DriverName(), source)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db, d, opts...), nil
}

// New wraps an open database. Used with sqlmock in tests.
func New(db *sql.DB, d Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: d, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	for _, stmt := range strings.Split(schemaDDL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(s.dialect.DDL(stmt)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	s.log.Debug("schema migrated", zap.String("dialect", s.dialect.String()))
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tables lists every table created by Migrate, parents before children.
var Tables = []string{
	"jurisdictions", "legislative_sessions",
	"organizations", "organization_names", "organization_sources",
	"people", "person_names", "person_sources",
	"memberships",
	"bills", "bill_abstracts", "bill_titles", "bill_identifiers",
	"bill_actions", "bill_action_related_entities", "bill_sponsorships",
	"bill_documents", "bill_document_links", "bill_versions", "bill_version_links",
	"bill_related_bills", "bill_sources",
	"import_runs",
}

const schemaDDL = `
-- Jurisdictions

CREATE TABLE IF NOT EXISTS jurisdictions (
  id              TEXT PRIMARY KEY,
  name            TEXT NOT NULL,
  url             TEXT,
  classification  TEXT,
  division_id     TEXT,
  created_at      TEXT NOT NULL,
  updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS legislative_sessions (
  id              TEXT PRIMARY KEY,
  jurisdiction_id TEXT NOT NULL REFERENCES jurisdictions(id),
  identifier      TEXT NOT NULL,
  name            TEXT,
  classification  TEXT,
  start_date      TEXT,
  end_date        TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_key ON legislative_sessions(jurisdiction_id, identifier);

-- Organizations

CREATE TABLE IF NOT EXISTS organizations (
  id               TEXT PRIMARY KEY,
  jurisdiction_id  TEXT NOT NULL,
  name             TEXT NOT NULL,
  classification   TEXT NOT NULL,
  chamber          TEXT,
  parent_id        TEXT REFERENCES organizations(id),
  founding_date    TEXT,
  dissolution_date TEXT,
  image            TEXT,
  created_at       TEXT NOT NULL,
  updated_at       TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_organizations_key ON organizations(jurisdiction_id, classification, COALESCE(parent_id, ''), name);
CREATE INDEX IF NOT EXISTS idx_organizations_name ON organizations(jurisdiction_id, name);

CREATE TABLE IF NOT EXISTS organization_names (
  id              TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL REFERENCES organizations(id),
  name            TEXT NOT NULL,
  note            TEXT,
  start_date      TEXT,
  end_date        TEXT
);

CREATE TABLE IF NOT EXISTS organization_sources (
  id              TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL REFERENCES organizations(id),
  url             TEXT NOT NULL,
  note            TEXT
);

-- People

CREATE TABLE IF NOT EXISTS people (
  id              TEXT PRIMARY KEY,
  jurisdiction_id TEXT NOT NULL,
  name            TEXT NOT NULL,
  birth_date      TEXT,
  death_date      TEXT,
  gender          TEXT,
  image           TEXT,
  summary         TEXT,
  created_at      TEXT NOT NULL,
  updated_at      TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_people_key ON people(jurisdiction_id, name, COALESCE(birth_date, ''));

CREATE TABLE IF NOT EXISTS person_names (
  id          TEXT PRIMARY KEY,
  person_id   TEXT NOT NULL REFERENCES people(id),
  name        TEXT NOT NULL,
  note        TEXT,
  start_date  TEXT,
  end_date    TEXT
);

CREATE TABLE IF NOT EXISTS person_sources (
  id          TEXT PRIMARY KEY,
  person_id   TEXT NOT NULL REFERENCES people(id),
  url         TEXT NOT NULL,
  note        TEXT
);

-- Memberships

CREATE TABLE IF NOT EXISTS memberships (
  id              TEXT PRIMARY KEY,
  jurisdiction_id TEXT NOT NULL,
  person_id       TEXT NOT NULL REFERENCES people(id),
  organization_id TEXT NOT NULL REFERENCES organizations(id),
  role            TEXT NOT NULL,
  label           TEXT,
  start_date      TEXT,
  end_date        TEXT,
  created_at      TEXT NOT NULL,
  updated_at      TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_key ON memberships(jurisdiction_id, person_id, organization_id, role);

-- Bills

CREATE TABLE IF NOT EXISTS bills (
  id                     TEXT PRIMARY KEY,
  jurisdiction_id        TEXT NOT NULL,
  legislative_session    TEXT NOT NULL,
  legislative_session_id TEXT NOT NULL REFERENCES legislative_sessions(id),
  identifier             TEXT NOT NULL,
  title                  TEXT NOT NULL,
  classification         TEXT,
  subject                TEXT,
  from_organization_id   TEXT NOT NULL REFERENCES organizations(id),
  created_at             TEXT NOT NULL,
  updated_at             TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bills_key ON bills(jurisdiction_id, legislative_session, identifier);

CREATE TABLE IF NOT EXISTS bill_abstracts (
  id        TEXT PRIMARY KEY,
  bill_id   TEXT NOT NULL REFERENCES bills(id),
  abstract  TEXT NOT NULL,
  note      TEXT,
  date      TEXT
);

CREATE TABLE IF NOT EXISTS bill_titles (
  id        TEXT PRIMARY KEY,
  bill_id   TEXT NOT NULL REFERENCES bills(id),
  title     TEXT NOT NULL,
  note      TEXT
);

CREATE TABLE IF NOT EXISTS bill_identifiers (
  id          TEXT PRIMARY KEY,
  bill_id     TEXT NOT NULL REFERENCES bills(id),
  identifier  TEXT NOT NULL,
  scheme      TEXT,
  note        TEXT
);

CREATE TABLE IF NOT EXISTS bill_actions (
  id                TEXT PRIMARY KEY,
  bill_id           TEXT NOT NULL REFERENCES bills(id),
  ord               INTEGER NOT NULL,
  description       TEXT NOT NULL,
  date              TEXT NOT NULL,
  classification    TEXT,
  organization_name TEXT,
  organization_id   TEXT REFERENCES organizations(id)
);

CREATE INDEX IF NOT EXISTS idx_bill_actions_bill ON bill_actions(bill_id, ord);

CREATE TABLE IF NOT EXISTS bill_action_related_entities (
  id              TEXT PRIMARY KEY,
  action_id       TEXT NOT NULL REFERENCES bill_actions(id),
  name            TEXT NOT NULL,
  entity_type     TEXT NOT NULL,
  person_id       TEXT REFERENCES people(id),
  organization_id TEXT REFERENCES organizations(id)
);

CREATE TABLE IF NOT EXISTS bill_sponsorships (
  id              TEXT PRIMARY KEY,
  bill_id         TEXT NOT NULL REFERENCES bills(id),
  name            TEXT NOT NULL,
  entity_type     TEXT NOT NULL,
  classification  TEXT,
  is_primary      INTEGER NOT NULL DEFAULT 0,
  person_id       TEXT REFERENCES people(id),
  organization_id TEXT REFERENCES organizations(id)
);

CREATE INDEX IF NOT EXISTS idx_bill_sponsorships_bill ON bill_sponsorships(bill_id);

CREATE TABLE IF NOT EXISTS bill_documents (
  id              TEXT PRIMARY KEY,
  bill_id         TEXT NOT NULL REFERENCES bills(id),
  note            TEXT,
  date            TEXT,
  classification  TEXT
);

CREATE TABLE IF NOT EXISTS bill_document_links (
  id          TEXT PRIMARY KEY,
  document_id TEXT NOT NULL REFERENCES bill_documents(id),
  url         TEXT NOT NULL,
  media_type  TEXT,
  text        TEXT
);

CREATE TABLE IF NOT EXISTS bill_versions (
  id              TEXT PRIMARY KEY,
  bill_id         TEXT NOT NULL REFERENCES bills(id),
  note            TEXT,
  date            TEXT,
  classification  TEXT
);

CREATE TABLE IF NOT EXISTS bill_version_links (
  id          TEXT PRIMARY KEY,
  version_id  TEXT NOT NULL REFERENCES bill_versions(id),
  url         TEXT NOT NULL,
  media_type  TEXT,
  text        TEXT
);

CREATE TABLE IF NOT EXISTS bill_related_bills (
  id                  TEXT PRIMARY KEY,
  bill_id             TEXT NOT NULL REFERENCES bills(id),
  identifier          TEXT NOT NULL,
  legislative_session TEXT NOT NULL,
  relation_type       TEXT,
  related_bill_id     TEXT REFERENCES bills(id)
);

CREATE TABLE IF NOT EXISTS bill_sources (
  id        TEXT PRIMARY KEY,
  bill_id   TEXT NOT NULL REFERENCES bills(id),
  url       TEXT NOT NULL,
  note      TEXT
);

-- Bookkeeping

CREATE TABLE IF NOT EXISTS import_runs (
  id              TEXT PRIMARY KEY,
  jurisdiction_id TEXT NOT NULL,
  started_at      TEXT NOT NULL,
  finished_at     TEXT NOT NULL,
  created         INTEGER NOT NULL DEFAULT 0,
  updated         INTEGER NOT NULL DEFAULT 0,
  unchanged       INTEGER NOT NULL DEFAULT 0,
  failed          INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_import_runs_jurisdiction ON import_runs(jurisdiction_id, finished_at)
`
