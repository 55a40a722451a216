package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MrEthical07/goRoam"
	"github.com/MrEthical07/goRoam/password"
)

// Schema creates the tables PostgresStore reads. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS goroam_sites (
	id  TEXT PRIMARY KEY,
	url TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS goroam_identities (
	id            TEXT PRIMARY KEY,
	site_id       TEXT NOT NULL REFERENCES goroam_sites (id),
	login         TEXT NOT NULL,
	email         TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	main_id       TEXT NOT NULL DEFAULT '',
	roles         TEXT NOT NULL DEFAULT '[]',
	network_admin BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE UNIQUE INDEX IF NOT EXISTS goroam_identities_site_login ON goroam_identities (site_id, lower(login));
CREATE INDEX IF NOT EXISTS goroam_identities_site_email ON goroam_identities (site_id, lower(email));
CREATE INDEX IF NOT EXISTS goroam_identities_main_id ON goroam_identities (main_id) WHERE main_id <> '';
`

const identityColumns = `id, site_id, login, email, password_hash, main_id, roles, network_admin`

// Open opens a Postgres connection using the given DSN. Caller must call Close when done.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// PostgresStore is an identity table and site directory in Postgres.
type PostgresStore struct {
	db     *sql.DB
	hasher password.Hasher
}

// NewPostgresStore returns a store that uses db for persistence and hasher
// for credentials.
func NewPostgresStore(db *sql.DB, hasher password.Hasher) *PostgresStore {
	return &PostgresStore{db: db, hasher: hasher}
}

// Migrate applies [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// AddSite inserts a tenant with its normalized URL.
func (s *PostgresStore) AddSite(ctx context.Context, site goRoam.Site) (goRoam.Site, error) {
	normalized, err := NormalizeSiteURL(site.URL)
	if err != nil {
		return goRoam.Site{}, err
	}
	site.URL = normalized
	_, err = s.db.ExecContext(ctx, `INSERT INTO goroam_sites (id, url) VALUES ($1, $2)`, site.ID, site.URL)
	if err != nil {
		return goRoam.Site{}, err
	}
	return site, nil
}

// AddIdentity inserts identity with plain hashed as its credential. An empty
// ID is filled with a random UUID.
func (s *PostgresStore) AddIdentity(ctx context.Context, identity goRoam.Identity, plain string) (goRoam.Identity, error) {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	if plain != "" {
		hash, err := s.hasher.Hash(plain)
		if err != nil {
			return goRoam.Identity{}, err
		}
		identity.PasswordHash = hash
	}
	roles, err := encodeRoles(identity.Roles)
	if err != nil {
		return goRoam.Identity{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO goroam_identities (`+identityColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		identity.ID, identity.SiteID, identity.Login, identity.Email, identity.PasswordHash,
		identity.MainID, roles, identity.NetworkAdmin,
	)
	if err != nil {
		return goRoam.Identity{}, err
	}
	return identity, nil
}

// RemoveIdentity deletes an identity row.
func (s *PostgresStore) RemoveIdentity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM goroam_identities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) IdentityByID(ctx context.Context, id string) (goRoam.Identity, error) {
	return s.queryIdentity(ctx, `SELECT `+identityColumns+` FROM goroam_identities WHERE id = $1`, id)
}

func (s *PostgresStore) IdentityByLogin(ctx context.Context, siteID, login string) (goRoam.Identity, error) {
	return s.queryIdentity(ctx,
		`SELECT `+identityColumns+` FROM goroam_identities WHERE site_id = $1 AND lower(login) = lower($2)`,
		siteID, login)
}

func (s *PostgresStore) IdentityByEmail(ctx context.Context, siteID, email string) (goRoam.Identity, error) {
	if email == "" {
		return goRoam.Identity{}, goRoam.ErrIdentityNotFound
	}
	return s.queryIdentity(ctx,
		`SELECT `+identityColumns+` FROM goroam_identities WHERE site_id = $1 AND lower(email) = lower($2) ORDER BY id LIMIT 1`,
		siteID, email)
}

func (s *PostgresStore) VerifyCredential(_ context.Context, identity goRoam.Identity, plain string) (bool, error) {
	return verify(s.hasher, identity.PasswordHash, plain)
}

func (s *PostgresStore) SetMainID(ctx context.Context, identityID, mainID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE goroam_identities SET main_id = $2 WHERE id = $1`, identityID, mainID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) LinkedTo(ctx context.Context, mainID string) ([]goRoam.Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM goroam_identities WHERE main_id = $1 ORDER BY site_id, id`, mainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []goRoam.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, identity)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SiteByURL(ctx context.Context, rawURL string) (goRoam.Site, error) {
	normalized, err := NormalizeSiteURL(rawURL)
	if err != nil {
		return goRoam.Site{}, goRoam.ErrSiteNotFound
	}
	return s.querySite(ctx, `SELECT id, url FROM goroam_sites WHERE url = $1`, normalized)
}

func (s *PostgresStore) SiteByID(ctx context.Context, id string) (goRoam.Site, error) {
	return s.querySite(ctx, `SELECT id, url FROM goroam_sites WHERE id = $1`, id)
}

func (s *PostgresStore) queryIdentity(ctx context.Context, query string, args ...any) (goRoam.Identity, error) {
	identity, err := scanIdentity(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goRoam.Identity{}, goRoam.ErrIdentityNotFound
		}
		return goRoam.Identity{}, err
	}
	return identity, nil
}

func (s *PostgresStore) querySite(ctx context.Context, query string, args ...any) (goRoam.Site, error) {
	var site goRoam.Site
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&site.ID, &site.URL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goRoam.Site{}, goRoam.ErrSiteNotFound
		}
		return goRoam.Site{}, err
	}
	return site, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (goRoam.Identity, error) {
	var (
		identity goRoam.Identity
		roles    string
	)
	err := row.Scan(
		&identity.ID, &identity.SiteID, &identity.Login, &identity.Email,
		&identity.PasswordHash, &identity.MainID, &roles, &identity.NetworkAdmin,
	)
	if err != nil {
		return goRoam.Identity{}, err
	}
	identity.Roles, err = decodeRoles(roles)
	if err != nil {
		return goRoam.Identity{}, err
	}
	return identity, nil
}

func encodeRoles(roles []string) (string, error) {
	if len(roles) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeRoles(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var roles []string
	if err := json.Unmarshal([]byte(raw), &roles); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	return roles, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return goRoam.ErrIdentityNotFound
	}
	return nil
}
