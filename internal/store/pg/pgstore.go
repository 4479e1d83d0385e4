// Package pg persists authority tokens in PostgreSQL. Stored rows are
// treated as untrusted input: every load goes through Rehydrate, and
// lifecycle validity is always recomputed, never read back.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mandate.org/internal/authority"
	"mandate.org/internal/registry"
)

type Store struct {
	db *sql.DB
}

var _ registry.Service = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool. Used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const selectTokenColumns = `token_id, issuer, subject, capability, scope, issued_at, expires_at, coalesce(parent_token_id,'')`

func (s *Store) Mint(ctx context.Context, params registry.MintParams) (authority.Token, error) {
	request, err := registry.BuildMintRequest(params)
	if err != nil {
		return authority.Token{}, err
	}
	token, err := authority.Mint(request)
	if err != nil {
		return authority.Token{}, err
	}
	if err := s.insertToken(ctx, s.db, token); err != nil {
		return authority.Token{}, err
	}
	return token, nil
}

func (s *Store) Delegate(ctx context.Context, parentID authority.TokenID, params registry.DelegateParams) (authority.Token, error) {
	request, err := registry.BuildDelegationRequest(params)
	if err != nil {
		return authority.Token{}, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return authority.Token{}, err
	}
	defer func() { _ = tx.Rollback() }()

	parent, err := scanToken(tx.QueryRowContext(ctx, `
		select `+selectTokenColumns+`
		from authority_tokens where token_id=$1
	`, string(parentID)))
	if err != nil {
		return authority.Token{}, err
	}

	// The delegation gates need the parent's revocation status only.
	index := authority.NewRevocationIndex()
	var revoked bool
	if err := tx.QueryRowContext(ctx, `
		select exists(select 1 from revoked_tokens where token_id=$1)
	`, string(parentID)).Scan(&revoked); err != nil {
		return authority.Token{}, err
	}
	if revoked {
		index.Revoke(parentID)
	}

	child, err := authority.Delegate(parent, request, index)
	if err != nil {
		return authority.Token{}, err
	}
	if err := s.insertToken(ctx, tx, child); err != nil {
		return authority.Token{}, err
	}
	if err := tx.Commit(); err != nil {
		return authority.Token{}, err
	}
	return child, nil
}

// Revoke records the id in the revocation table. Insert-only and
// idempotent; there is no way to clear a revocation.
func (s *Store) Revoke(ctx context.Context, tokenID authority.TokenID) error {
	_, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens(token_id) values ($1)
		on conflict (token_id) do nothing
	`, string(tokenID))
	return err
}

func (s *Store) GetToken(ctx context.Context, tokenID authority.TokenID) (authority.Token, error) {
	return scanToken(s.db.QueryRowContext(ctx, `
		select `+selectTokenColumns+`
		from authority_tokens where token_id=$1
	`, string(tokenID)))
}

func (s *Store) ListTokens(ctx context.Context, subject string, limit int) ([]authority.Token, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+selectTokenColumns+`
		from authority_tokens
		where ($1 = '' or subject = $1)
		order by sequence asc
		limit $2
	`, subject, limit)
	if err != nil {
		return nil, err
	}
	return collectTokens(rows)
}

func (s *Store) RevokedIDs(ctx context.Context) ([]authority.TokenID, error) {
	rows, err := s.db.QueryContext(ctx, `select token_id from revoked_tokens order by token_id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authority.TokenID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, authority.TokenID(id))
	}
	return out, rows.Err()
}

func (s *Store) ValidateAt(ctx context.Context, evaluationTime authority.Timestamp) (authority.BoundaryValidation, error) {
	tokens, index, err := s.loadCollection(ctx)
	if err != nil {
		return authority.BoundaryValidation{}, err
	}
	return authority.ValidateAtPolicyBoundary(tokens, index, evaluationTime), nil
}

func (s *Store) RestoreAt(ctx context.Context, restoreTime authority.Timestamp) (authority.BoundaryValidation, error) {
	tokens, index, err := s.loadCollection(ctx)
	if err != nil {
		return authority.BoundaryValidation{}, err
	}
	return authority.RevalidateOnRestore(tokens, index, restoreTime), nil
}

// loadCollection rehydrates every stored token in insertion order
// together with the revocation index. The read is deliberately
// unbounded: validation partitions the whole collection, and a capped
// read would report a partial result as complete.
func (s *Store) loadCollection(ctx context.Context) ([]authority.Token, *authority.RevocationIndex, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+selectTokenColumns+`
		from authority_tokens
		order by sequence asc
	`)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := collectTokens(rows)
	if err != nil {
		return nil, nil, err
	}
	revoked, err := s.RevokedIDs(ctx)
	if err != nil {
		return nil, nil, err
	}
	index := authority.NewRevocationIndex()
	for _, id := range revoked {
		index.Revoke(id)
	}
	return tokens, index, nil
}

func collectTokens(rows *sql.Rows) ([]authority.Token, error) {
	defer rows.Close()
	var out []authority.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, token)
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertToken(ctx context.Context, db execer, token authority.Token) error {
	record := token.Record()
	scope, err := json.Marshal(record.Scope)
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx, `
		insert into authority_tokens(token_id, issuer, subject, capability, scope, issued_at, expires_at, parent_token_id)
		values ($1,$2,$3,$4,$5,$6,$7,nullif($8,''))
		on conflict (token_id) do nothing
	`, record.TokenID, record.Issuer, record.Subject, record.Capability, scope,
		int64(record.IssuedAt), int64(record.ExpiresAt), record.ParentTokenID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return registry.ErrAlreadyExists
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (authority.Token, error) {
	var (
		record    authority.Record
		scopeRaw  []byte
		issuedAt  int64
		expiresAt int64
	)
	err := row.Scan(&record.TokenID, &record.Issuer, &record.Subject, &record.Capability,
		&scopeRaw, &issuedAt, &expiresAt, &record.ParentTokenID)
	if errors.Is(err, sql.ErrNoRows) {
		return authority.Token{}, registry.ErrNotFound
	}
	if err != nil {
		return authority.Token{}, err
	}
	if err := json.Unmarshal(scopeRaw, &record.Scope); err != nil {
		return authority.Token{}, err
	}
	record.IssuedAt = uint64(issuedAt)
	record.ExpiresAt = uint64(expiresAt)
	return authority.Rehydrate(record)
}
