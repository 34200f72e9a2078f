// Package pgfunc installs the udf functions into PostgreSQL so they can be
// called from plain SQL, and evaluates them there.
package pgfunc

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p2p-org/polkadot-profit-transformer/internal/udf"
)

// Execer runs statements. *pgxpool.Pool and pgx.Tx satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Querier runs single-row queries. *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// STRICT makes Postgres return NULL without calling the body when either
// argument is NULL.
var isValidatorDDL = `CREATE OR REPLACE FUNCTION ` + udf.IsValidatorName + `(extrinsics text, account_id text)
RETURNS boolean
LANGUAGE sql
IMMUTABLE STRICT PARALLEL SAFE
AS $fn$ SELECT strpos(extrinsics, ` + quoteLiteral(udf.ValidatorStashMarker) + ` || account_id) > 0 $fn$`

const isValidatorQuery = `SELECT ` + udf.IsValidatorName + `($1::text, $2::text)`

// Connect opens a pool for dsn and checks it is reachable.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Install creates or replaces is_validator in the connected database.
func Install(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, isValidatorDDL); err != nil {
		return fmt.Errorf("create function %s: %w", udf.IsValidatorName, err)
	}
	return nil
}

// Evaluate calls the installed is_validator through SQL.
func Evaluate(ctx context.Context, db Querier, extrinsics, accountID pgtype.Text) (pgtype.Bool, error) {
	var out pgtype.Bool
	if err := db.QueryRow(ctx, isValidatorQuery, extrinsics, accountID).Scan(&out); err != nil {
		return pgtype.Bool{}, fmt.Errorf("evaluate %s: %w", udf.IsValidatorName, err)
	}
	return out, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
