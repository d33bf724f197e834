package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TableSecurity reports the row-level-security flag and policy count of each named
// table in the public schema. Tables that do not exist are reported as unprotected.
func (s *PostgresStorage) TableSecurity(ctx context.Context, tables []string) ([]TableSecurity, error) {
	query := `SELECT t.name,
			COALESCE(pt.rowsecurity, false),
			(SELECT COUNT(*) FROM pg_policies p WHERE p.schemaname = 'public' AND p.tablename = t.name)
		FROM unnest($1::text[]) WITH ORDINALITY AS t(name, pos)
		LEFT JOIN pg_tables pt ON pt.schemaname = 'public' AND pt.tablename = t.name
		ORDER BY t.pos`

	rows, err := s.pool.Query(ctx, query, tables)
	if err != nil {
		return nil, fmt.Errorf("inspect row level security: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TableSecurity, error) {
		var ts TableSecurity
		err := row.Scan(&ts.Table, &ts.RLSEnabled, &ts.PolicyCount)
		return ts, err
	})
}
