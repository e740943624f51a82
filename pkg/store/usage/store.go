package usage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/de-tools/storage-audit/pkg/models/domain"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Store appends usage rows to the reporting table. Rows are never updated or deleted.
type Store interface {
	InsertUsageRow(ctx context.Context, row domain.UsageRow) error
}

type usageStore struct {
	db    *sql.DB
	query string
}

func NewStore(db *sql.DB, schema, table string) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if schema == "" || table == "" {
		return nil, fmt.Errorf("output schema and table are required")
	}
	return &usageStore{
		db:    db,
		query: insertQuery(schema, table),
	}, nil
}

func insertQuery(schema, table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (
			run_id, computed_at, scope, bucket, base_prefix,
			tenant_identifier, status, prefix_encoded,
			objects_count, bytes_total, gb_total, api_calls,
			cost_estimated_usd, statuses_filter, extra_note
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)`, pgx.Identifier{schema, table}.Sanitize())
}

func (u *usageStore) InsertUsageRow(ctx context.Context, row domain.UsageRow) error {
	_, err := u.db.ExecContext(ctx, u.query,
		row.RunID,
		row.ComputedAt,
		string(row.Scope),
		row.Bucket,
		row.BasePrefix,
		row.TenantID,
		row.Status,
		row.PrefixEncoded,
		row.ObjectsCount,
		row.BytesTotal,
		row.GBTotal,
		row.APICalls,
		row.CostEstimatedUSD,
		row.StatusesFilter,
		row.ExtraNote,
	)
	if err != nil {
		return &domain.DataAccessError{Op: "insert usage row", Err: err}
	}

	zerolog.Ctx(ctx).Debug().
		Str("scope", string(row.Scope)).
		Str("note", deref(row.ExtraNote)).
		Msg("usage row inserted")

	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
