package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	"github.com/de-tools/storage-audit/pkg/models/domain"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Settings names the tenant table and its columns. Table may be schema-qualified.
type Settings struct {
	Table        string
	IDColumn     string
	StatusColumn string
}

func DefaultSettings() Settings {
	return Settings{
		Table:        "tenants",
		IDColumn:     "tenant_id",
		StatusColumn: "status",
	}
}

// Store yields tenants filtered by status. Every sequence is lazy and single-pass:
// the query runs when ranging starts, and ranging again re-queries.
type Store interface {
	ListByStatusIn(ctx context.Context, statuses []string) iter.Seq2[domain.TenantRecord, error]
	ListByStatusNotIn(ctx context.Context, statuses []string) iter.Seq2[domain.TenantRecord, error]
}

type tenantStore struct {
	db       *sql.DB
	settings Settings
}

func NewStore(db *sql.DB, settings Settings) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if settings.Table == "" || settings.IDColumn == "" || settings.StatusColumn == "" {
		return nil, fmt.Errorf("tenant table and columns are required")
	}
	return &tenantStore{
		db:       db,
		settings: settings,
	}, nil
}

func (s *tenantStore) ListByStatusIn(ctx context.Context, statuses []string) iter.Seq2[domain.TenantRecord, error] {
	return s.list(ctx, statuses, false)
}

func (s *tenantStore) ListByStatusNotIn(ctx context.Context, statuses []string) iter.Seq2[domain.TenantRecord, error] {
	return s.list(ctx, statuses, true)
}

func (s *tenantStore) list(ctx context.Context, statuses []string, negate bool) iter.Seq2[domain.TenantRecord, error] {
	return func(yield func(domain.TenantRecord, error) bool) {
		if len(statuses) == 0 {
			yield(domain.TenantRecord{}, &domain.ConfigurationError{Reason: "status filter must not be empty"})
			return
		}

		logger := zerolog.Ctx(ctx)
		query, args := s.buildQuery(statuses, negate)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(domain.TenantRecord{}, &domain.DataAccessError{Op: "query tenants", Err: err})
			return
		}
		defer func(rows *sql.Rows) {
			err := rows.Close()
			if err != nil {
				logger.Warn().Err(err).Msg("failed to close tenant query rows")
			}
		}(rows)

		for rows.Next() {
			var rec domain.TenantRecord
			if err := rows.Scan(&rec.ID, &rec.Status); err != nil {
				yield(domain.TenantRecord{}, &domain.DataAccessError{Op: "scan tenant", Err: err})
				return
			}
			if !yield(rec, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(domain.TenantRecord{}, &domain.DataAccessError{Op: "iterate tenants", Err: err})
		}
	}
}

func (s *tenantStore) buildQuery(statuses []string, negate bool) (string, []any) {
	placeholders := make([]string, 0, len(statuses))
	args := make([]any, 0, len(statuses))
	for i, status := range statuses {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, status)
	}

	op := "IN"
	if negate {
		op = "NOT IN"
	}

	id := quoteIdent(s.settings.IDColumn)
	status := quoteIdent(s.settings.StatusColumn)

	query := fmt.Sprintf(`
		SELECT %[1]s, %[2]s
		FROM %[3]s
		WHERE %[2]s %[4]s (%[5]s)
			AND %[1]s IS NOT NULL
			AND %[1]s <> 0
			AND %[1]s BETWEEN %[6]d AND %[7]d`,
		id, status, quoteIdent(s.settings.Table), op, strings.Join(placeholders, ", "),
		domain.MinTenantID, domain.MaxTenantID,
	)
	return query, args
}

// quoteIdent quotes a possibly schema-qualified identifier, e.g. billing.tenants -> "billing"."tenants".
func quoteIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
