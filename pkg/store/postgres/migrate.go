package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/de-tools/storage-audit/pkg/models/domain"
	"github.com/jackc/pgx/v5"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	"github.com/rs/zerolog"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Migrate creates the output schema and usage table when absent. Each output table
// tracks its own goose version table next to it.
func Migrate(ctx context.Context, db *sql.DB, schema, table string) error {
	if !identPattern.MatchString(schema) || !identPattern.MatchString(table) {
		return &domain.ConfigurationError{
			Reason: "output schema and table must be plain identifiers",
			Fields: []string{"output-schema", "output-table"},
		}
	}

	logger := zerolog.Ctx(ctx)

	if _, err := db.ExecContext(ctx, createSchemaQuery(schema)); err != nil {
		return &domain.DataAccessError{Op: "create output schema", Err: err}
	}

	store, err := database.NewStore(database.DialectPostgres, versionTable(schema, table))
	if err != nil {
		return fmt.Errorf("goose store: %w", err)
	}

	provider, err := goose.NewProvider("", db, nil,
		goose.WithStore(store),
		goose.WithDisableGlobalRegistry(true),
		goose.WithGoMigrations(usageMigrations(schema, table)...),
	)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return &domain.DataAccessError{Op: "migrate output table", Err: err}
	}

	for _, r := range results {
		logger.Info().
			Int64("version", r.Source.Version).
			Str("table", schema+"."+table).
			Dur("duration", r.Duration).
			Msg("migration applied")
	}
	return nil
}

func versionTable(schema, table string) string {
	return schema + ".goose_" + table
}

func usageMigrations(schema, table string) []*goose.Migration {
	return []*goose.Migration{
		goose.NewGoMigration(1,
			&goose.GoFunc{RunTx: execTx(createUsageTableQuery(schema, table), createRunIndexQuery(schema, table))},
			&goose.GoFunc{RunTx: execTx(dropUsageTableQuery(schema, table))},
		),
	}
}

func execTx(queries ...string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, q := range queries {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return err
			}
		}
		return nil
	}
}

func createSchemaQuery(schema string) string {
	return fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{schema}.Sanitize())
}

func createUsageTableQuery(schema, table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT NOT NULL,
			computed_at TIMESTAMPTZ NOT NULL,
			scope TEXT NOT NULL CHECK (scope IN ('CLIENT', 'SUMMARY')),
			bucket TEXT NOT NULL,
			base_prefix TEXT NOT NULL,
			tenant_identifier BIGINT NULL,
			status TEXT NULL,
			prefix_encoded TEXT NULL,
			objects_count BIGINT NOT NULL,
			bytes_total BIGINT NOT NULL,
			gb_total NUMERIC(20,4) NOT NULL,
			api_calls BIGINT NOT NULL,
			cost_estimated_usd NUMERIC(20,6) NOT NULL,
			statuses_filter TEXT NOT NULL,
			extra_note TEXT NULL
		)`, pgx.Identifier{schema, table}.Sanitize())
}

func createRunIndexQuery(schema, table string) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (run_id)`,
		pgx.Identifier{table + "_run_id_idx"}.Sanitize(),
		pgx.Identifier{schema, table}.Sanitize())
}

func dropUsageTableQuery(schema, table string) string {
	return fmt.Sprintf(`DROP TABLE IF EXISTS %s`, pgx.Identifier{schema, table}.Sanitize())
}
