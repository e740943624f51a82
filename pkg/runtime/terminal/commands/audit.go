package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/de-tools/storage-audit/pkg/logging"
	"github.com/de-tools/storage-audit/pkg/models/domain"
	"github.com/de-tools/storage-audit/pkg/runtime/terminal/export"
	"github.com/de-tools/storage-audit/pkg/services/audit"
	"github.com/de-tools/storage-audit/pkg/services/config"
	"github.com/de-tools/storage-audit/pkg/services/credentials"
	"github.com/de-tools/storage-audit/pkg/services/storage"
	"github.com/de-tools/storage-audit/pkg/store/postgres"
	"github.com/de-tools/storage-audit/pkg/store/tenant"
	"github.com/de-tools/storage-audit/pkg/store/usage"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Deps are the external collaborators of the audit command.
type Deps struct {
	OpenDB      func(ctx context.Context, settings postgres.Settings) (*sql.DB, error)
	NewS3Client func(ctx context.Context, settings storage.Settings) (s3.ListObjectsV2APIClient, error)
	Credentials func(cfg *config.Config) (credentials.Provider, error)
	LogWriter   io.Writer
}

func DefaultDeps() Deps {
	return Deps{
		OpenDB: postgres.NewDB,
		NewS3Client: func(ctx context.Context, settings storage.Settings) (s3.ListObjectsV2APIClient, error) {
			return storage.NewClient(ctx, settings)
		},
		Credentials: credentialChain,
		LogWriter:   os.Stderr,
	}
}

// credentialChain resolves database credentials from the environment, then the
// credentials file, then an interactive prompt.
func credentialChain(cfg *config.Config) (credentials.Provider, error) {
	chain := credentials.Chain{credentials.NewEnvProvider()}
	if cfg.CredentialsFile != "" {
		fp, err := credentials.NewFileProvider(cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		chain = append(chain, fp)
	}
	if !cfg.NoPrompt && credentials.IsTerminal() {
		chain = append(chain, credentials.NewPromptProvider())
	}
	return chain, nil
}

type AuditCmd struct {
	deps     Deps
	reporter *export.Reporter
}

func NewAuditCmd(deps Deps, reporter *export.Reporter) *cobra.Command {
	ac := &AuditCmd{deps: deps, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Aggregate per-tenant S3 usage and persist it to the reporting table",
		RunE:  ac.run,
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

func (ac *AuditCmd) run(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.NewLogger(logging.Settings{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Writer: ac.deps.LogWriter,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to close log file: %v\n", err)
		}
	}()

	ctx := logger.WithContext(cmd.Context())

	if err := ac.audit(ctx, cfg); err != nil {
		logger.Error().Err(err).Str("run_id", cfg.RunID).Msg("audit failed")
		return err
	}
	return nil
}

func (ac *AuditCmd) audit(ctx context.Context, cfg *config.Config) error {
	logger := zerolog.Ctx(ctx)

	provider, err := ac.deps.Credentials(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up credentials: %w", err)
	}
	creds, err := provider.Resolve(ctx, cfg.DBHost, cfg.DBUser)
	switch {
	case errors.Is(err, credentials.ErrNotFound):
		logger.Warn().Str("db_host", cfg.DBHost).Msg("no database password found, connecting without one")
		creds = credentials.DBCredentials{User: cfg.DBUser}
	case err != nil:
		return fmt.Errorf("failed to resolve database credentials: %w", err)
	}

	db, err := ac.deps.OpenDB(ctx, postgres.Settings{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
		User:     creds.User,
		Password: creds.Password,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		return &domain.DataAccessError{Op: "connect", Err: err}
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close database connection")
		}
	}()

	if cfg.Migrate {
		if err := postgres.Migrate(ctx, db, cfg.OutputSchema, cfg.OutputTable); err != nil {
			return err
		}
	}

	client, err := ac.deps.NewS3Client(ctx, storage.Settings{
		Region:    cfg.Region,
		Profile:   cfg.AWSProfile,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create s3 client: %w", err)
	}

	tenantStore, err := tenant.NewStore(db, tenant.Settings{
		Table:        cfg.TenantTable,
		IDColumn:     cfg.TenantIDColumn,
		StatusColumn: cfg.TenantStatusColumn,
	})
	if err != nil {
		return fmt.Errorf("failed to create tenant store: %w", err)
	}
	usageStore, err := usage.NewStore(db, cfg.OutputSchema, cfg.OutputTable)
	if err != nil {
		return fmt.Errorf("failed to create usage store: %w", err)
	}

	auditor := audit.NewAuditor(tenantStore, storage.NewScanner(client), usageStore, audit.Settings{
		RunID:              cfg.RunID,
		Bucket:             cfg.Bucket,
		BasePrefix:         cfg.BasePrefix,
		StatusesFilter:     cfg.Statuses,
		Statuses:           cfg.StatusList(),
		IncludeNotInPass:   cfg.IncludeNotInPass,
		ComputeBucketTotal: cfg.ComputeBucketTotal,
		PersistInSummary:   cfg.PersistInSummary,
	})

	report, err := auditor.Run(ctx)
	if err != nil {
		return err
	}

	if err := ac.reporter.Handle(export.FromRunReport(report)); err != nil {
		return fmt.Errorf("failed to print report: %w", err)
	}

	logger.Info().
		Str("run_id", report.RunID).
		Str("total_gb", report.TotalGB.String()).
		Str("total_cost_usd", report.TotalCostUSD.String()).
		Msg("audit finished")

	return nil
}
