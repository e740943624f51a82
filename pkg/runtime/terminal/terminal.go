package terminal

import (
	"context"
	"io"
	"os"

	"github.com/de-tools/storage-audit/pkg/runtime/terminal/commands"
	"github.com/de-tools/storage-audit/pkg/runtime/terminal/export"

	"github.com/spf13/cobra"
)

// CLI represents the command-line interface
type CLI struct {
	deps     commands.Deps
	reporter *export.Reporter
	rootCmd  *cobra.Command
}

// Options contain configuration for the CLI
type Options struct {
	Output io.Writer
	// Deps overrides the database, S3 and credential collaborators. Zero fields use the defaults.
	Deps commands.Deps
}

// NewCLI creates a new CLI instance
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	deps := commands.DefaultDeps()
	if opts.Deps.OpenDB != nil {
		deps.OpenDB = opts.Deps.OpenDB
	}
	if opts.Deps.NewS3Client != nil {
		deps.NewS3Client = opts.Deps.NewS3Client
	}
	if opts.Deps.Credentials != nil {
		deps.Credentials = opts.Deps.Credentials
	}
	if opts.Deps.LogWriter != nil {
		deps.LogWriter = opts.Deps.LogWriter
	}

	cli := &CLI{
		deps:     deps,
		reporter: export.NewReporter(opts.Output),
	}

	cli.rootCmd = cli.newRootCmd()
	return cli
}

func (cli *CLI) Execute(ctx context.Context, args ...string) error {
	if args != nil {
		cli.rootCmd.SetArgs(args)
	}
	return cli.rootCmd.ExecuteContext(ctx)
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "storage-audit",
		Short:         "Per-tenant object storage usage auditing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(commands.NewAuditCmd(cli.deps, cli.reporter))

	return cmd
}
