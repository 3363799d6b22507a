// Package cli provides the cloudisk command line: the interactive browser
// by default and one subcommand per operation for scripts.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/slmtnm/cloudisk/internal/config"
	"github.com/slmtnm/cloudisk/internal/logging"
	"github.com/slmtnm/cloudisk/internal/navigator"
	"github.com/slmtnm/cloudisk/internal/session"
	"github.com/slmtnm/cloudisk/internal/tui"
	"github.com/slmtnm/cloudisk/internal/upload"
)

// Version is set at build time
var Version = "dev"

// app carries what every command needs once flags are parsed
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     zerolog.Logger

	// open builds the backend, replaced in tests
	open func(ctx context.Context, a *app) (*backend, error)
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{v: config.NewViper(), open: openBackend})
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cloudisk",
		Short: "cloudisk - a terminal client for your cloud disk",
		Long: `cloudisk browses, uploads and downloads files on a cloudisk server
or an S3 bucket.

Without a subcommand the interactive browser starts. Settings are read
from .cloudiskrc in the current directory, the home directory or /etc,
and can be overridden with flags or CLOUDISK_* environment variables.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "Configuration file path")
	flags.String("backend", "", "Backend to use: rest or s3")
	flags.String("server", "", "Server URL for the rest backend")
	flags.Int("retries", 0, "Retries for failed metadata requests")
	flags.String("log-level", "", "Log level (debug, info, warn, error, quiet)")
	flags.String("log-file", "", "Log file for the interactive browser")
	flags.String("credentials", "", "Where the session token is kept")
	flags.String("bucket", "", "Bucket for the s3 backend")
	for _, name := range []string{"backend", "server", "retries", "log-level", "log-file", "credentials"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}
	_ = a.v.BindPFlag("s3.bucket", flags.Lookup("bucket"))

	rootCmd.AddCommand(
		newConfigureCmd(a),
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newLsCmd(a),
		newMkdirCmd(a),
		newRmCmd(a),
		newSearchCmd(a),
		newUploadCmd(a),
		newDownloadCmd(a),
		newAvatarCmd(a),
	)
	return rootCmd
}

// load reads the configuration and applies overrides
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return a.report(cmd, err)
	}
	cfg.Apply(a.v)
	a.cfg = cfg
	a.log = logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
	if cfg.Path != "" {
		a.log.Debug().Str("path", cfg.Path).Msg("configuration loaded")
	}
	return nil
}

// report prints err for the user and returns it for the exit code
func (a *app) report(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
	return err
}

func (a *app) credentialsPath() (string, error) {
	if path := a.v.GetString("credentials"); path != "" {
		return path, nil
	}
	return config.DefaultCredentialsPath()
}

// isTerminal reports whether stream is a terminal
func isTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// runTUI starts the interactive browser
func (a *app) runTUI(cmd *cobra.Command) error {
	if err := a.cfg.Validate(); err != nil {
		if a.cfg.Path != "" || !isTerminal(cmd.InOrStdin()) {
			return a.report(cmd, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No usable configuration found: %s\n\n", err)
		cfg, err := config.InteractiveSetup(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return a.report(cmd, fmt.Errorf("setup cancelled or failed: %w", err))
		}
		cfg.Apply(a.v)
		a.cfg = cfg
	}

	logger, closer, err := logging.NewTUI(a.cfg.LogFile, a.cfg.LogLevel)
	if err != nil {
		return a.report(cmd, err)
	}
	defer closer.Close()
	a.log = logger

	ctx := cmd.Context()
	b, err := a.open(ctx, a)
	if err != nil {
		return a.report(cmd, err)
	}

	nav := navigator.New(ctx, b.svc, logger)
	uploads := upload.New(ctx, b.svc, nil, nav, logger)
	model := tui.New(tui.Options{
		Context:     ctx,
		Directory:   b.svc,
		Navigator:   nav,
		Uploads:     uploads,
		Session:     session.New(ctx, b.svc, b.creds, logger),
		Tokenless:   b.tokenless,
		Title:       b.title,
		DownloadDir: a.cfg.DownloadDir,
		Logger:      logger,
	})

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	uploads.SetSender(program)

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return a.report(cmd, fmt.Errorf("error running TUI: %w", err))
	}
	return nil
}

// newConfigureCmd creates the 'configure' command.
func newConfigureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Write a configuration file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.InteractiveSetup(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return a.report(cmd, err)
			}
			return nil
		},
	}
}
