package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jward/docket/internal/config"
	"github.com/jward/docket/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// app holds the flags and settings shared by every command.
type app struct {
	flagConfig  string
	flagDB      string
	flagFormat  string
	flagEnvFile string

	cfg *config.Config
	log *zap.Logger

	// errorHandled is set by outputError so main() doesn't double-print.
	errorHandled bool
}

func main() {
	a := &app{}
	if err := a.rootCmd().Execute(); err != nil {
		if !a.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "docket",
		Short:         "Import legislative scrape output into a durable store",
		Long:          "Docket merges scraped jurisdictions, organizations, people, memberships and bills into a SQLite or PostgreSQL database, keeping ids stable across re-imports.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			observability.Sync()
		},
		// No Run; prints help by default.
	}
	cmd.PersistentFlags().StringVar(&a.flagConfig, "config", "", "config file (default: "+config.DefaultPath+")")
	cmd.PersistentFlags().StringVar(&a.flagDB, "db", "", "database path or postgres:// URL (overrides database.dsn)")
	cmd.PersistentFlags().StringVar(&a.flagFormat, "format", "json", "output format: json|text")
	cmd.PersistentFlags().StringVar(&a.flagEnvFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(a.importCmd())
	cmd.AddCommand(a.orderCmd())
	cmd.AddCommand(a.showCmd())
	return cmd
}

// setup validates global flags, loads configuration and initializes
// logging to the command's stderr.
func (a *app) setup(cmd *cobra.Command) error {
	if err := validateFormat(a.flagFormat); err != nil {
		return err
	}
	if err := config.LoadDotEnv(a.flagEnvFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.flagConfig)
	if err != nil {
		return err
	}
	if a.flagDB != "" {
		cfg.Database.DSN = a.flagDB
	}
	a.cfg = cfg

	observability.Initialize(cfg.Logger, zapcore.AddSync(cmd.ErrOrStderr()))
	a.log = observability.GetLogger()
	return nil
}

// isSQLite reports whether dsn names a SQLite file.
func isSQLite(dsn string) bool {
	return !strings.Contains(dsn, "://")
}

// ensureDBDir creates the parent directory of a SQLite database.
func ensureDBDir(dsn string) error {
	if !isSQLite(dsn) {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

// requireDB fails when a SQLite database has not been created yet.
func requireDB(dsn string) error {
	if !isSQLite(dsn) {
		return nil
	}
	if _, err := os.Stat(dsn); os.IsNotExist(err) {
		return fmt.Errorf("database not found: %s (run 'docket import' first)", dsn)
	}
	return nil
}

// outputResult writes a result in the selected format.
func (a *app) outputResult(w io.Writer, result CLIResult) error {
	if a.flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func (a *app) outputError(cmd *cobra.Command, command string, err error) error {
	a.errorHandled = true
	if a.flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
