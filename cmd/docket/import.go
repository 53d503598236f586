package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/docket"
	"github.com/jward/docket/internal/config"
)

func (a *app) importCmd() *cobra.Command {
	var (
		jurisdiction string
		atomic       bool
		atomicTypes  []string
		scriptsDir   string
		workers      int
	)
	cmd := &cobra.Command{
		Use:   "import [dir]",
		Short: "Import a directory of scraped JSON records",
		Long:  "Reads every <type>_*.json file in dir (default: current directory), applies transform scripts and merges the records into the database.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("jurisdiction") {
				a.cfg.Import.Jurisdiction = jurisdiction
			}
			if flags.Changed("atomic") {
				a.cfg.Import.AtomicRun = atomic
			}
			if flags.Changed("atomic-types") {
				a.cfg.Import.AtomicTypes = atomicTypes
			}
			if flags.Changed("scripts-dir") {
				a.cfg.Import.ScriptsDir = scriptsDir
			}
			if flags.Changed("workers") {
				a.cfg.Import.Workers = workers
			}
			return a.runImport(cmd, args)
		},
	}
	cmd.Flags().StringVar(&jurisdiction, "jurisdiction", "", "ocd-jurisdiction id being imported (overrides import.jurisdiction)")
	cmd.Flags().BoolVar(&atomic, "atomic", false, "import the whole batch in one transaction; any failed record rolls it back")
	cmd.Flags().StringSliceVar(&atomicTypes, "atomic-types", nil, "entity types that stop at their first failed record")
	cmd.Flags().StringVar(&scriptsDir, "scripts-dir", "", "directory holding transform/<type>.risor scripts")
	cmd.Flags().IntVar(&workers, "workers", 0, "files decoded concurrently (0 = GOMAXPROCS)")
	return cmd
}

// engineOptions maps the import configuration to engine options.
func (a *app) engineOptions(cfg config.ImportConfig) []docket.Option {
	opts := []docket.Option{
		docket.WithLogger(a.log),
		docket.WithAtomicRun(cfg.AtomicRun),
		docket.WithAtomicTypes(cfg.AtomicTypes...),
		docket.WithWorkers(cfg.Workers),
	}
	if cfg.ScriptsDir != "" {
		opts = append(opts, docket.WithScriptsDir(cfg.ScriptsDir))
	}
	return opts
}

func (a *app) runImport(cmd *cobra.Command, args []string) error {
	start := time.Now()
	if err := a.cfg.Validate(); err != nil {
		return a.outputError(cmd, "import", err)
	}
	jurisdiction := a.cfg.Import.Jurisdiction
	if jurisdiction == "" {
		return a.outputError(cmd, "import", errors.New("no jurisdiction: pass --jurisdiction or set import.jurisdiction"))
	}
	dir, err := resolveDir(args)
	if err != nil {
		return a.outputError(cmd, "import", err)
	}

	dsn := a.cfg.Database.DSN
	if err := ensureDBDir(dsn); err != nil {
		return a.outputError(cmd, "import", err)
	}
	engine, err := docket.New(dsn, a.engineOptions(a.cfg.Import)...)
	if err != nil {
		return a.outputError(cmd, "import", fmt.Errorf("creating engine: %w", err))
	}
	defer engine.Close()

	report, err := engine.ImportDir(cmd.Context(), jurisdiction, dir)
	if err != nil {
		return a.outputError(cmd, "import", fmt.Errorf("importing: %w", err))
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Imported %s in %s\n", dir, time.Since(start).Round(time.Millisecond))
	return a.outputResult(cmd.OutOrStdout(), CLIResult{
		Command: "import",
		Results: toCLIImportReport(jurisdiction, report),
	})
}

// resolveDir returns the absolute path of the directory to import.
func resolveDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

func (a *app) orderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print the order entity types are imported in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := docket.ImportOrder()
			if err != nil {
				return a.outputError(cmd, "order", err)
			}
			return a.outputResult(cmd.OutOrStdout(), CLIResult{Command: "order", Results: order})
		},
	}
}
