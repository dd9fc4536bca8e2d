package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"nondetify/internal/driver"
	"nondetify/internal/instrument"
	"nondetify/internal/report"
	"nondetify/internal/version"
)

var instrumentCmd = &cobra.Command{
	Use:   "instrument [flags] [module.ll...]",
	Short: "Rewrite nondet stubs and register allocations",
	Long: `Instrument textual LLVM IR modules. Without arguments the [[unit]]
entries of nondetify.toml are processed.

Each __VERIFIER_nondet_* call becomes a stack slot registered through
klee_make_nondet and read back; each malloc/calloc result is registered
after the allocation. Names have the form func:var:line, recovered from
the C source named by --source or by the module's source_filename.`,
	RunE: runInstrument,
}

func init() {
	instrumentCmd.Flags().StringP("source", "s", "", "original C source (single module only)")
	instrumentCmd.Flags().StringP("output", "o", "", "output path, \"-\" for stdout (single module only; default <name>.nondet.ll)")
	instrumentCmd.Flags().String("entry", "", "registration function (default "+instrument.DefaultEntryPoint+")")
	instrumentCmd.Flags().IntP("jobs", "j", 0, "modules processed in parallel (0 = GOMAXPROCS)")
	instrumentCmd.Flags().String("report", "", "write a site report (.json, .mp or .msgpack)")
	instrumentCmd.Flags().Bool("sites", false, "print a table of instrumented sites")
	instrumentCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

type batchConfig struct {
	units    []driver.Unit
	opts     driver.Options
	quiet    bool
	timings  bool
	manifest *manifest
}

// loadBatch merges flags, positional modules and the manifest.
func loadBatch(cmd *cobra.Command, args []string) (*batchConfig, error) {
	root := cmd.Root().PersistentFlags()
	quiet, err := root.GetBool("quiet")
	if err != nil {
		return nil, err
	}
	timings, err := root.GetBool("timings")
	if err != nil {
		return nil, err
	}
	maxDiag, err := root.GetInt("max-diagnostics")
	if err != nil {
		return nil, err
	}
	configPath, err := root.GetString("config")
	if err != nil {
		return nil, err
	}

	m, _, err := loadManifest(configPath, ".")
	if err != nil {
		return nil, err
	}
	reg, err := m.registry()
	if err != nil {
		return nil, err
	}

	cfg := &batchConfig{
		quiet:    quiet,
		timings:  timings,
		manifest: m,
		opts: driver.Options{
			Registry:       reg,
			MaxDiagnostics: maxDiag,
			Stdout:         cmd.OutOrStdout(),
		},
	}
	if m != nil {
		cfg.opts.EntryPoint = m.Config.Pass.Entry
	}
	if f := cmd.Flags().Lookup("entry"); f != nil && f.Changed {
		cfg.opts.EntryPoint = f.Value.String()
	}
	if cfg.opts.Jobs, err = cmd.Flags().GetInt("jobs"); err != nil {
		return nil, err
	}

	if len(args) == 0 {
		cfg.units = m.units()
		if len(cfg.units) == 0 {
			return nil, errors.New("no modules given and no [[unit]] in " + manifestName)
		}
		return cfg, nil
	}
	for _, a := range args {
		cfg.units = append(cfg.units, driver.Unit{IR: a})
	}
	return cfg, nil
}

func runInstrument(cmd *cobra.Command, args []string) error {
	cfg, err := loadBatch(cmd, args)
	if err != nil {
		return err
	}
	source, _ := cmd.Flags().GetString("source")
	output, _ := cmd.Flags().GetString("output")
	if (source != "" || output != "") && len(cfg.units) != 1 {
		return errors.New("--source and --output need exactly one module")
	}
	if source != "" {
		cfg.units[0].Source = source
	}
	if output != "" {
		cfg.units[0].Output = output
	}
	reportPath, _ := cmd.Flags().GetString("report")
	showSites, _ := cmd.Flags().GetBool("sites")

	outcomes, runErr := runBatch(cmd, "instrument", cfg)

	// с -o - модуль уже ушёл в stdout, сводку пишем в stderr
	out := cmd.OutOrStdout()
	if output == driver.StdoutPath {
		out = cmd.ErrOrStderr()
	}
	for i := range outcomes {
		o := &outcomes[i]
		printDiagnostics(cmd.ErrOrStderr(), o.Bag, cfg.quiet)
		if o.Err != nil && !errors.Is(o.Err, context.Canceled) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %v\n", o.Unit.IR, errorColor.Sprint("error"), o.Err)
		}
		if cfg.quiet {
			continue
		}
		printOutcomeHeader(out, o)
		if showSites && o.Result != nil {
			printSiteRecords(out, o.Result.Sites)
		}
	}
	if !cfg.quiet {
		printSummary(out, driver.Summarize(outcomes))
	}
	if cfg.timings {
		printTimings(cmd.ErrOrStderr(), outcomes)
	}

	if reportPath != "" {
		if err := report.Write(reportPath, buildReport(outcomes)); err != nil {
			return errors.Join(runErr, fmt.Errorf("report: %w", err))
		}
	}
	return runErr
}

// runBatch runs the driver, through the progress UI when it is enabled.
func runBatch(cmd *cobra.Command, title string, cfg *batchConfig) ([]driver.Outcome, error) {
	streams := false
	for _, u := range cfg.units {
		if u.IR == driver.StdoutPath || u.Output == driver.StdoutPath {
			streams = true
		}
	}
	useUI, err := useProgressUI(cmd, len(cfg.units), cfg.quiet, streams)
	if err != nil {
		return nil, err
	}
	if useUI {
		return runBatchWithUI(cmd.Context(), title, cfg.units, cfg.opts)
	}
	return driver.Run(cmd.Context(), cfg.units, cfg.opts)
}

func buildReport(outcomes []driver.Outcome) *report.Report {
	r := &report.Report{Schema: report.SchemaVersion, Version: version.Version}
	for _, o := range outcomes {
		u := report.Unit{
			IR:     o.Unit.IR,
			Source: o.Source,
			Output: o.Unit.Output,
		}
		if o.Result != nil {
			u.Changed = o.Result.Changed
			u.Skipped = o.Result.Skipped
			u.Sites = o.Result.Sites
		}
		if o.Bag != nil {
			u.Diagnostics = report.Diagnostics(o.Bag.Items())
		}
		if len(o.Timing.Phases) > 0 {
			timing := o.Timing
			u.Timing = &timing
		}
		if o.Err != nil {
			u.Error = o.Err.Error()
		}
		r.Units = append(r.Units, u)
	}
	return r
}
