package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"nondetify/internal/driver"
)

var scanCmd = &cobra.Command{
	Use:   "scan [flags] [module.ll...]",
	Short: "List the call sites instrument would touch",
	Long: `Parse modules and report recognized producer and allocator calls
without modifying anything. Source files are not read.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().String("entry", "", "registration function, excluded from matching")
	scanCmd.Flags().IntP("jobs", "j", 0, "modules processed in parallel (0 = GOMAXPROCS)")
	scanCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadBatch(cmd, args)
	if err != nil {
		return err
	}
	cfg.opts.DryRun = true

	outcomes, runErr := runBatch(cmd, "scan", cfg)
	out := cmd.OutOrStdout()
	for i := range outcomes {
		o := &outcomes[i]
		printDiagnostics(cmd.ErrOrStderr(), o.Bag, cfg.quiet)
		if o.Err != nil && !errors.Is(o.Err, context.Canceled) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %v\n", o.Unit.IR, errorColor.Sprint("error"), o.Err)
			continue
		}
		if o.Discovery == nil {
			continue
		}
		printOutcomeHeader(out, o)
		printDiscovery(out, o.Discovery)
	}
	if !cfg.quiet {
		printSummary(out, driver.Summarize(outcomes))
	}
	if cfg.timings {
		printTimings(cmd.ErrOrStderr(), outcomes)
	}
	return runErr
}
