package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/omega/internal/config"
	"github.com/roach88/omega/internal/search"
)

// EstimateOptions holds flags for the estimate command.
type EstimateOptions struct {
	*RootOptions
	Tables  string
	Sample  uint64
	Workers int
}

// NewEstimateCommand creates the estimate command.
func NewEstimateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EstimateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Project run time and Omega count from a sample",
		Long: `Evaluate the first --sample combinations on one goroutine and project the
duration of a full run (serial and across the configured workers) and the
number of Omega Class combinations it would find.

Example:
  omega estimate --tables ./tables.json --sample 10000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Tables, "tables", "", "path to frequency tables JSON")
	cmd.Flags().Uint64Var(&opts.Sample, "sample", search.DefaultEstimateSample, "number of leading combinations to sample")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "workers to project the parallel duration for (0 = one per CPU)")

	return cmd
}

func runEstimate(opts *EstimateOptions, cmd *cobra.Command) error {
	logger := opts.Logger(cmd)

	cfg, err := loadConfig(opts.RootOptions, func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("tables") {
			cfg.Tables = opts.Tables
		}
		if flags.Changed("sample") {
			cfg.EstimateSample = opts.Sample
		}
		if flags.Changed("workers") {
			cfg.Workers = opts.Workers
		}
	})
	if err != nil {
		return err
	}
	idx, err := loadIndex(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	est, err := search.New(idx, cfg.SearchOptions(search.ModeEstimate), search.WithLogger(logger)).Estimate(ctx, cfg.EstimateSample)
	if err != nil {
		if search.IsConfigError(err) {
			return WrapExitError(ExitCommandError, "invalid estimate options", err)
		}
		return WrapExitError(ExitFailure, "estimate failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if f.IsJSON() {
		return f.JSON(est, nil)
	}
	writeEstimateText(cmd.OutOrStdout(), cfg, est)
	return nil
}

func writeEstimateText(w io.Writer, cfg config.Config, est *search.Estimate) {
	p := newPrinter()

	p.Fprintf(w, "Estimate for %s (%d combinations)\n", cfg.Space, est.Total)
	p.Fprintf(w, "  Sample: %d combinations in %s (%.0f combinations/s)\n", est.Sample, est.Elapsed.Round(time.Microsecond), est.Rate)
	p.Fprintf(w, "  Passed pairs: %.2f%%, passed triples: %.2f%%\n", est.PassPairs*100, est.PassTriples*100)
	p.Fprintf(w, "  Omega in sample: %d\n", est.OmegaFound)
	p.Fprintf(w, "  Projected Omega: %.0f\n", est.EstimatedOmega)
	p.Fprintf(w, "  Projected duration: %s serial, %s on %d workers\n",
		est.EstimatedDuration.Round(time.Second), est.EstimatedParallel.Round(time.Second), est.Workers)
	if len(est.Records) > 0 {
		fmt.Fprintln(w)
		writeRecordsText(w, est.Records[:min(len(est.Records), textTop)])
	}
}
