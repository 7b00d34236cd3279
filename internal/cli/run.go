package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/omega/internal/config"
	"github.com/roach88/omega/internal/metrics"
	"github.com/roach88/omega/internal/results"
	"github.com/roach88/omega/internal/search"
	"github.com/roach88/omega/internal/store"
)

// textTop is how many ranked records text output lists after a run.
const textTop = 10

// RunOptions holds flags for the search and smoke commands.
type RunOptions struct {
	*RootOptions
	Tables      string
	Database    string
	Workers     int
	Resume      bool
	MetricsFile string
	Limit       uint64 // smoke only
}

// RunOutput is the JSON payload of a finished run.
type RunOutput struct {
	RunID      string           `json:"run_id"`
	Status     store.Status     `json:"status"`
	Mode       search.Mode      `json:"mode"`
	Workers    int              `json:"workers"`
	Units      int              `json:"units"`
	Resumed    bool             `json:"resumed"`
	Progress   search.Progress  `json:"progress"`
	Summary    results.Summary  `json:"summary"`
	Failures   []string         `json:"failures,omitempty"`
	Records    []results.Record `json:"records"`
	Checkpoint string           `json:"checkpoint_error,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the whole space for Omega Class combinations",
		Long: `Search every combination of the configured space, checkpointing to a
SQLite database so an interrupted run can be resumed.

Exit codes:
  0 - Every work unit completed
  1 - Partial coverage (failed units or interrupted) or checkpoint lost
  2 - Command error (bad config, unreadable tables, database error)

Examples:
  omega search --tables ./tables.json --db ./omega.db
  omega search --config ./omega.yaml --workers 8 --resume=false`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(opts, search.ModeFull, cmd)
		},
	}

	addRunFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Database, "db", config.DefaultDB, "path to SQLite checkpoint database")
	cmd.Flags().BoolVar(&opts.Resume, "resume", true, "resume the latest unfinished run with the same inputs")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when the run ends")

	return cmd
}

// NewSmokeCommand creates the smoke command.
func NewSmokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the search over a fixed prefix of the space",
		Long: `Run the full parallel search over the first --limit combinations only.
Nothing is checkpointed.

Example:
  omega smoke --tables ./tables.json --limit 100000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(opts, search.ModeSmoke, cmd)
		},
	}

	addRunFlags(cmd, opts)
	cmd.Flags().Uint64Var(&opts.Limit, "limit", search.DefaultSmokeLimit, "number of leading combinations to search")

	return cmd
}

func addRunFlags(cmd *cobra.Command, opts *RunOptions) {
	cmd.Flags().StringVar(&opts.Tables, "tables", "", "path to frequency tables JSON")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "worker goroutines (0 = one per CPU, capped by max_workers)")
}

// applyFlags copies the flags the user set over the file config.
func (o *RunOptions) applyFlags(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("tables") {
			cfg.Tables = o.Tables
		}
		if flags.Changed("workers") {
			cfg.Workers = o.Workers
		}
		if flags.Changed("db") {
			cfg.DB = o.Database
		}
		if flags.Changed("metrics-file") {
			cfg.MetricsFile = o.MetricsFile
		}
		if flags.Changed("limit") {
			cfg.SmokeLimit = o.Limit
		}
	}
}

func runSearch(opts *RunOptions, mode search.Mode, cmd *cobra.Command) error {
	logger := opts.Logger(cmd)

	cfg, err := loadConfig(opts.RootOptions, opts.applyFlags(cmd))
	if err != nil {
		return err
	}
	idx, err := loadIndex(cfg, logger)
	if err != nil {
		return err
	}

	sopts := cfg.SearchOptions(mode)
	obs := metrics.New(prometheus.Labels{"mode": string(mode)})
	coordOpts := []search.Option{
		search.WithLogger(logger),
		search.WithObserver(obs),
		search.WithProgress(progressLogger(logger)),
	}

	if mode == search.ModeFull {
		sopts.Resume = opts.Resume
		logger.Info("opening database", "path", cfg.DB)
		st, err := store.Open(cfg.DB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		coordOpts = append(coordOpts, search.WithCheckpointer(st))
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	report, runErr := search.New(idx, sopts, coordOpts...).Run(ctx)
	if report == nil {
		if search.IsConfigError(runErr) {
			return WrapExitError(ExitCommandError, "invalid search options", runErr)
		}
		return WrapExitError(ExitFailure, "search failed", runErr)
	}

	if cfg.MetricsFile != "" {
		if err := obs.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	return outputRun(cmd, opts.RootOptions, report, runErr)
}

// progressLogger logs throttled progress snapshots.
func progressLogger(logger *slog.Logger) func(search.Progress) {
	return func(p search.Progress) {
		logger.Info("progress",
			"processed", p.Processed,
			"total", p.Total,
			"percent", fmt.Sprintf("%.2f", p.Percent),
			"omega", p.OmegaFound,
			"units", fmt.Sprintf("%d/%d", p.UnitsDone, p.Units),
			"throughput", fmt.Sprintf("%.0f/s", p.Throughput),
			"eta", p.ETA.Round(time.Second),
		)
	}
}

func outputRun(cmd *cobra.Command, opts *RootOptions, report *search.Report, runErr error) error {
	out := RunOutput{
		RunID:      report.RunID,
		Status:     report.Status(),
		Mode:       report.Mode,
		Workers:    report.Workers,
		Units:      report.Units,
		Resumed:    report.Resumed,
		Progress:   report.Progress,
		Summary:    report.Summary,
		Records:    report.Records,
		FinishedAt: report.FinishedAt,
	}
	if out.Records == nil {
		out.Records = []results.Record{}
	}
	for _, f := range report.Failures {
		out.Failures = append(out.Failures, f.Error())
	}
	if runErr != nil {
		out.Checkpoint = runErr.Error()
	}

	cliErr, exitErr := runOutcome(report, runErr)

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if f.IsJSON() {
		if err := f.JSON(out, cliErr); err != nil {
			return err
		}
		return exitErr
	}

	writeRunText(cmd.OutOrStdout(), out)
	return exitErr
}

// runOutcome maps a report onto the command's exit status.
func runOutcome(report *search.Report, runErr error) (*CLIError, error) {
	switch {
	case errors.Is(runErr, search.ErrCheckpoint):
		return &CLIError{Code: "E_CHECKPOINT", Message: runErr.Error()},
			WrapExitError(ExitFailure, "no checkpoint could be written", runErr)
	case report.Complete:
		return nil, nil
	case report.Interrupted:
		msg := fmt.Sprintf("interrupted after %d of %d units", report.Progress.UnitsDone, report.Units)
		return &CLIError{Code: "E_INTERRUPTED", Message: msg}, NewExitError(ExitFailure, msg)
	default:
		msg := fmt.Sprintf("partial coverage: %d failed units", len(report.Failures))
		return &CLIError{Code: "E_PARTIAL", Message: msg}, NewExitError(ExitFailure, msg)
	}
}

func writeRunText(w io.Writer, out RunOutput) {
	p := newPrinter()

	status := "✓"
	if out.Status != store.StatusComplete {
		status = "✗"
	}
	p.Fprintf(w, "%s Run %s (%s, %s)\n", status, out.RunID, out.Mode, out.Status)
	if out.Resumed {
		fmt.Fprintln(w, "  Resumed from checkpoint")
	}
	p.Fprintf(w, "  Processed: %d of %d combinations (%.2f%%)\n", out.Progress.Processed, out.Progress.Total, out.Progress.Percent)
	p.Fprintf(w, "  Units: %d of %d on %d workers\n", out.Progress.UnitsDone, out.Units, out.Workers)
	p.Fprintf(w, "  Elapsed: %s (%.0f combinations/s)\n", out.Progress.Elapsed.Round(time.Millisecond), out.Progress.Throughput)
	fmt.Fprintf(w, "  Finished: %s\n", out.FinishedAt.Format(time.RFC3339))
	p.Fprintf(w, "  Omega Class: %d\n", out.Summary.Count)
	for _, f := range out.Failures {
		fmt.Fprintf(w, "  Failed: %s\n", f)
	}
	if out.Checkpoint != "" {
		fmt.Fprintf(w, "  Warning: %s\n", out.Checkpoint)
	}

	if len(out.Records) == 0 {
		return
	}
	fmt.Fprintln(w)
	writeSummaryText(w, out.Summary)
	fmt.Fprintln(w)
	writeRecordsText(w, results.Top(out.Records, textTop))
}

func writeSummaryText(w io.Writer, s results.Summary) {
	p := newPrinter()
	p.Fprintf(w, "Mean affinity: pairs %.1f, triples %.1f, quads %.1f, total %.1f\n",
		s.MeanPairs, s.MeanTriples, s.MeanQuads, s.MeanTotal)
	p.Fprintf(w, "Total range: %d to %d\n", s.MinTotal, s.MaxTotal)
	p.Fprintf(w, "Mean sum %.1f, mean spread %.1f\n", s.MeanSum, s.MeanSpread)
}

func writeRecordsText(w io.Writer, records []results.Record) {
	p := newPrinter()
	p.Fprintf(w, "%5s  %-20s %8s %8s %6s %8s\n", "Rank", "Combination", "Pairs", "Triples", "Quads", "Total")
	for i, r := range records {
		p.Fprintf(w, "%5d  %-20s %8d %8d %6d %8d\n", i+1, r.Key(), r.Pairs, r.Triples, r.Quads, r.Total)
	}
}
