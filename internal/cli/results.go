package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/omega/internal/config"
	"github.com/roach88/omega/internal/results"
	"github.com/roach88/omega/internal/store"
)

// ResultsOptions holds flags for the results command.
type ResultsOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - latest run when empty
	Top      int
	List     bool
	Delete   string // run ID to remove
}

// ResultsOutput is the JSON payload of the results command.
type ResultsOutput struct {
	Run     RunInfo          `json:"run"`
	Summary results.Summary  `json:"summary"`
	Records []results.Record `json:"records"`
}

// DeleteOutput is the JSON payload of results --delete.
type DeleteOutput struct {
	Deleted string `json:"deleted"`
}

// RunInfo describes a stored run.
type RunInfo struct {
	ID         string             `json:"id"`
	Status     store.Status       `json:"status"`
	Space      string             `json:"space"`
	Units      int                `json:"units"`
	UnitsDone  uint64             `json:"units_done"`
	Processed  uint64             `json:"processed"`
	Total      uint64             `json:"total"`
	OmegaCount int                `json:"omega_count"`
	Elapsed    time.Duration      `json:"elapsed_ns"`
	Failed     []store.FailedUnit `json:"failed,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func newRunInfo(r store.Run) RunInfo {
	info := RunInfo{
		ID:         r.ID,
		Status:     r.Status,
		Space:      r.Space.String(),
		Units:      r.Units,
		Processed:  r.Processed,
		Total:      r.Total,
		OmegaCount: r.OmegaCount,
		Elapsed:    r.Elapsed,
		Failed:     r.Failed,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.Completed != nil {
		info.UnitsDone = r.Completed.GetCardinality()
	}
	return info
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show the ranked Omega Class combinations of a stored run",
		Long: `Show a stored run's status, summary statistics and its top-ranked Omega
Class combinations. Without --run the most recently started run is shown.

--delete removes a run and its stored combinations.

Examples:
  omega results --db ./omega.db
  omega results --db ./omega.db --run 0192f0c1-... --top 20
  omega results --db ./omega.db --list
  omega results --db ./omega.db --delete 0192f0c1-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", config.DefaultDB, "path to SQLite checkpoint database")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID (default: latest run)")
	cmd.Flags().IntVar(&opts.Top, "top", 100, "number of ranked records to show (0 = all)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list stored runs instead of one run's results")
	cmd.Flags().StringVar(&opts.Delete, "delete", "", "delete the run with this ID")
	cmd.MarkFlagsMutuallyExclusive("delete", "list", "run")

	return cmd
}

func runResults(opts *ResultsOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	if opts.Top < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --top %d: must not be negative", opts.Top))
	}

	// store.Open creates missing files; a mistyped path must not look empty.
	if _, err := os.Stat(opts.Database); errors.Is(err, fs.ErrNotExist) {
		return WrapExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database), err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if opts.Delete != "" {
		err := st.DeleteRun(ctx, opts.Delete)
		if errors.Is(err, store.ErrNotFound) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("run %s not found", opts.Delete), err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to delete run", err)
		}
		if f.IsJSON() {
			return f.JSON(DeleteOutput{Deleted: opts.Delete}, nil)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", opts.Delete)
		return nil
	}

	if opts.List {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		infos := make([]RunInfo, len(runs))
		for i, r := range runs {
			infos[i] = newRunInfo(r)
		}
		if f.IsJSON() {
			return f.JSON(infos, nil)
		}
		writeRunListText(cmd.OutOrStdout(), infos)
		return nil
	}

	var run store.Run
	if opts.RunID != "" {
		run, err = st.GetRun(ctx, opts.RunID)
	} else {
		run, err = st.LatestRun(ctx)
	}
	if errors.Is(err, store.ErrNotFound) {
		if opts.RunID != "" {
			return WrapExitError(ExitCommandError, fmt.Sprintf("run %s not found", opts.RunID), err)
		}
		return WrapExitError(ExitCommandError, "no runs in database", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	records, err := st.Results(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read results", err)
	}

	out := ResultsOutput{
		Run:     newRunInfo(run),
		Summary: results.Summarize(records),
		Records: records,
	}
	if opts.Top > 0 {
		out.Records = results.Top(records, opts.Top)
	}

	if f.IsJSON() {
		return f.JSON(out, nil)
	}
	writeResultsText(cmd.OutOrStdout(), out)
	return nil
}

func writeResultsText(w io.Writer, out ResultsOutput) {
	p := newPrinter()
	r := out.Run

	p.Fprintf(w, "Run %s (%s)\n", r.ID, r.Status)
	p.Fprintf(w, "  Space: %s\n", r.Space)
	p.Fprintf(w, "  Processed: %d of %d combinations, %d of %d units\n", r.Processed, r.Total, r.UnitsDone, r.Units)
	p.Fprintf(w, "  Elapsed: %s\n", r.Elapsed.Round(time.Millisecond))
	p.Fprintf(w, "  Omega Class: %d\n", r.OmegaCount)
	for _, f := range r.Failed {
		p.Fprintf(w, "  Failed: unit %d [%d, %d): %s\n", f.Unit, f.Start, f.End, f.Reason)
	}

	if len(out.Records) == 0 {
		return
	}
	fmt.Fprintln(w)
	writeSummaryText(w, out.Summary)
	fmt.Fprintln(w)
	writeRecordsText(w, out.Records)
}

func writeRunListText(w io.Writer, runs []RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return
	}
	p := newPrinter()
	for _, r := range runs {
		p.Fprintf(w, "%s  %-11s %s  %d/%d units  %d Omega  updated %s\n",
			r.ID, r.Status, r.Space, r.UnitsDone, r.Units, r.OmegaCount, r.UpdatedAt.Format(time.RFC3339))
	}
}
