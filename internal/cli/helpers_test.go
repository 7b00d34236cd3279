package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/omega/internal/testutil"
)

// fixture is a small search setup on disk: synthetic tables for C([1..12], 6)
// and a config file pointing at them.
type fixture struct {
	dir    string
	tables string
	config string
	db     string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:    dir,
		tables: filepath.Join(dir, "tables.json"),
		config: filepath.Join(dir, "omega.yaml"),
		db:     filepath.Join(dir, "omega.db"),
	}

	testutil.WriteSyntheticTables(t, f.tables, testutil.SmallSpace())

	cfg := fmt.Sprintf(`space:
  min: 1
  max: 12
  k: 6
thresholds:
  pairs: 85
  triples: 40
  quads: 15
tables: %q
db: %q
workers: 2
units: 8
progress_interval: "0"
`, f.tables, f.db)
	require.NoError(t, os.WriteFile(f.config, []byte(cfg), 0o644))
	return f
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// decodeResponse parses a JSON CLIResponse whose data has type T.
func decodeResponse[T any](t *testing.T, out string) (T, CLIResponse) {
	t.Helper()
	var resp struct {
		Status string    `json:"status"`
		Data   T         `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp.Data, CLIResponse{Status: resp.Status, Error: resp.Error}
}
