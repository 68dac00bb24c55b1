package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ifthen/internal/engine"
	"github.com/roach88/ifthen/internal/harness"
	"github.com/roach88/ifthen/internal/ir"
	"github.com/roach88/ifthen/internal/store"
)

// recordRuns runs the door scenario once per ID (and once per ID in alt, with
// the second opening removed) into a fresh database and returns its path.
func recordRuns(t *testing.T, ids []string, alt ...string) string {
	t.Helper()
	root := writeFixture(t)
	db := filepath.Join(root, "traces.db")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	record := func(path string, id string) {
		scenario, err := harness.LoadScenario(path)
		require.NoError(t, err)
		_, err = harness.Run(t.Context(), scenario,
			harness.WithStore(st),
			harness.WithRunIDGenerator(engine.NewFixedGenerator(id)))
		require.NoError(t, err)
	}

	for _, id := range ids {
		record(filepath.Join(root, "scenarios", "door.yaml"), id)
	}
	if len(alt) > 0 {
		short := strings.Split(doorScenario, "  - name: open again")[0]
		path := writeFile(t, filepath.Join(root, "scenarios", "short.yaml"), short)
		for _, id := range alt {
			record(path, id)
		}
	}
	return db
}

func TestTrace_ListRuns(t *testing.T) {
	db := recordRuns(t, []string{"run-b", "run-a"})

	stdout, _, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "run-a  door  (engine "+ir.EngineVersion))
	assert.True(t, strings.HasPrefix(lines[1], "run-b  door"))
}

func TestTrace_ListRunsEmpty(t *testing.T) {
	db := recordRuns(t, nil)

	stdout, _, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No runs recorded.")

	stdout, _, err = execute(t, "--format", "json", "trace", "--db", db)
	require.NoError(t, err)
	var resp struct {
		Data []ir.RunRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Empty(t, resp.Data)
}

func TestTrace_Run(t *testing.T) {
	db := recordRuns(t, []string{"run-1"})

	stdout, _, err := execute(t, "trace", "--db", db, "run-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Run: run-1\n")
	assert.Contains(t, stdout, "Scenario: door\n")
	assert.Equal(t, 2, strings.Count(stdout, "opened FALSE->TRUE (priority 0)"))
	assert.Contains(t, stdout, "  opens = 2\n")
	assert.Contains(t, stdout, "  Ticks:      6\n")
	assert.Contains(t, stdout, "    opened: 2\n")
}

func TestBuildTrace(t *testing.T) {
	db := recordRuns(t, []string{"run-1"})
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	result, err := BuildTrace(t.Context(), st, "run-1", "")
	require.NoError(t, err)
	require.Len(t, result.Timeline, 6)
	assert.Equal(t, int64(6), result.Stats.LastSeq)
	assert.Equal(t, 2, result.Stats.Dispatches)
	assert.Equal(t, map[string]string{"open": "TRUE", "opens": "2"}, result.Statuses)

	var dispatched []int64
	for _, tick := range result.Timeline {
		assert.NotNil(t, tick.Dispatches)
		for _, d := range tick.Dispatches {
			assert.Equal(t, "opened", d.Expression)
			assert.Equal(t, ir.True, d.Now)
			dispatched = append(dispatched, tick.Seq)
		}
	}
	assert.Equal(t, []int64{2, 5}, dispatched)

	opened, err := BuildTrace(t.Context(), st, "run-1", "opened")
	require.NoError(t, err)
	var openedSeqs []int64
	for _, tick := range opened.Timeline {
		for range tick.Dispatches {
			openedSeqs = append(openedSeqs, tick.Seq)
		}
	}
	assert.Equal(t, []int64{2, 5}, openedSeqs)

	filtered, err := BuildTrace(t.Context(), st, "run-1", "closed")
	require.NoError(t, err)
	assert.Len(t, filtered.Timeline, 6, "ticks are kept")
	for _, tick := range filtered.Timeline {
		assert.Empty(t, tick.Dispatches)
	}
}

func TestTrace_RunJSON(t *testing.T) {
	db := recordRuns(t, []string{"run-1"})

	stdout, _, err := execute(t, "--format", "json", "trace", "--db", db, "--expression", "opened", "run-1")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.Data.Run.ID)
	assert.Equal(t, map[string]int{"opened": 2}, resp.Data.Stats.DispatchCount)
}

func TestTrace_RunNotFound(t *testing.T) {
	db := recordRuns(t, []string{"run-1"})

	stdout, _, err := execute(t, "trace", "--db", db, "run-9")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error ["+ErrCodeRunNotFound+"]: run not found: run-9")
}

func TestTrace_Diff(t *testing.T) {
	db := recordRuns(t, []string{"run-a", "run-b"}, "run-short")

	stdout, _, err := execute(t, "trace", "--db", db, "run-a", "--diff", "run-b")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Runs dispatched identically")

	stdout, _, err = execute(t, "trace", "--db", db, "run-a", "--diff", "run-short")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "dispatch 1: seq=5 #")
	assert.Contains(t, stdout, "vs <end of run>")

	stdout, _, err = execute(t, "--format", "json", "trace", "--db", db, "run-short", "--diff", "run-a")
	require.Error(t, err)
	var resp struct {
		Data  DiffResult `json:"data"`
		Error CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.False(t, resp.Data.Identical)
	assert.Equal(t, ErrCodeRunDiverged, resp.Error.Code)
	assert.True(t, strings.HasPrefix(resp.Data.Divergence, "dispatch 1: <end of run> vs seq=5"))
}

func TestTrace_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no database", []string{"trace"}, "no database"},
		{"diff without run", []string{"trace", "--db", "x.db", "--diff", "b"}, "--diff needs a run ID"},
		{"too many args", []string{"trace", "--db", "x.db", "a", "b"}, "accepts at most 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
