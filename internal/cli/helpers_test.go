package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const doorCUE = `package door

chunk: door: {
	status: {
		open:  {kind: "BOOL", value: false}
		opens: {kind: "UNSIGNED_8", value: 0}
	}
	expression: {
		opened: comparisons: [{status: "open", op: "==", value: true}]
	}
	behavior: [{
		expression: "opened"
		condition: ["!TRUE", "TRUE"]
		assign: [{status: "opens", op: "+=", value: 1}]
	}]
}
`

const doorScenario = `name: door
description: "Every opening is counted once"
bundles:
  - ../bundles/door
steps:
  - name: closed
    expect:
      dispatches: []
  - name: open
    set:
      open: true
    ticks: 2
    expect:
      dispatches: [opened]
  - name: close
    set:
      open: false
    expect:
      dispatches: []
  - name: open again
    set:
      open: true
    ticks: 2
    expect:
      dispatches: [opened]
assertions:
  - type: dispatch_count
    expression: opened
    count: 2
  - type: status_equals
    status: opens
    value: 2
`

// writeFixture lays out root/bundles/door and root/scenarios/door.yaml and
// returns root.
func writeFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bundles", "door", "door.cue"), doorCUE)
	writeFile(t, filepath.Join(root, "scenarios", "door.yaml"), doorScenario)
	return root
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}
