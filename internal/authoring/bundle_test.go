package authoring

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ifthen/internal/engine"
)

func writeMeterCSV(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, dir, "meter.status.csv", "KEY, KIND, VALUE\nwatts, UNSIGNED_16, 0\nalarms, UNSIGNED_8, 0\n")
	writeFile(t, dir, "meter.expression.csv", "KEY, LOGIC, KIND, ELEMENT\nover, AND, STATUS_COMPARISON, watts, >, 1500\n")
	writeFile(t, dir, "meter.behavior.csv", "KEY, CONDITION,, PRIORITY, KIND, ARGUMENT\nover, !TRUE, TRUE, 0, STATUS, alarms, +=, 1\n")
}

func TestLoadBundle_CUEAndCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lamp.cue", lampCUE)
	writeMeterCSV(t, dir)
	writeFile(t, dir, "notes.csv", "ignored, because, no suffix\n")

	bundle, errs := LoadBundle(dir, LoadModeCollectAll)
	require.Empty(t, errs)
	require.Len(t, bundle.Chunks, 2)
	assert.Equal(t, "lamp", bundle.Chunks[0].Name)
	assert.Equal(t, "meter", bundle.Chunks[1].Name)
	assert.Len(t, bundle.CUEFiles, 1)
	assert.Len(t, bundle.CSVFiles, 4)

	statuses, expressions, behaviors := bundle.Counts()
	assert.Equal(t, 8, statuses)
	assert.Equal(t, 4, expressions)
	assert.Equal(t, 2, behaviors)

	d := engine.NewDriver()
	for _, c := range bundle.Chunks {
		require.NoError(t, d.ExtendChunk(c))
	}
	assert.Equal(t, "meter", d.Names().Chunk(bundle.Chunks[1].ChunkKey()))
}

func TestLoadBundle_CSVOnly(t *testing.T) {
	dir := t.TempDir()
	writeMeterCSV(t, dir)

	bundle, errs := LoadBundle(dir, LoadModeFailFast)
	require.Empty(t, errs)
	require.Len(t, bundle.Chunks, 1)
	assert.Empty(t, bundle.CUEFiles)
}

func TestLoadBundle_DuplicateChunk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lamp.cue", lampCUE)
	writeFile(t, dir, "lamp.status.csv", "KEY, KIND, VALUE\nx, BOOL, TRUE\n")

	bundle, errs := LoadBundle(dir, LoadModeCollectAll)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "defined in both CUE and CSV")
	assert.Len(t, bundle.Chunks, 1)
}

func TestLoadBundle_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		code  string
	}{
		{
			name:  "missing directory",
			setup: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent") },
			code:  ErrCodeNotFound,
		},
		{
			name: "not a directory",
			setup: func(t *testing.T) string {
				return writeFile(t, t.TempDir(), "file.cue", "x: 1\n")
			},
			code: ErrCodeNotFound,
		},
		{
			name:  "empty directory",
			setup: func(t *testing.T) string { return t.TempDir() },
			code:  ErrCodeNoFiles,
		},
		{
			name: "cue syntax error",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "bad.cue", "package test\n\nchunk: {\n")
				return dir
			},
			code: ErrCodeLoadFailed,
		},
		{
			name: "no chunks",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "empty.cue", "package test\n\nother: 1\n")
				return dir
			},
			code: ErrCodeGeneric,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := LoadBundle(tt.setup(t), LoadModeCollectAll)
			require.NotEmpty(t, errs)
			var le *LoadError
			require.ErrorAs(t, errs[0], &le)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestLoadBundle_FailFastStopsAtFirstChunk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.status.csv", "KEY, KIND, VALUE\nx, COLOR, 1\ny, COLOR, 2\n")
	writeFile(t, dir, "b.status.csv", "KEY, KIND, VALUE\nz, COLOR, 1\n")

	_, errs := LoadBundle(dir, LoadModeFailFast)
	assert.Len(t, errs, 1)

	_, errs = LoadBundle(dir, LoadModeCollectAll)
	assert.Len(t, errs, 3)
}
