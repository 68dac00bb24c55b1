package authoring

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/ifthen/internal/engine"
)

// CSV table suffixes. A chunk named "lamp" is read from lamp.status.csv,
// lamp.expression.csv and lamp.behavior.csv.
const (
	SuffixStatus     = ".status.csv"
	SuffixExpression = ".expression.csv"
	SuffixBehavior   = ".behavior.csv"
)

// Bundle is the authored content of one directory.
type Bundle struct {
	Chunks   []engine.ChunkSpec
	CUEFiles []string
	CSVFiles []string
}

// Counts returns the number of statuses, expressions and behaviors across
// all chunks.
func (b *Bundle) Counts() (statuses, expressions, behaviors int) {
	for _, c := range b.Chunks {
		statuses += len(c.Statuses)
		expressions += len(c.Expressions)
		behaviors += len(c.Behaviors)
	}
	return
}

// LoadBundle loads every CUE chunk and CSV table triplet under dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
//
// Chunks are returned CUE first, in declaration order, then CSV chunks sorted
// by name. A chunk name defined by both sources is an error.
func LoadBundle(dir string, mode LoadMode) (*Bundle, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("bundle directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing bundle directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, csvFiles, err := FindFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 && len(csvFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE or CSV files found in %s", dir)}}
	}

	bundle := &Bundle{CUEFiles: cueFiles, CSVFiles: csvFiles}
	var errs []error

	if len(cueFiles) > 0 {
		ctx := cuecontext.New()
		instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
		if len(instances) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
		}
		inst := instances[0]
		if inst.Err != nil {
			return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
		}
		value := ctx.BuildInstance(inst)
		if err := value.Err(); err != nil {
			return nil, []error{formatCUEError(err)}
		}

		chunks, cueErrs := CompileChunks(value, mode)
		bundle.Chunks = append(bundle.Chunks, chunks...)
		errs = append(errs, cueErrs...)
		if mode == LoadModeFailFast && len(errs) > 0 {
			return bundle, errs
		}
	}

	for _, files := range groupCSV(csvFiles) {
		if slices.ContainsFunc(bundle.Chunks, func(c engine.ChunkSpec) bool { return c.Name == files.Chunk }) {
			errs = append(errs, &LoadError{
				Code:    ErrCodeGeneric,
				Message: fmt.Sprintf("chunk %s is defined in both CUE and CSV", files.Chunk),
				File:    firstNonEmpty(files.Status, files.Expression, files.Behavior),
			})
			if mode == LoadModeFailFast {
				return bundle, errs
			}
			continue
		}
		chunk, csvErrs := LoadCSVChunk(files, mode)
		bundle.Chunks = append(bundle.Chunks, chunk)
		errs = append(errs, csvErrs...)
		if mode == LoadModeFailFast && len(errs) > 0 {
			return bundle, errs
		}
	}

	if len(bundle.Chunks) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no chunks found in bundle"})
	}
	return bundle, errs
}

// FindFiles walks the directory and returns all .cue and .csv file paths.
func FindFiles(dir string) (cueFiles, csvFiles []string, err error) {
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".cue":
			cueFiles = append(cueFiles, path)
		case ".csv":
			csvFiles = append(csvFiles, path)
		}
		return nil
	})
	return cueFiles, csvFiles, err
}

// groupCSV groups table files by chunk name. Files without a known suffix
// are ignored.
func groupCSV(paths []string) []CSVFiles {
	groups := make(map[string]*CSVFiles)
	var names []string
	for _, path := range paths {
		base := filepath.Base(path)
		for _, suffix := range []string{SuffixStatus, SuffixExpression, SuffixBehavior} {
			if !strings.HasSuffix(base, suffix) {
				continue
			}
			chunk := strings.TrimSuffix(base, suffix)
			g, ok := groups[chunk]
			if !ok {
				g = &CSVFiles{Chunk: chunk}
				groups[chunk] = g
				names = append(names, chunk)
			}
			switch suffix {
			case SuffixStatus:
				g.Status = path
			case SuffixExpression:
				g.Expression = path
			case SuffixBehavior:
				g.Behavior = path
			}
			break
		}
	}

	slices.Sort(names)
	out := make([]CSVFiles, 0, len(names))
	for _, name := range names {
		out = append(out, *groups[name])
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
