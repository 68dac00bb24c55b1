package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ifthen/internal/authoring"
	"github.com/roach88/ifthen/internal/engine"
)

// ValidationIssue is one load or registration problem.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Chunk   string `json:"chunk,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (i ValidationIssue) String() string {
	var b strings.Builder
	if i.File != "" {
		fmt.Fprintf(&b, "%s:%d:%d: ", i.File, i.Line, i.Column)
	}
	if i.Chunk != "" {
		fmt.Fprintf(&b, "chunk %s: ", i.Chunk)
	}
	fmt.Fprintf(&b, "%s: %s", i.Code, i.Message)
	return b.String()
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Chunks      []string          `json:"chunks"`
	Statuses    int               `json:"statuses"`
	Expressions int               `json:"expressions"`
	Behaviors   int               `json:"behaviors"`
	Errors      []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <bundle-dir>",
		Short: "Load a bundle and register it into a scratch driver",
		Long: `Load every CUE and CSV chunk in a bundle directory and register them
into an empty driver, reporting all errors at once.

Exit codes:
  0 - Bundle is valid
  1 - Load or registration errors
  2 - Directory missing or holds no chunk files`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result, err := ValidateBundle(dir, opts.config())
	if err != nil {
		var le *authoring.LoadError
		code := authoring.ErrCodeGeneric
		if errors.As(err, &le) {
			code = le.Code
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "cannot load bundle", err)
	}

	for _, c := range result.Chunks {
		formatter.VerboseLog("chunk %s", c)
	}

	if !result.Valid {
		msg := fmt.Sprintf("validation failed with %d error(s)", len(result.Errors))
		if formatter.JSON() {
			if err := formatter.Failure(result, result.Errors[0].Code, msg); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(formatter.Writer, "✗ Validation failed")
			fmt.Fprintln(formatter.Writer)
			for _, issue := range result.Errors {
				fmt.Fprintf(formatter.Writer, "  %s\n", issue)
			}
		}
		return NewExitError(ExitFailure, msg)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d chunk(s): %d statuses, %d expressions, %d behaviors\n",
		len(result.Chunks), result.Statuses, result.Expressions, result.Behaviors)
	return nil
}

// ValidateBundle loads dir and registers its chunks into a scratch driver.
// The error is non-nil only when the directory cannot be loaded at all;
// per-item problems are returned in the result.
func ValidateBundle(dir string, cfg *Config) (ValidationResult, error) {
	result := ValidationResult{Chunks: []string{}}

	bundle, loadErrs := authoring.LoadBundle(dir, authoring.LoadModeCollectAll)
	if bundle == nil {
		return result, loadErrs[0]
	}
	for _, err := range loadErrs {
		result.Errors = append(result.Errors, loadIssue(err))
	}

	d := engine.NewDriver(cfg.DriverOptions()...)
	for _, c := range bundle.Chunks {
		result.Chunks = append(result.Chunks, c.Name)
		for _, err := range unjoin(d.ExtendChunk(c)) {
			result.Errors = append(result.Errors, registrationIssue(c.Name, err))
		}
	}
	result.Statuses, result.Expressions, result.Behaviors = bundle.Counts()
	result.Valid = len(result.Errors) == 0
	return result, nil
}

func loadIssue(err error) ValidationIssue {
	var le *authoring.LoadError
	var ce *authoring.CycleError
	switch {
	case errors.As(err, &le):
		issue := ValidationIssue{Code: le.Code, Message: le.Message}
		if le.Pos.IsValid() {
			issue.File, issue.Line, issue.Column = le.Pos.Filename(), le.Pos.Line(), le.Pos.Column()
		} else if le.File != "" {
			issue.File, issue.Line, issue.Column = le.File, le.Row, le.Column
		}
		return issue
	case errors.As(err, &ce):
		return ValidationIssue{
			Code:    authoring.ErrCodeExpressionCycle,
			Message: "expression cycle: " + strings.Join(ce.Path, " → "),
		}
	default:
		return ValidationIssue{Code: authoring.ErrCodeGeneric, Message: err.Error()}
	}
}

func registrationIssue(chunk string, err error) ValidationIssue {
	var re *engine.RegistrationError
	if errors.As(err, &re) {
		msg := re.Message
		if re.Key != "" {
			msg = fmt.Sprintf("%s: %s", re.Key, re.Message)
		}
		return ValidationIssue{Code: string(re.Code), Message: msg, Chunk: chunk}
	}
	return ValidationIssue{Code: authoring.ErrCodeGeneric, Message: err.Error(), Chunk: chunk}
}

// unjoin splits an errors.Join result back into its parts.
func unjoin(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
