package authoring

import (
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error code constants, shared by the CUE and CSV loaders.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE or CSV files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeInvalidStatus     = "E120" // Bad status kind or value
	ErrCodeInvalidExpression = "E121" // Bad expression logic, kind or element
	ErrCodeInvalidBehavior   = "E122" // Bad condition, priority or assignment
	ErrCodeExpressionCycle   = "E123" // Compound expressions reference each other
	ErrCodeInvalidTable      = "E124" // Malformed CSV table
)

// LoadError represents an error found while loading authored content.
//
// CUE errors carry a token.Pos. CSV errors carry the file name with a 1-based
// row and column instead.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available

	File   string
	Row    int
	Column int
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.File, e.Row, e.Column, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)
