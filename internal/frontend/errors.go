package frontend

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/refc/internal/ast"
)

// Load error codes, shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeSchema      = "E010" // Module shape is wrong
	ErrCodeType        = "E011" // Type error in a function body
	ErrCodeName        = "E012" // Undefined name or function
)

// CompileError is a malformed or ill-typed module, with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadError is a failure to read or build a module file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapFieldToErrorCode maps a CompileError field to a load error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case strings.HasSuffix(field, ".type"), strings.HasPrefix(field, "type"):
		return ErrCodeType
	case strings.HasSuffix(field, ".name"):
		return ErrCodeName
	case field == "module", strings.HasPrefix(field, "functions"), strings.HasPrefix(field, "unsupported"):
		return ErrCodeSchema
	}
	return ErrCodeGeneric
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

func position(p token.Pos) ast.Pos {
	if !p.IsValid() {
		return ast.Pos{}
	}
	return ast.Pos{File: p.Filename(), Line: p.Line(), Col: p.Column()}
}
