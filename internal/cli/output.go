package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"gopkg.in/yaml.v3"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the command ran but some items failed
	ExitCommandError = 2 // bad input, unreachable stores, invalid configuration
)

// ExitError carries the exit status a command wants.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of an ExitError, else maps the error kind: caller mistakes exit 2,
// everything else 1.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return errkind.ExitCode(err)
}

// Printer renders command results as JSON or as YAML-style text.
type Printer struct {
	Format string
	Writer io.Writer
}

func (p *Printer) Print(v any) error {
	if p.Format == "json" {
		return json.NewEncoder(p.Writer).Encode(v)
	}
	enc := yaml.NewEncoder(p.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(toPlain(v)); err != nil {
		return err
	}
	return enc.Close()
}

// PrintError writes a failed command's error in the configured format.
func (p *Printer) PrintError(err error) {
	if p.Format == "json" {
		_ = json.NewEncoder(p.Writer).Encode(map[string]any{
			"error": err.Error(),
			"kind":  string(errkind.Of(err)),
		})
		return
	}
	fmt.Fprintf(p.Writer, "Error [%s]: %v\n", errkind.Of(err), err)
}

// toPlain round-trips v through JSON so the text output uses the json field names.
func toPlain(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
