package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sejongpeer/studybuddy/internal/buddy"
	"github.com/sejongpeer/studybuddy/internal/engine"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The operation was refused or failed (scenario failed, request not allowed)
	ExitCommandError = 2 // Command error (bad config, database unavailable, invalid flags)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Error codes reported in JSON output.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeNotOwner          = "NOT_OWNER"
	CodeActiveRequest     = "ACTIVE_REQUEST_EXISTS"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAlreadyAccepted   = "ALREADY_ACCEPTED"
	CodeTickInProgress    = "TICK_IN_PROGRESS"
	CodeConcurrentChange  = "CONCURRENT_CHANGE"
	CodeInconsistent      = "INCONSISTENT_STATE"
	CodeInternal          = "INTERNAL"
)

// errorCode classifies err for machine-readable output.
func errorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrInvalidRequest), errors.Is(err, engine.ErrInvalidTimeout):
		return CodeInvalidRequest
	case errors.Is(err, buddy.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, engine.ErrNotOwner):
		return CodeNotOwner
	case errors.Is(err, buddy.ErrActiveRequestExists):
		return CodeActiveRequest
	case errors.Is(err, buddy.ErrAlreadyAccepted):
		return CodeAlreadyAccepted
	case buddy.IsTransitionError(err):
		return CodeInvalidTransition
	case errors.Is(err, engine.ErrTickInProgress):
		return CodeTickInProgress
	case errors.Is(err, buddy.ErrStaleState):
		return CodeConcurrentChange
	case engine.IsConsistencyError(err):
		return CodeInconsistent
	}
	return CodeInternal
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success outputs data. In text mode render writes the human-readable form;
// a nil render prints data with %v.
func (f *OutputFormatter) Success(data any, render func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if render == nil {
		fmt.Fprintln(f.Writer, data)
		return nil
	}
	render(f.Writer)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return nil
}

// Fail returns the ExitError for a refused or failed operation. In JSON mode
// the error is also written as a response so that scripts can read the code;
// in text mode main prints the returned error.
func (f *OutputFormatter) Fail(message string, err error) error {
	if f.Format == "json" {
		if outErr := f.Error(errorCode(err), err.Error()); outErr != nil {
			return WrapExitError(ExitCommandError, "failed to write output", outErr)
		}
	}
	return WrapExitError(ExitFailure, message, err)
}
