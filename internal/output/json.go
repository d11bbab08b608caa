// Package output writes the CLI's single-object JSON envelope.
package output

import (
	"encoding/json"
	"errors"
	"io"
	"os"
)

// SchemaVersion is stamped on every response.
const SchemaVersion = "v1"

// Response represents a standard JSON response
type Response struct {
	SchemaVersion   string            `json:"schema_version"`
	Success         bool              `json:"success"`
	Data            any               `json:"data,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	ErrorContext    map[string]string `json:"error_context,omitempty"`
	SuggestedAction string            `json:"suggested_action,omitempty"`
}

// recoverableError mirrors models.RecoverableError.
type recoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// Success wraps a successful response with data
func Success(data any) Response {
	return Response{
		SchemaVersion: SchemaVersion,
		Success:       true,
		Data:          data,
	}
}

// Error wraps an error in a response. Errors anywhere in the chain that
// carry a code, context and suggested action have them copied out.
func Error(err error) Response {
	resp := Response{
		SchemaVersion: SchemaVersion,
		Success:       false,
		Error:         err.Error(),
	}
	var re recoverableError
	if errors.As(err, &re) {
		resp.ErrorCode = re.ErrorCode()
		resp.ErrorContext = re.Context()
		resp.SuggestedAction = re.SuggestedAction()
	}
	return resp
}

// Config controls where and how responses are encoded.
type Config struct {
	Writer io.Writer
	Pretty bool
}

// DefaultConfig writes to stdout. Default to compact JSON to keep output
// small for scripts; enable pretty JSON for humans via
// THREADSTORE_PRETTY_JSON=1.
func DefaultConfig() Config {
	v := os.Getenv("THREADSTORE_PRETTY_JSON")
	return Config{Writer: os.Stdout, Pretty: v == "1" || v == "true"}
}

// PrintWith encodes v as one JSON line (or an indented block) to cfg.Writer.
func PrintWith(cfg Config, v any) error {
	enc := json.NewEncoder(cfg.Writer)
	if cfg.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// Print prints a value as JSON to stdout
func Print(v any) error {
	return PrintWith(DefaultConfig(), v)
}

// PrintSuccess prints a success response
func PrintSuccess(data any) error {
	return Print(Success(data))
}

// PrintError prints an error response
func PrintError(err error) error {
	return Print(Error(err))
}
