package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory groups errors by how the caller should react to them
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryFetch         ErrorCategory = "fetch"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryFile          ErrorCategory = "file"
	CategoryParse         ErrorCategory = "parse"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Validation errors
	CodeMissingField  ErrorCode = "missing_field"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeInvalidRange  ErrorCode = "invalid_range"
	CodeOutOfRange    ErrorCode = "out_of_range"
	CodeUnknownMode   ErrorCode = "unknown_mode"
	CodeInvalidScope  ErrorCode = "invalid_scope"
	CodeMissingClient ErrorCode = "missing_client"

	// Fetch errors
	CodeSourceUnavailable ErrorCode = "source_unavailable"
	CodeBadResponse       ErrorCode = "bad_response"
	CodeTimeout           ErrorCode = "timeout"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"

	// Parse errors
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidFormat ErrorCode = "invalid_format"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// StatementError is the base error type for all application errors
type StatementError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Section    string            `json:"section,omitempty"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *StatementError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *StatementError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *StatementError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryInternal:
		return 5
	case CategoryFetch:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *StatementError) WithContext(key string, value interface{}) *StatementError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *StatementError) WithSuggestion(suggestion string) *StatementError {
	e.Suggestion = suggestion
	return e
}

// New creates a new StatementError
func New(category ErrorCategory, code ErrorCode, message string) *StatementError {
	return &StatementError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with StatementError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *StatementError {
	if err == nil {
		return nil
	}

	return &StatementError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// ValidationError reports a malformed or incomplete statement filter.
// Validation errors are terminal for a request.
func ValidationError(code ErrorCode, field string, value interface{}) *StatementError {
	var message string
	var suggestion string

	switch code {
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this field"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use the date format YYYY-MM-DD"
	case CodeInvalidRange:
		message = fmt.Sprintf("invalid date range in field '%s': %v", field, value)
		suggestion = "the end date must not be earlier than the start date"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	case CodeUnknownMode:
		message = fmt.Sprintf("unknown filter mode in field '%s': %v", field, value)
		suggestion = "use one of: day, range, month, year, beneficiary, all"
	case CodeInvalidScope:
		message = fmt.Sprintf("invalid scope in field '%s': %v", field, value)
		suggestion = "use 'office' or 'client'"
	case CodeMissingClient:
		message = fmt.Sprintf("client scope requires field '%s'", field)
		suggestion = "select a client before requesting a client statement"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return New(CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// FetchError reports the failure of a single statement section fetch.
// It never aborts sibling sections.
func FetchError(code ErrorCode, section string, err error) *StatementError {
	var message string

	switch code {
	case CodeSourceUnavailable:
		message = fmt.Sprintf("%s source unavailable", section)
	case CodeBadResponse:
		message = fmt.Sprintf("%s source returned an unreadable response", section)
	case CodeTimeout:
		message = fmt.Sprintf("%s source timed out", section)
	default:
		message = fmt.Sprintf("failed to fetch %s", section)
	}

	var result *StatementError
	if err != nil {
		result = Wrap(err, CategoryFetch, code, message)
	} else {
		result = New(CategoryFetch, code, message)
	}
	result.Section = section

	return result.
		WithSuggestion("retry the statement; other sections are unaffected").
		WithContext("section", section)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *StatementError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting as a flag, in the config file or as an ETAT_ variable"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *StatementError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *StatementError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	var result *StatementError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates a parsing-related error for ledger files
func ParseError(code ErrorCode, file string, line int, column string, err error) *StatementError {
	var message string

	switch code {
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s' in file %s", column, file)
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format in file %s at line %d", file, line)
	default:
		message = fmt.Sprintf("parse error in file %s at line %d", file, line)
	}

	var result *StatementError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSuggestion("verify the CSV headers and delimiter").
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *StatementError {
	message := fmt.Sprintf("internal error during %s", operation)
	if code == CodeUnexpectedError {
		message = fmt.Sprintf("unexpected error during %s", operation)
	}

	var result *StatementError
	if err != nil {
		result = Wrap(err, CategoryInternal, code, message)
	} else {
		result = New(CategoryInternal, code, message)
	}

	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// AsStatementError extracts a StatementError from an error chain
func AsStatementError(err error) (*StatementError, bool) {
	var statementErr *StatementError
	if errors.As(err, &statementErr) {
		return statementErr, true
	}
	return nil, false
}

// IsCategory reports whether err carries a StatementError of the given category
func IsCategory(err error, category ErrorCategory) bool {
	statementErr, ok := AsStatementError(err)
	return ok && statementErr.Category == category
}

// IsValidation reports whether err is a filter validation failure
func IsValidation(err error) bool {
	return IsCategory(err, CategoryValidation)
}

// WrapIfNeeded wraps an error if it's not already a StatementError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *StatementError {
	if err == nil {
		return nil
	}

	if statementErr, ok := AsStatementError(err); ok {
		return statementErr
	}

	return Wrap(err, category, code, message)
}

// Join renders several errors as a single line, used for multi-section summaries
func Join(errs []error) string {
	var parts []string
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	return strings.Join(parts, "; ")
}
