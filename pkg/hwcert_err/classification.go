// pkg/hwcert_err/classification.go
//
// Error classification with exit codes.

package hwcert_err

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors for appropriate handling
type ErrorCategory int

const (
	// CategorySystem - OS/filesystem issues (exit 1)
	CategorySystem ErrorCategory = iota
	// CategoryValidation - bad configuration or arguments (exit 2)
	CategoryValidation
	// CategoryUser - operator cancelled/interrupted (exit 130)
	CategoryUser
	// CategoryInternal - bugs in hwcert itself (exit 3)
	CategoryInternal
	// CategoryDependency - missing utilities or packages (exit 1)
	CategoryDependency
	// CategoryPermission - permission denied (exit 1)
	CategoryPermission
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryUser:
		return "user"
	case CategoryInternal:
		return "internal"
	case CategoryDependency:
		return "dependency"
	case CategoryPermission:
		return "permission"
	default:
		return "system"
	}
}

// CategoryOf reports the category of a classified error anywhere in err's
// chain, treating unclassified errors as system errors.
func CategoryOf(err error) ErrorCategory {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Category
	}
	return CategorySystem
}

// ClassifiedError wraps an error with category and remediation info
type ClassifiedError struct {
	Category    ErrorCategory
	Message     string
	Cause       error
	Remediation []string
}

func (e *ClassifiedError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Cause != nil && e.Cause.Error() != e.Message {
		sb.WriteString(fmt.Sprintf("\n\nCause: %v", e.Cause))
	}

	if len(e.Remediation) > 0 {
		sb.WriteString("\n\nHow to fix:")
		for i, step := range e.Remediation {
			sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, step))
		}
	}
	return sb.String()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the process exit code for this error category
func (e *ClassifiedError) ExitCode() int {
	switch e.Category {
	case CategoryUser:
		return 130
	case CategoryValidation:
		return 2
	case CategoryInternal:
		return 3
	default:
		return 1
	}
}

// GetExitCode returns 0 for nil and expected user errors, the category code
// for classified errors and 1 for everything else.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.ExitCode()
	}

	if IsExpectedUserError(err) {
		return 0
	}
	return 1
}

func NewValidationError(message string, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategoryValidation,
		Message:     message,
		Remediation: remediation,
	}
}

func NewDependencyError(dependency, operation string, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategoryDependency,
		Message:     fmt.Sprintf("%s is required for %s but not found", dependency, operation),
		Remediation: remediation,
	}
}

func NewFilesystemError(message string, cause error, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategorySystem,
		Message:     message,
		Cause:       cause,
		Remediation: remediation,
	}
}

func NewPermissionError(resource, operation string, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategoryPermission,
		Message:     fmt.Sprintf("Permission denied: cannot %s %s", operation, resource),
		Remediation: remediation,
	}
}

// NewInternalError creates an error for hwcert bugs
func NewInternalError(message string, cause error) error {
	return &ClassifiedError{
		Category: CategoryInternal,
		Message:  message,
		Cause:    cause,
		Remediation: []string{
			"This is likely a bug in hwcert",
			"Include this error message and the hwcert.log file when reporting it",
		},
	}
}

func NewUserCancelledError(operation string) error {
	return &ClassifiedError{
		Category:    CategoryUser,
		Message:     fmt.Sprintf("Operation cancelled by user: %s", operation),
		Remediation: []string{"Run the command again to retry"},
	}
}

// ClassifyError attempts to classify an error coming from a system call or
// an external command.
func ClassifyError(err error, context string) error {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return err
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "permission denied"),
		strings.Contains(errStr, "operation not permitted"):
		return NewPermissionError(context, "access", "Run hwcert as root")

	case strings.Contains(errStr, "executable file not found"),
		strings.Contains(errStr, "command not found"):
		return NewDependencyError(
			extractCommand(errStr),
			context,
			"Install the required package",
			"Check that it's in your PATH",
		)

	case strings.Contains(errStr, "no such file"),
		strings.Contains(errStr, "does not exist"):
		return NewFilesystemError(
			fmt.Sprintf("%s: resource not found", context),
			err,
			"Check that the path exists",
		)

	default:
		return NewFilesystemError(fmt.Sprintf("%s failed", context), err)
	}
}

// extractCommand pulls the command name out of `exec: "x": executable file not found`.
func extractCommand(errMsg string) string {
	if strings.Contains(errMsg, "exec:") {
		parts := strings.Split(errMsg, "\"")
		if len(parts) >= 2 {
			return parts[1]
		}
	}
	return "command"
}
