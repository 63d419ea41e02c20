package pricing

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a customization request could not be priced.
type ErrorKind string

const (
	UnknownPackage        ErrorKind = "unknown_package"
	UnknownOptionGroup    ErrorKind = "unknown_option_group"
	UnknownOptionValue    ErrorKind = "unknown_option_value"
	MalformedInput        ErrorKind = "malformed_input"
	MissingRequiredOption ErrorKind = "missing_required_option"
)

var (
	ErrUnknownPackage        = errors.New("pricing: unknown package")
	ErrUnknownOptionGroup    = errors.New("pricing: unknown option group")
	ErrUnknownOptionValue    = errors.New("pricing: unknown option value")
	ErrMalformedInput        = errors.New("pricing: malformed customizations")
	ErrMissingRequiredOption = errors.New("pricing: missing required option")
)

var kindSentinels = map[ErrorKind]error{
	UnknownPackage:        ErrUnknownPackage,
	UnknownOptionGroup:    ErrUnknownOptionGroup,
	UnknownOptionValue:    ErrUnknownOptionValue,
	MalformedInput:        ErrMalformedInput,
	MissingRequiredOption: ErrMissingRequiredOption,
}

// ValidationError is the error form of an invalid Result. Its message is the text shown to
// the storefront client.
type ValidationError struct {
	Kind      ErrorKind
	PackageID string
	Group     string
	Option    string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch e.Kind {
	case UnknownPackage:
		return "Invalid package ID"
	case UnknownOptionGroup:
		return fmt.Sprintf("Invalid option type: %s", e.Group)
	case UnknownOptionValue:
		return fmt.Sprintf("Invalid option value: %s for %s", e.Option, e.Group)
	case MissingRequiredOption:
		return fmt.Sprintf("Missing required option: %s", e.Group)
	default:
		return "Invalid customization format"
	}
}

// Is matches the sentinel for the error kind, so callers can use errors.Is(err, ErrUnknownPackage).
func (e *ValidationError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf extracts the ErrorKind from err, or "" when err is not a validation error.
func KindOf(err error) ErrorKind {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return ""
}
