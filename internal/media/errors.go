package media

import (
	"errors"
	"fmt"
)

// Kind sentinels, matched with errors.Is against any *Error of the same kind
var (
	// ErrNegotiation caps missing, unparseable or without dimensions
	ErrNegotiation = errors.New("media: negotiation error")

	// ErrUnsupportedFormat pixel or device format outside the catalog
	ErrUnsupportedFormat = errors.New("media: format not negotiated")

	// ErrMemoryAccess buffer or device surface could not be read
	ErrMemoryAccess = errors.New("media: memory access error")

	// ErrConfigurationConflict output targets configured together
	ErrConfigurationConflict = errors.New("media: conflicting output configuration")

	// ErrSinkConnect recording sink could not be opened or written
	ErrSinkConnect = errors.New("media: sink connect error")

	// ErrSessionInactive extraction requested outside an active session
	ErrSessionInactive = errors.New("media: session not active")
)

// ErrorKind defines the category of an ingestion error
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNegotiation
	KindUnsupportedFormat
	KindMemoryAccess
	KindConfigurationConflict
	KindSinkConnect
	KindSessionInactive
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindNegotiation:
		return "Negotiation"
	case KindUnsupportedFormat:
		return "UnsupportedFormat"
	case KindMemoryAccess:
		return "MemoryAccess"
	case KindConfigurationConflict:
		return "ConfigurationConflict"
	case KindSinkConnect:
		return "SinkConnect"
	case KindSessionInactive:
		return "SessionInactive"
	default:
		return "Unknown"
	}
}

// sentinel returns the errors.Is target of the kind
func (k ErrorKind) sentinel() error {
	switch k {
	case KindNegotiation:
		return ErrNegotiation
	case KindUnsupportedFormat:
		return ErrUnsupportedFormat
	case KindMemoryAccess:
		return ErrMemoryAccess
	case KindConfigurationConflict:
		return ErrConfigurationConflict
	case KindSinkConnect:
		return ErrSinkConnect
	case KindSessionInactive:
		return ErrSessionInactive
	default:
		return nil
	}
}

// Error is an ingestion error with the component and operation that raised it
type Error struct {
	Kind      ErrorKind
	Component string
	Operation string
	Message   string
	Cause     error
}

// NewError creates a new ingestion error
func NewError(kind ErrorKind, component, operation, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Component: component,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s/%s: %s: %v", e.Kind, e.Component, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s/%s: %s", e.Kind, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinel so callers can use errors.Is(err, ErrMemoryAccess)
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// KindOf returns the kind of the first *Error in the chain
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}
