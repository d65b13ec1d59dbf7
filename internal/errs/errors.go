// Package errs provides the error taxonomy shared by every database provider.
//
// Backends translate native driver errors into *errs.Error before returning
// them, either explicitly with the constructors below or through Classify.
// Callers branch on the error Kind (or the Is* predicates) and never parse
// driver messages themselves.
//
// Usage:
//
//	// In a backend, classify whatever the driver returned:
//	return errs.Map(err, "postgres", sql)
//
//	// In a handler, branch on the kind:
//	if errs.IsAuthentication(err) {
//	    http.Error(w, "unauthorized", http.StatusUnauthorized)
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind categorises a database error without exposing driver-specific codes.
type Kind int

const (
	KindDatabase       Kind = iota // unclassified database failure
	KindConfig                     // missing or invalid configuration
	KindConnection                 // transport-level failure
	KindAuthentication             // credentials rejected
	KindPoolExhausted              // no connection available
	KindQuery                      // syntax or semantic failure
	KindTimeout                    // deadline exceeded
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnection:
		return "connection"
	case KindAuthentication:
		return "authentication"
	case KindPoolExhausted:
		return "pool_exhausted"
	case KindQuery:
		return "query"
	case KindTimeout:
		return "timeout"
	default:
		return "database"
	}
}

// MaxQueryLength caps the query text kept on an error for diagnostics.
const MaxQueryLength = 200

// Error is the single classified error type returned by all providers.
type Error struct {
	Kind     Kind
	Provider string // originating provider type, e.g. "postgres"
	Code     string // native code (SQLSTATE, MySQL error number, …) when known
	Message  string
	Query    string // truncated query text

	Host string // KindConnection only
	Port int    // KindConnection only

	Position int // KindQuery only; 1-based character offset, 0 when unknown

	Timeout time.Duration // KindTimeout only

	Cause error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(e.Kind.String())
	if e.Provider != "" {
		sb.WriteString("/")
		sb.WriteString(e.Provider)
	}
	sb.WriteString("] ")
	sb.WriteString(e.Message)
	if e.Code != "" {
		fmt.Fprintf(&sb, " (code %s)", e.Code)
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind Kind, provider, msg string) *Error {
	return &Error{Kind: kind, Provider: provider, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind Kind, provider, msg string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: msg, Cause: cause}
}

// Config reports missing or invalid configuration.
func Config(provider, msg string) *Error {
	return New(KindConfig, provider, msg)
}

// Connection reports a transport failure against host:port.
func Connection(provider, host string, port int, cause error) *Error {
	msg := "connection failed"
	if host != "" {
		msg = fmt.Sprintf("connection to %s:%d failed", host, port)
	}
	return &Error{Kind: KindConnection, Provider: provider, Message: msg, Host: host, Port: port, Cause: cause}
}

// Authentication reports rejected credentials.
func Authentication(provider, msg string, cause error) *Error {
	return Wrap(KindAuthentication, provider, msg, cause)
}

// PoolExhausted reports that no pooled connection was available.
func PoolExhausted(provider, msg string, cause error) *Error {
	return Wrap(KindPoolExhausted, provider, msg, cause)
}

// Query reports a syntax or semantic failure of query.
func Query(provider, msg, query string, cause error) *Error {
	return Wrap(KindQuery, provider, msg, cause).WithQuery(query)
}

// Timeout reports that operation exceeded timeout.
func Timeout(provider, operation string, timeout time.Duration) *Error {
	return &Error{
		Kind:     KindTimeout,
		Provider: provider,
		Message:  fmt.Sprintf("%s timed out after %s", operation, timeout),
		Timeout:  timeout,
	}
}

// WithCode attaches a native error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithQuery attaches the (truncated) query text.
func (e *Error) WithQuery(query string) *Error {
	e.Query = truncate(query)
	return e
}

// WithPosition attaches the character offset of a query error.
func (e *Error) WithPosition(pos int) *Error {
	e.Position = pos
	return e
}

// WithHost records the endpoint a connection error was raised for.
func (e *Error) WithHost(host string, port int) *Error {
	e.Host = host
	e.Port = port
	return e
}

func truncate(q string) string {
	q = strings.TrimSpace(q)
	if len(q) <= MaxQueryLength {
		return q
	}
	return q[:MaxQueryLength] + "..."
}

// --- Predicates ---

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf extracts the Kind from any error in the chain.
// Errors outside the taxonomy report KindDatabase.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindDatabase
}

func isKind(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return isKind(err, KindConfig) }

// IsConnection reports whether err is a transport failure.
func IsConnection(err error) bool { return isKind(err, KindConnection) }

// IsAuthentication reports whether err is a credential rejection.
func IsAuthentication(err error) bool { return isKind(err, KindAuthentication) }

// IsPoolExhausted reports whether err means no connection was available.
func IsPoolExhausted(err error) bool { return isKind(err, KindPoolExhausted) }

// IsQuery reports whether err is a syntax or semantic query failure.
func IsQuery(err error) bool { return isKind(err, KindQuery) }

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool { return isKind(err, KindTimeout) }

// ValidationError is a plain input validation failure (bad pool config,
// missing maintenance target, …). It is deliberately not an *Error: it is
// raised before any database is involved.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return "validation failed: " + e.Reason
}

// Invalid creates a *ValidationError.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
