// Package apperrors defines the error taxonomy shared across the filemanager
// packages. Errors this module's packages raise are these typed errors or
// wrap one with fmt.Errorf's %w; a few errors from the standard library and
// the AWS SDK are passed through unwrapped.
package apperrors

import (
	"database/sql"
	"errors"
	"fmt"
)

// Kind tags an Error with the taxonomy category it belongs to.
type Kind string

const (
	KindDatabase            Kind = "database"
	KindObjectStore         Kind = "object_store"
	KindMessageQueue        Kind = "message_queue"
	KindSerde               Kind = "serde"
	KindConfig              Kind = "config"
	KindCredentialGenerator Kind = "credential_generator"
	KindIO                  Kind = "io"
	KindOverflow            Kind = "overflow"
	KindConversion          Kind = "conversion"
	KindQuery               Kind = "query"
	KindInvalidQuery        Kind = "invalid_query"
	KindExpectedSomeValue   Kind = "expected_some_value"
	KindParse               Kind = "parse"
	KindMissingHostHeader   Kind = "missing_host_header"
	KindPresignedURL        Kind = "presigned_url"
	KindAPIConfiguration    Kind = "api_configuration"
	KindMigrate             Kind = "migrate"
	KindCrawl               Kind = "crawl"
	KindSecretsManager      Kind = "secrets_manager"
)

// Error is the common error type returned by this module's packages. It
// carries a Kind so callers (the HTTP collaborator, the CLI) can map it to
// the right user-visible behavior without string matching.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error that wraps an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Database wraps a database/sql error with operation context, converting
// sql.ErrNoRows to a not-found ExpectedSomeValue-style database error so
// callers have one thing to check regardless of driver.
func Database(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Wrap(KindDatabase, op+": not found", err)
	}
	return Wrap(KindDatabase, op, err)
}

// ObjectStoreCall formats an object-store error with the failing API call
// as context: "<code> for <call>: <message>".
func ObjectStoreCall(call, code, message string) *Error {
	if code == "" {
		code = "Unknown"
	}
	return New(KindObjectStore, fmt.Sprintf("%s for %s: %s", code, call, message))
}
