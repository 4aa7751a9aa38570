// Package errors defines the failure taxonomy of the checkpoint engine.
//
// Every failure the engine can produce falls into one of three categories:
//   - Degraded: recovered locally by substituting an empty value
//     (screen, save state or memory capture failures)
//   - FailClosed: the operation returns nothing and leaves no partial state
//     (blob writes, integrity checks on load, missing savers)
//   - Configuration: the caller must fix its setup (unsupported storage scheme)
package errors

import (
	"errors"
	"fmt"
)

// Category represents how a failure is handled by the engine.
type Category int

const (
	// CategoryFailClosed indicates the operation produced nothing.
	CategoryFailClosed Category = iota

	// CategoryDegraded indicates the failure was absorbed and the result
	// was built with an empty substitute.
	CategoryDegraded

	// CategoryConfiguration indicates the failure comes from caller setup.
	CategoryConfiguration
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFailClosed:
		return "fail_closed"
	case CategoryDegraded:
		return "degraded"
	case CategoryConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Kind identifies a specific failure mode.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnsupportedScheme
	KindBlobWrite
	KindBlobRead
	KindChecksumMismatch
	KindCapture
	KindNoSaver
	KindDanglingEntry
	KindCatalog
	KindInvalidArgument
)

// Sentinel errors, one per Kind. An *Error matches the sentinel of its Kind
// with errors.Is.
var (
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
	ErrBlobWrite         = errors.New("blob write failed")
	ErrBlobRead          = errors.New("blob read failed")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrCapture           = errors.New("capability capture failed")
	ErrNoSaver           = errors.New("no saver for game type")
	ErrDanglingEntry     = errors.New("catalog entry references missing blob")
	ErrCatalog           = errors.New("catalog operation failed")
	ErrInvalidArgument   = errors.New("invalid argument")
)

var kindSentinels = map[Kind]error{
	KindUnsupportedScheme: ErrUnsupportedScheme,
	KindBlobWrite:         ErrBlobWrite,
	KindBlobRead:          ErrBlobRead,
	KindChecksumMismatch:  ErrChecksumMismatch,
	KindCapture:           ErrCapture,
	KindNoSaver:           ErrNoSaver,
	KindDanglingEntry:     ErrDanglingEntry,
	KindCatalog:           ErrCatalog,
	KindInvalidArgument:   ErrInvalidArgument,
}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUnsupportedScheme:
		return "unsupported_scheme"
	case KindBlobWrite:
		return "blob_write"
	case KindBlobRead:
		return "blob_read"
	case KindChecksumMismatch:
		return "checksum_mismatch"
	case KindCapture:
		return "capture"
	case KindNoSaver:
		return "no_saver"
	case KindDanglingEntry:
		return "dangling_entry"
	case KindCatalog:
		return "catalog"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Error wraps a failure with its kind and the key or address involved.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op is the operation that failed ("put", "get", "resolve", "save", ...).
	Op string

	// Key is the blob key, checkpoint id or address involved, if any.
	Key string

	// Err is the underlying error. May be nil.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := kindSentinels[e.Kind]
	if msg == nil {
		msg = errors.New("unknown failure")
	}
	switch {
	case e.Key != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Key, msg, e.Err)
	case e.Key != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, msg, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, msg)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// New creates an *Error.
func New(kind Kind, op, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or the kind
// of a bare sentinel. Returns KindUnknown otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, s := range kindSentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindUnknown
}

// Categorize determines how a failure is handled.
func Categorize(err error) Category {
	switch KindOf(err) {
	case KindCapture:
		return CategoryDegraded
	case KindUnsupportedScheme, KindInvalidArgument:
		return CategoryConfiguration
	default:
		// Unknown failures fail closed.
		return CategoryFailClosed
	}
}

// IsDegraded reports whether the failure is absorbed by degrade-and-continue.
func IsDegraded(err error) bool {
	return Categorize(err) == CategoryDegraded
}
