package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure of the packaging or extraction pipeline
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindInvalidInput: source is not a directory, archive not found
	KindInvalidInput
	// KindIoFailure: any read/write/create/rename failure
	KindIoFailure
	// KindCompressionFailure: encoder/decoder frame errors
	KindCompressionFailure
	// KindContainerFailure: malformed tar entries, unsafe entry paths
	KindContainerFailure
)

var (
	// Pipeline error kinds, matched by errors.Is against any *ArchiveError
	ErrInvalidInput       = stderrors.New("invalid input")
	ErrIoFailure          = stderrors.New("i/o failure")
	ErrCompressionFailure = stderrors.New("compression failure")
	ErrContainerFailure   = stderrors.New("container failure")

	// Input errors
	ErrNotDirectory = stderrors.New("not a directory")
	ErrNotFile      = stderrors.New("not a regular file")

	// Compression errors
	ErrUnsupportedCompression = stderrors.New("unsupported compression format")
	ErrUnknownFormat          = stderrors.New("unrecognized compression frame")
	ErrTruncated              = stderrors.New("archive ends before the end-of-archive marker")

	// Container errors
	ErrUnsafePath      = stderrors.New("entry path escapes destination")
	ErrSymlinkInPath   = stderrors.New("entry path traverses a symlink")
	ErrUnsupportedType = stderrors.New("unsupported entry type")

	// Configuration errors
	ErrConfigInvalid   = stderrors.New("invalid configuration")
	ErrWorkflowInvalid = stderrors.New("invalid workflow")
)

var kindSentinels = map[Kind]error{
	KindInvalidInput:       ErrInvalidInput,
	KindIoFailure:          ErrIoFailure,
	KindCompressionFailure: ErrCompressionFailure,
	KindContainerFailure:   ErrContainerFailure,
}

// String returns the human readable kind name
func (k Kind) String() string {
	if err, ok := kindSentinels[k]; ok {
		return err.Error()
	}
	return "unknown failure"
}

// ArchiveError is the single error type surfaced by the pipeline. It carries
// the operation, the path it acted on and the underlying cause.
type ArchiveError struct {
	Op   string
	Path string
	Kind Kind
	Err  error
}

func (e *ArchiveError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err == nil {
		return msg + ": " + e.Kind.String()
	}
	return fmt.Sprintf("%s: %s: %v", msg, e.Kind, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind
func (e *ArchiveError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// New builds an *ArchiveError
func New(op, path string, kind Kind, err error) *ArchiveError {
	return &ArchiveError{Op: op, Path: path, Kind: kind, Err: err}
}

// KindOf returns the kind of the first *ArchiveError in err's chain
func KindOf(err error) Kind {
	var ae *ArchiveError
	if stderrors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Is, As and Unwrap forward to the standard library so callers importing this
// package under its own name do not need both imports.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Unwrap(err error) error { return stderrors.Unwrap(err) }
