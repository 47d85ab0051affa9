package logvfs

import (
	"errors"
	"fmt"
)

// Kind classifies a logvfs error independent of the failing operation.
type Kind int

const (
	// KindOther covers failures that do not fit any of the named kinds below.
	KindOther Kind = iota
	KindNotFound
	KindAlreadyExists
	KindNotAFile
	KindNotADir
	KindInvalidPath
	KindCorruptLog
	KindUnsupportedVersion
	KindIo
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindNotAFile:
		return "not a file"
	case KindNotADir:
		return "not a dir"
	case KindInvalidPath:
		return "invalid path"
	case KindCorruptLog:
		return "corrupt log"
	case KindUnsupportedVersion:
		return "unsupported version"
	case KindIo:
		return "io"
	default:
		return "other"
	}
}

// Error is the structured error type logvfs returns, modeled on the standard library's
// fs.PathError/os.PathError shape: an operation, the path it concerned (when applicable), and a
// classified kind so callers can branch with errors.Is against the Kind sentinels below without
// string-matching messages.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, logvfs.ErrNotFound) work against the Kind sentinels declared below.
func (e *Error) Is(target error) bool {
	k, ok := target.(*kindSentinel)
	return ok && e.Kind == k.kind
}

// kindSentinel is an opaque error value whose only job is to carry a Kind for errors.Is comparisons.
type kindSentinel struct {
	kind Kind
}

func (k *kindSentinel) Error() string { return k.kind.String() }

// Sentinel errors for errors.Is(err, logvfs.ErrXxx) comparisons against returned *Error values.
var (
	ErrNotFound           error = &kindSentinel{KindNotFound}
	ErrAlreadyExists      error = &kindSentinel{KindAlreadyExists}
	ErrNotAFile           error = &kindSentinel{KindNotAFile}
	ErrNotADir            error = &kindSentinel{KindNotADir}
	ErrInvalidPath        error = &kindSentinel{KindInvalidPath}
	ErrCorruptLog         error = &kindSentinel{KindCorruptLog}
	ErrUnsupportedVersion error = &kindSentinel{KindUnsupportedVersion}
	ErrIo                 error = &kindSentinel{KindIo}
)

func newErr(kind Kind, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

func notFoundErr(op, path string) error {
	return newErr(KindNotFound, op, path, errors.New("no such entry"))
}

func alreadyExistsErr(op, path string) error {
	return newErr(KindAlreadyExists, op, path, errors.New("entry already exists"))
}

func notAFileErr(op, path string) error {
	return newErr(KindNotAFile, op, path, errors.New("not a file"))
}

func notADirErr(op, path string) error {
	return newErr(KindNotADir, op, path, errors.New("not a directory"))
}

func invalidPathErr(op, path, reason string) error {
	return newErr(KindInvalidPath, op, path, errors.New(reason))
}

func ioErr(op, path string, cause error) error {
	return newErr(KindIo, op, path, cause)
}

func unsupportedVersionErr(version uint32) error {
	return newErr(KindUnsupportedVersion, "mount", "", fmt.Errorf("version %d", version))
}

// corruptLogf builds a CorruptLog error from a formatted reason; used deep in the codec/framing layer
// where there is no single "path" or "op" to attach yet.
func corruptLogf(format string, args ...interface{}) error {
	return newErr(KindCorruptLog, "replay", "", fmt.Errorf(format, args...))
}
