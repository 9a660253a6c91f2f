package merge

import (
	"errors"
	"strings"
)

// Kind classifies a merge failure.
type Kind string

const (
	KindEmptyBatch      Kind = "EmptyBatch"
	KindTooManyFiles    Kind = "TooManyFiles"
	KindFileTooLarge    Kind = "FileTooLarge"
	KindUnsupportedType Kind = "UnsupportedType"
	KindEncrypted       Kind = "Encrypted"
	KindCorrupt         Kind = "Corrupt"
	KindDecodeFailure   Kind = "DecodeFailure"
	KindIOFailure       Kind = "IOFailure"
)

var (
	ErrEmptyBatch      = errors.New("empty batch")
	ErrTooManyFiles    = errors.New("too many files")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEncrypted       = errors.New("document is password protected")
	ErrCorrupt         = errors.New("corrupt document")
	ErrDecodeFailure   = errors.New("image decode failed")
	ErrIO              = errors.New("i/o failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindEmptyBatch:
		return ErrEmptyBatch
	case KindTooManyFiles:
		return ErrTooManyFiles
	case KindFileTooLarge:
		return ErrFileTooLarge
	case KindUnsupportedType:
		return ErrUnsupportedType
	case KindEncrypted:
		return ErrEncrypted
	case KindCorrupt:
		return ErrCorrupt
	case KindDecodeFailure:
		return ErrDecodeFailure
	case KindIOFailure:
		return ErrIO
	}
	return nil
}

// Retryable reports whether resubmitting the same batch may succeed. Only
// I/O failures qualify; every other kind needs a different input.
func (k Kind) Retryable() bool { return k == KindIOFailure }

// Error is the failure of one merge call. File is the declared name of the
// input that caused it, empty for batch-shape failures.
type Error struct {
	Kind   Kind
	File   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString("error processing file ")
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	if s := e.Kind.sentinel(); s != nil {
		b.WriteString(s.Error())
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind, so callers can write
// errors.Is(err, merge.ErrEncrypted).
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind
	}
	return target != nil && target == e.Kind.sentinel()
}

// KindOf returns the kind of a merge error, or "" when err did not come
// from the engine.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return ""
}
