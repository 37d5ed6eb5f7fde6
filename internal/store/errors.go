package store

import (
	"github.com/cockroachdb/errors"
)

// Error taxonomy. Errors returned by this package and by atomspace are
// marked with one of these; test with errors.Is.
var (
	// ErrValidation marks invalid input: unknown type names, empty names or
	// outgoing sets, self-shares, unknown share types.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks unknown atom ids and atoms owned by someone else.
	ErrNotFound = errors.New("not found")

	// ErrImport marks malformed import payloads and unresolved references.
	ErrImport = errors.New("import error")
)

// Validationf returns a new error marked as ErrValidation.
func Validationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// NotFoundf returns a new error marked as ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// Importf returns a new error marked as ErrImport.
func Importf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrImport)
}

// AsImportError marks err as ErrImport while keeping its existing marks.
func AsImportError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrImport)
}

// ErrorKind names the taxonomy bucket of err for wire responses.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrImport):
		return "import_failed"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
