package importer

import "errors"

// Sentinel errors returned by the engine. The web layer maps these onto HTTP
// status codes; anything not matching one of them is treated as an unexpected
// processing fault (the chunk transaction has been rolled back and the call is
// safe to retry).
var (
	// ErrNotFound means the referenced import does not exist.
	ErrNotFound = errors.New("import not found")

	// ErrInvalidState means the import is finished or failed and can no
	// longer be run.
	ErrInvalidState = errors.New("import is in a terminal status")

	// ErrMalformedHeader means the source file's header row is not the
	// expected sku,name,price,stock. The call leaves the job untouched; the
	// source file has to be fixed and re-uploaded.
	ErrMalformedHeader = errors.New("invalid file format")

	// ErrConflict means another run holds the import or committed a cursor
	// advance underneath this call. The caller should retry.
	ErrConflict = errors.New("import is already being processed")

	// ErrBusy means all run slots are occupied. The caller should retry
	// after a short delay.
	ErrBusy = errors.New("too many concurrent import runs, please try again later")
)
