// Provides common klypt error definitions.
package klypt_errors

import "errors"

var (
	ErrNotFound    = errors.New("klypt: document not found")
	ErrNoDocID     = errors.New("klypt: document has no _id")
	ErrBadDocument = errors.New("klypt: document body is not valid JSON")

	ErrNoIndex        = errors.New("klypt: no index covers the queried fields")
	ErrIndexRedefined = errors.New("klypt: index name reused with a different definition")

	ErrValidation     = errors.New("klypt: required field missing or malformed")
	ErrDuplicateClass = errors.New("klypt: a class with this code already exists")
	ErrStorageFailed  = errors.New("klypt: storage operation failed")

	ErrBadQuestion      = errors.New("klypt: question needs at least two options and an answer tag in range")
	ErrAttemptSubmitted = errors.New("klypt: quiz attempt is already submitted")

	ErrClosed = errors.New("klypt: store is closed")
)
