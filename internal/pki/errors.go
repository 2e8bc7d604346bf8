package pki

import "errors"

// Error kinds returned by issuance and encoding operations. Callers match them
// with errors.Is; the underlying cause is wrapped alongside.
var (
	// ErrSigning is returned when key generation, CSR creation or certificate signing fails.
	ErrSigning = errors.New("signing failed")

	// ErrDecode is returned when input is not a valid PEM or DER certificate.
	ErrDecode = errors.New("decode failed")

	// ErrIO is returned when a file cannot be read or written.
	ErrIO = errors.New("io failed")

	// ErrConfig is returned when a policy or extension document is missing or malformed.
	ErrConfig = errors.New("invalid configuration")
)
