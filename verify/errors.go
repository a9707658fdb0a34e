package verify

import "fmt"

// ValidationError replaces the result of a signature whose verification
// failed unexpectedly.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// SourceError is returned by VerifyAll when the signature records cannot be
// listed at all.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("unable to read signatures: %v", e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// InvalidSignatureError indicates that the cryptographic signature verification failed.
type InvalidSignatureError struct {
	Msg string
	Err error
}

func (e *InvalidSignatureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *InvalidSignatureError) Unwrap() error {
	return e.Err
}
