package restx

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

var (
	// ErrAborted means the record was deliberately not posted.
	ErrAborted = errors.New("post aborted")

	// ErrDryRun is returned by processors running with skip_upload set.
	ErrDryRun = errors.New("upload skipped")
)

// BadLoginError is returned when the server rejects the credentials.
type BadLoginError struct {
	Status int
}

func (e *BadLoginError) Error() string {
	return fmt.Sprintf("bad login: http status %d", e.Status)
}

// CertificateError wraps a TLS certificate verification failure.
type CertificateError struct {
	Err error
}

func (e *CertificateError) Error() string {
	return "certificate error: " + e.Err.Error()
}

func (e *CertificateError) Unwrap() error { return e.Err }

// FailedPostError is returned once every attempt of a post has failed.
type FailedPostError struct {
	Tries int
	Err   error
}

func (e *FailedPostError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed upload after %d tries", e.Tries)
	}
	return fmt.Sprintf("failed upload after %d tries: %v", e.Tries, e.Err)
}

func (e *FailedPostError) Unwrap() error { return e.Err }

func isCertificateError(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}
