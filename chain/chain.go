// Package chain completes signer certificate chains from a set of trust
// anchors and validates the resulting path.
package chain

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/digitorus/pdftrust/certs"
	"github.com/digitorus/pdftrust/log"
)

// DefaultMaxIterations caps Complete.
const DefaultMaxIterations = 10

// Complete appends anchors to chain while the last certificate is not
// self-signed and an anchor names its issuer. It stops on a duplicate or
// after maxIterations appends. The input slice is not modified.
func Complete(ctx context.Context, chain []*x509.Certificate, anchors *certs.Set, maxIterations int) []*x509.Certificate {
	out := append([]*x509.Certificate{}, chain...)
	if len(out) == 0 {
		return out
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	for i := 0; i < maxIterations; i++ {
		last := out[len(out)-1]
		if certs.IsSelfSigned(last) {
			return out
		}
		issuer := anchors.IssuerOf(last)
		if issuer == nil || certs.Contains(out, issuer) {
			return out
		}
		out = append(out, issuer)
	}

	if last := out[len(out)-1]; !certs.IsSelfSigned(last) && anchors.IssuerOf(last) != nil {
		log.GetLogger(ctx).Warnf("chain completion stopped after %d iterations at %s", maxIterations, last.Subject)
	}
	return out
}

// FailureKind classifies why a chain could not be trusted.
type FailureKind int

const (
	NoCertificate FailureKind = iota + 1
	NoAnchors
	UntrustedSelfSigned
	MissingAnchor
	PathInvalid
)

func (k FailureKind) String() string {
	switch k {
	case NoCertificate:
		return "no certificate"
	case NoAnchors:
		return "no anchors"
	case UntrustedSelfSigned:
		return "untrusted self-signed"
	case MissingAnchor:
		return "missing anchor"
	case PathInvalid:
		return "path invalid"
	}
	return "unknown"
}

// ValidationFailure is the error returned by Validate.
type ValidationFailure struct {
	Kind FailureKind
	// Index of the offending certificate in the completed chain, or -1.
	Index int
	// Subject is the common name of the offending certificate.
	Subject string
	// Issuer names the anchor that was missing.
	Issuer string
	Reason string
	Err    error
}

func (f *ValidationFailure) Error() string {
	switch f.Kind {
	case MissingAnchor:
		return fmt.Sprintf("issuer %s not found in trust store", f.Issuer)
	case PathInvalid:
		return fmt.Sprintf("certificate %d (%s) is invalid: %s", f.Index, f.Subject, f.Reason)
	}
	return f.Kind.String()
}

func (f *ValidationFailure) Unwrap() error {
	return f.Err
}

// Message is the text shown to the user. Reason stays out of it and is
// only reported by Error.
func (f *ValidationFailure) Message() string {
	switch f.Kind {
	case NoCertificate:
		return "No certificate found"
	case NoAnchors:
		return "No trusted certificates available"
	case UntrustedSelfSigned:
		return "This certificate is not trusted"
	case MissingAnchor:
		return fmt.Sprintf("Root certificate not found in trust store. Add '%s' to Trust Manager.", f.Issuer)
	case PathInvalid:
		if f.Subject == "" {
			return "Certificate chain is not valid"
		}
		var invalid x509.CertificateInvalidError
		if errors.As(f.Err, &invalid) && invalid.Reason == x509.Expired {
			return fmt.Sprintf("Certificate '%s' has expired or is not yet valid", f.Subject)
		}
		return fmt.Sprintf("Certificate '%s' in the chain is not valid", f.Subject)
	}
	return "Certificate issuer is not trusted"
}

// Path is a successful validation.
type Path struct {
	Anchor *x509.Certificate
	// Chain is the completed chain, signer first.
	Chain []*x509.Certificate
	// Direct is set when the signer itself is an anchor.
	Direct bool
}

// Validator checks signer chains against a snapshot of anchors.
type Validator struct {
	Anchors       *certs.Set
	MaxIterations int
	// CurrentTime is the validation instant; zero means now.
	CurrentTime time.Time
}

// Validate returns the trusted path for chain, whose first element is the
// signer. Every error is a *ValidationFailure. Revocation is not checked.
func (v *Validator) Validate(ctx context.Context, chain []*x509.Certificate) (*Path, error) {
	logger := log.GetLogger(ctx)

	if len(chain) == 0 || chain[0] == nil {
		return nil, &ValidationFailure{Kind: NoCertificate, Index: -1}
	}
	if v.Anchors.Len() == 0 {
		return nil, &ValidationFailure{Kind: NoAnchors, Index: -1}
	}

	signer := chain[0]
	if v.Anchors.Contains(signer) {
		logger.Debugf("signer %s is directly trusted", signer.Subject)
		return &Path{Anchor: signer, Chain: []*x509.Certificate{signer}, Direct: true}, nil
	}
	if certs.IsSelfSigned(signer) {
		return nil, &ValidationFailure{Kind: UntrustedSelfSigned, Index: 0, Subject: certs.CommonName(signer.Subject)}
	}

	completed := Complete(ctx, chain, v.Anchors, v.MaxIterations)

	intermediates := x509.NewCertPool()
	for _, c := range completed[1:] {
		intermediates.AddCert(c)
	}
	at := v.CurrentTime
	if at.IsZero() {
		at = time.Now()
	}

	paths, err := signer.Verify(x509.VerifyOptions{
		Roots:         v.Anchors.Pool(),
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, translate(err, completed)
	}

	path := paths[0]
	return &Path{Anchor: path[len(path)-1], Chain: completed}, nil
}

func indexOf(chain []*x509.Certificate, cert *x509.Certificate) int {
	if cert == nil {
		return -1
	}
	for i, c := range chain {
		if c.Equal(cert) {
			return i
		}
	}
	return -1
}

func translate(err error, completed []*x509.Certificate) *ValidationFailure {
	var unknown x509.UnknownAuthorityError
	if errors.As(err, &unknown) {
		// The anchor missing is the issuer of the top of the completed chain.
		top := completed[len(completed)-1]
		return &ValidationFailure{
			Kind:    MissingAnchor,
			Index:   len(completed) - 1,
			Subject: certs.CommonName(top.Subject),
			Issuer:  certs.CommonName(top.Issuer),
			Err:     err,
		}
	}

	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		f := &ValidationFailure{Kind: PathInvalid, Index: indexOf(completed, invalid.Cert), Reason: invalid.Error(), Err: err}
		if invalid.Cert != nil {
			f.Subject = certs.CommonName(invalid.Cert.Subject)
		}
		return f
	}

	return &ValidationFailure{Kind: PathInvalid, Index: -1, Reason: err.Error(), Err: err}
}
