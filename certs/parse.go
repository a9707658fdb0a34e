// Package certs parses certificate files in the encodings users bring to a
// trust store and offers the name and identity helpers shared by the chain
// builder and the trust store.
package certs

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/digitorus/pkcs7"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Extensions recognized for trust material. ".spc" is accepted only for
// user supplied files.
var (
	Extensions     = []string{".pem", ".der", ".cer", ".crt", ".p7b", ".p7c"}
	UserExtensions = append(append([]string{}, Extensions...), ".spc")
)

// ErrNoCertificates is wrapped by ParseError when no strategy yielded a
// certificate.
var ErrNoCertificates = errors.New("no certificates found")

// ParseError reports a file or buffer that no decoding strategy accepted.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("failed to parse certificates: %v", e.Err)
	}
	return fmt.Sprintf("failed to parse certificates from %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type strategy struct {
	name  string
	parse func([]byte) ([]*x509.Certificate, error)
}

var strategies = []strategy{
	{"der", parseDER},
	{"pkcs7", parsePKCS7},
	{"pem", parsePEM},
}

// Parse decodes data as back-to-back DER certificates, then as a PKCS#7
// bundle, then as PEM blocks. The first strategy that yields at least one
// certificate wins.
func Parse(data []byte) ([]*x509.Certificate, error) {
	var errs []error
	for _, s := range strategies {
		certs, err := s.parse(data)
		if err == nil && len(certs) > 0 {
			return certs, nil
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return nil, &ParseError{Err: errors.Join(append([]error{ErrNoCertificates}, errs...)...)}
}

// ParseFile reads and parses path.
func ParseFile(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Source: path, Err: err}
	}
	certs, err := Parse(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Source = path
		}
		return nil, err
	}
	return certs, nil
}

// HasExtension reports whether name ends in one of exts, case-insensitively.
func HasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// parseDER reads consecutive DER SEQUENCEs. Trailing bytes that are not a
// certificate end the stream.
func parseDER(data []byte) ([]*x509.Certificate, error) {
	s := cryptobyte.String(data)
	var certs []*x509.Certificate
	for !s.Empty() {
		var elem cryptobyte.String
		if !s.ReadASN1Element(&elem, cbasn1.SEQUENCE) {
			break
		}
		cert, err := x509.ParseCertificate(elem)
		if err != nil {
			if len(certs) == 0 {
				return nil, err
			}
			break
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("not a DER certificate")
	}
	return certs, nil
}

func parsePKCS7(data []byte) ([]*x509.Certificate, error) {
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, err
	}
	if len(p7.Certificates) == 0 {
		return nil, errors.New("bundle holds no certificates")
	}
	return p7.Certificates, nil
}

func parsePEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE", "X509 CERTIFICATE", "TRUSTED CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, err
			}
			certs = append(certs, cert)
		case "PKCS7", "CERTIFICATE CHAIN":
			bundle, err := parsePKCS7(block.Bytes)
			if err != nil {
				return nil, err
			}
			certs = append(certs, bundle...)
		}
	}
	if len(certs) == 0 {
		return nil, errors.New("no PEM certificate blocks")
	}
	return certs, nil
}
