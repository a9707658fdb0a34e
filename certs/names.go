package certs

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"

	sha256 "github.com/minio/sha256-simd"
)

// CommonName returns the CN of name, or its full string form when the CN
// is empty.
func CommonName(name pkix.Name) string {
	if name.CommonName != "" {
		return name.CommonName
	}
	return name.String()
}

// SameName compares two DER encoded distinguished names structurally.
func SameName(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// IsSelfSigned reports whether cert names itself as issuer.
func IsSelfSigned(cert *x509.Certificate) bool {
	return SameName(cert.RawSubject, cert.RawIssuer)
}

// IssuedBy reports whether child names parent's subject as its issuer.
func IssuedBy(child, parent *x509.Certificate) bool {
	return SameName(child.RawIssuer, parent.RawSubject)
}

// Fingerprint is the hex SHA-256 of the certificate encoding. Two
// certificates with equal fingerprints are the same anchor.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// Contains reports whether list holds a certificate structurally equal to
// cert.
func Contains(list []*x509.Certificate, cert *x509.Certificate) bool {
	for _, c := range list {
		if c.Equal(cert) {
			return true
		}
	}
	return false
}

// Order arranges pool into a path starting at signer and following issuer
// links. Certificates that are not on the path keep their relative order
// after it.
func Order(signer *x509.Certificate, pool []*x509.Certificate) []*x509.Certificate {
	if signer == nil {
		return append([]*x509.Certificate{}, pool...)
	}
	ordered := []*x509.Certificate{signer}
	used := make([]bool, len(pool))
	for i, c := range pool {
		if c.Equal(signer) {
			used[i] = true
		}
	}
	current := signer
	for !IsSelfSigned(current) {
		next := -1
		for i, c := range pool {
			if !used[i] && IssuedBy(current, c) {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		used[next] = true
		current = pool[next]
		ordered = append(ordered, current)
	}
	for i, c := range pool {
		if !used[i] {
			ordered = append(ordered, c)
		}
	}
	return ordered
}
