package certs

import (
	"crypto/x509"
)

// Set is an immutable collection of certificates keyed by fingerprint.
// Build one with NewSet; share it freely between goroutines.
type Set struct {
	certs     []*x509.Certificate
	byPrint   map[string]*x509.Certificate
	bySubject map[string][]*x509.Certificate
}

// NewSet returns a Set holding the distinct certificates of all lists, in
// first-seen order.
func NewSet(lists ...[]*x509.Certificate) *Set {
	s := &Set{
		byPrint:   make(map[string]*x509.Certificate),
		bySubject: make(map[string][]*x509.Certificate),
	}
	for _, list := range lists {
		for _, c := range list {
			if c == nil {
				continue
			}
			fp := Fingerprint(c)
			if _, ok := s.byPrint[fp]; ok {
				continue
			}
			s.byPrint[fp] = c
			s.bySubject[string(c.RawSubject)] = append(s.bySubject[string(c.RawSubject)], c)
			s.certs = append(s.certs, c)
		}
	}
	return s
}

// Len returns the number of distinct certificates.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.certs)
}

// Contains reports whether cert is a member.
func (s *Set) Contains(cert *x509.Certificate) bool {
	if s == nil || cert == nil {
		return false
	}
	_, ok := s.byPrint[Fingerprint(cert)]
	return ok
}

// IssuerOf returns the first member whose subject is cert's issuer.
func (s *Set) IssuerOf(cert *x509.Certificate) *x509.Certificate {
	if s == nil {
		return nil
	}
	if found := s.bySubject[string(cert.RawIssuer)]; len(found) > 0 {
		return found[0]
	}
	return nil
}

// All returns a copy of the members.
func (s *Set) All() []*x509.Certificate {
	if s == nil {
		return nil
	}
	return append([]*x509.Certificate{}, s.certs...)
}

// Pool returns the members as an x509.CertPool.
func (s *Set) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	if s == nil {
		return pool
	}
	for _, c := range s.certs {
		pool.AddCert(c)
	}
	return pool
}
