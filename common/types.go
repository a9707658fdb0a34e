// Package common holds the types exchanged between the document reader and
// the verifier.
package common

import (
	"crypto/x509"
	"fmt"
	"time"
)

// CertificationLevel is the DocMDP permission recorded by a certifying
// signature.
type CertificationLevel int

const (
	NotCertified CertificationLevel = iota
	NoChanges
	FormFilling
	FormFillingAndAnnotation
)

// CertificationLevelFromP maps a DocMDP /P value to a level. Values outside
// 1 to 3 fall back to FormFilling, the PDF default.
func CertificationLevelFromP(p int64) CertificationLevel {
	switch p {
	case 1:
		return NoChanges
	case 2:
		return FormFilling
	case 3:
		return FormFillingAndAnnotation
	}
	return FormFilling
}

func (l CertificationLevel) String() string {
	switch l {
	case NotCertified:
		return "Not certified"
	case NoChanges:
		return "No changes allowed"
	case FormFilling:
		return "Form filling allowed"
	case FormFillingAndAnnotation:
		return "Form filling and annotations allowed"
	}
	return "Unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (l CertificationLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *CertificationLevel) UnmarshalText(b []byte) error {
	for _, c := range []CertificationLevel{NotCertified, NoChanges, FormFilling, FormFillingAndAnnotation} {
		if c.String() == string(b) {
			*l = c
			return nil
		}
	}
	return fmt.Errorf("unknown certification level %q", b)
}

// IsCertification reports whether the level belongs to a certifying
// signature.
func (l CertificationLevel) IsCertification() bool {
	return l != NotCertified
}

// SignatureRecord is one signature field as read from a document.
type SignatureRecord struct {
	FieldName   string     `json:"field_name"`
	Name        string     `json:"name"`
	Reason      string     `json:"reason"`
	Location    string     `json:"location"`
	ContactInfo string     `json:"contact_info"`
	SigningTime *time.Time `json:"signing_time,omitempty"`
	Filter      string     `json:"filter"`
	SubFilter   string     `json:"sub_filter"`

	// ByteRange pairs of offset and length covered by the signature.
	ByteRange []int64 `json:"byte_range"`
	// Contents is the raw CMS envelope.
	Contents []byte `json:"-"`
	// SignedContent is the concatenation of the byte ranges.
	SignedContent []byte `json:"-"`

	Revision            int  `json:"revision"`
	TotalRevisions      int  `json:"total_revisions"`
	CoversWholeDocument bool `json:"covers_whole_document"`

	CertificationLevel CertificationLevel `json:"certification_level"`
}

// SignedEnd is the offset one past the last byte covered.
func (r *SignatureRecord) SignedEnd() int64 {
	var end int64
	for i := 0; i+1 < len(r.ByteRange); i += 2 {
		if e := r.ByteRange[i] + r.ByteRange[i+1]; e > end {
			end = e
		}
	}
	return end
}

// SecurityStore answers whether a document security store holds
// revocation evidence for a certificate.
type SecurityStore interface {
	HasRevocationEvidenceFor(cert *x509.Certificate) bool
}

// Source lists the signature records of one document, in document order.
type Source interface {
	ListSignatures() ([]SignatureRecord, error)
}
