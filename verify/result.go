package verify

import (
	"crypto/x509"
	"time"

	"github.com/digitorus/pdftrust/certs"
	"github.com/digitorus/pdftrust/common"
	"github.com/digitorus/pdftrust/revocation"
)

// Status is the overall verdict shown for a signature.
type Status int

const (
	StatusValid Status = iota
	StatusUnknown
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "VALID"
	case StatusUnknown:
		return "UNKNOWN"
	case StatusInvalid:
		return "INVALID"
	}
	return "UNKNOWN"
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CertificateInfo is the display snapshot of one certificate.
type CertificateInfo struct {
	Subject            string    `json:"subject"`
	Issuer             string    `json:"issuer"`
	SerialNumber       string    `json:"serial_number"`
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	Fingerprint        string    `json:"sha256_fingerprint"`
}

func newCertificateInfo(c *x509.Certificate) CertificateInfo {
	return CertificateInfo{
		Subject:            c.Subject.String(),
		Issuer:             c.Issuer.String(),
		SerialNumber:       c.SerialNumber.String(),
		NotBefore:          c.NotBefore,
		NotAfter:           c.NotAfter,
		SignatureAlgorithm: c.SignatureAlgorithm.String(),
		Fingerprint:        certs.Fingerprint(c),
	}
}

// Result is the outcome of verifying one signature. It is produced by the
// verifier and not modified afterwards; OverallStatus and StatusMessage
// derive only from the stored fields, so a decoded Result reports the same
// verdict as the original.
type Result struct {
	FieldName   string     `json:"field_name"`
	SignerName  string     `json:"signer_name"`
	SigningTime *time.Time `json:"signing_time,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Location    string     `json:"location,omitempty"`
	ContactInfo string     `json:"contact_info,omitempty"`

	DocumentIntact        bool              `json:"document_intact"`
	SignatureValid        bool              `json:"signature_valid"`
	CertificateValid      bool              `json:"certificate_valid"`
	CertificateTrusted    bool              `json:"certificate_trusted"`
	CertificateRevoked    bool              `json:"certificate_revoked"`
	TimestampValid        bool              `json:"timestamp_valid"`
	HasLongTermValidation bool              `json:"has_long_term_validation"`
	RevocationStatus      revocation.Status `json:"revocation_status"`

	CertificationLevel  common.CertificationLevel `json:"certification_level"`
	Revision            int                       `json:"revision"`
	TotalRevisions      int                       `json:"total_revisions"`
	CoversWholeDocument bool                      `json:"covers_whole_document"`

	SignerCertificate  *CertificateInfo  `json:"signer_certificate,omitempty"`
	Chain              []CertificateInfo `json:"chain,omitempty"`
	TrustAnchor        string            `json:"trust_anchor,omitempty"`
	DirectTrust        bool              `json:"direct_trust"`
	HashAlgorithm      string            `json:"hash_algorithm,omitempty"`
	TimestampTime      *time.Time        `json:"timestamp_time,omitempty"`
	TimestampAuthority string            `json:"timestamp_authority,omitempty"`
	DocumentTimestamp  bool              `json:"document_timestamp"`

	Info     []string `json:"info,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`

	// Err is the typed cause behind a failed cryptographic check
	// (*InvalidSignatureError) or an aborted verification
	// (*ValidationError). It is not serialized.
	Err error `json:"-"`
}

// IsCertification reports whether the signature certifies the document.
func (r *Result) IsCertification() bool {
	return r.CertificationLevel.IsCertification()
}

// OverallStatus evaluates the stored checks in fixed priority.
func (r *Result) OverallStatus() Status {
	switch {
	case !r.DocumentIntact:
		return StatusInvalid
	case !r.SignatureValid:
		return StatusInvalid
	case r.CertificateRevoked:
		return StatusInvalid
	case r.RevocationStatus.State == revocation.NotChecked, r.RevocationStatus.State == revocation.Unknown:
		return StatusUnknown
	case !r.CertificateValid:
		return StatusUnknown
	case !r.CertificateTrusted:
		return StatusUnknown
	}
	return StatusValid
}

// StatusMessage explains OverallStatus, naming the most severe reason
// first.
func (r *Result) StatusMessage() string {
	switch r.OverallStatus() {
	case StatusValid:
		return "Signed and all signatures are valid"
	case StatusUnknown:
		return "Signed but identity could not be verified"
	}
	switch {
	case !r.DocumentIntact:
		return "Document has been modified after signing"
	case !r.SignatureValid:
		return "Signature is invalid or corrupted"
	case r.CertificateRevoked:
		return "Certificate has been revoked"
	case !r.CertificateValid:
		return "Certificate has expired or is not yet valid"
	}
	return "Signature verification failed"
}

// resultBuilder accumulates checks for one signature. Only build hands the
// Result out.
type resultBuilder struct {
	r Result
}

func newResultBuilder(rec *common.SignatureRecord) *resultBuilder {
	b := &resultBuilder{r: Result{
		FieldName:           rec.FieldName,
		SignerName:          rec.Name,
		SigningTime:         rec.SigningTime,
		Reason:              rec.Reason,
		Location:            rec.Location,
		ContactInfo:         rec.ContactInfo,
		CertificationLevel:  rec.CertificationLevel,
		Revision:            rec.Revision,
		TotalRevisions:      rec.TotalRevisions,
		CoversWholeDocument: rec.CoversWholeDocument,
	}}
	return b
}

func (b *resultBuilder) info(msg string) { b.r.Info = append(b.r.Info, msg) }
func (b *resultBuilder) warn(msg string) { b.r.Warnings = append(b.r.Warnings, msg) }
func (b *resultBuilder) fail(msg string) { b.r.Errors = append(b.r.Errors, msg) }

func (b *resultBuilder) build() *Result {
	r := b.r
	return &r
}

// invalidate marks an already built result as no longer intact. It is only
// used by the certification rules before results leave the verifier.
func invalidate(r *Result, msg string) {
	r.DocumentIntact = false
	r.Errors = append(r.Errors, msg)
}
