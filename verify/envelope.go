package verify

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/digitorus/pdftrust/certs"
	"github.com/digitorus/pdftrust/revocation"
)

var (
	oidTimeStampToken = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
	oidSigningTime    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}

	errTimestampMismatch = errors.New("timestamp hash does not match")
)

// envelope is the parsed CMS structure of one signature.
type envelope struct {
	p7 *pkcs7.PKCS7
	// signer is nil when no embedded certificate matches the signer info.
	signer *x509.Certificate
	// chain is the embedded certificates ordered from the signer upwards.
	chain       []*x509.Certificate
	archival    *revocation.InfoArchival
	signingTime *time.Time

	timestamp    *timestamp.Timestamp
	timestampErr error

	// docTimestamp is set for RFC 3161 document timestamps, whose CMS
	// content is the TSTInfo rather than the signed bytes.
	docTimestamp bool
	// imprintErr reports a document timestamp that does not cover the
	// signed bytes.
	imprintErr error
}

// subFilterDocTimestamp marks a /DocTimeStamp signature dictionary.
const subFilterDocTimestamp = "ETSI.RFC3161"

// trimCMS drops the zero padding that follows a DER envelope inside a
// fixed-size /Contents placeholder. BER input is returned unchanged.
func trimCMS(b []byte) []byte {
	s := cryptobyte.String(b)
	var elem cryptobyte.String
	if s.ReadASN1Element(&elem, cbasn1.SEQUENCE) {
		return elem
	}
	return b
}

func parseEnvelope(contents, signedContent []byte, subFilter string) (*envelope, error) {
	if len(contents) == 0 {
		return nil, errors.New("signature has no contents")
	}
	raw := trimCMS(contents)
	p7, err := pkcs7.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS#7: %w", err)
	}
	if len(p7.Signers) == 0 {
		return nil, errors.New("PKCS#7 envelope has no signer")
	}

	env := &envelope{p7: p7}
	env.signer = signerCertificate(p7)
	env.chain = certs.Order(env.signer, p7.Certificates)

	if subFilter == subFilterDocTimestamp {
		env.docTimestamp = true
		env.timestamp, env.timestampErr = parseDocumentTimestamp(raw, signedContent)
		env.imprintErr = env.timestampErr
		if env.timestamp != nil {
			t := env.timestamp.Time
			env.signingTime = &t
		}
		return env, nil
	}

	p7.Content = signedContent

	var archival revocation.InfoArchival
	if err := p7.UnmarshalSignedAttribute(revocation.OIDInfoArchival, &archival); err == nil {
		env.archival = &archival
	}
	// CRLs carried in the SignedData certificate revocation list field are
	// evidence just like the archival attribute.
	for _, crl := range p7.CRLs {
		der, err := asn1.Marshal(crl)
		if err != nil {
			continue
		}
		if env.archival == nil {
			env.archival = &revocation.InfoArchival{}
		}
		_ = env.archival.AddCRL(der)
	}

	var st time.Time
	if err := p7.UnmarshalSignedAttribute(oidSigningTime, &st); err == nil {
		env.signingTime = &st
	}

	env.timestamp, env.timestampErr = parseTimestamp(p7)
	return env, nil
}

// parseDocumentTimestamp reads a document timestamp token and checks that
// its message imprint is the digest of the signed bytes.
func parseDocumentTimestamp(raw, signedContent []byte) (*timestamp.Timestamp, error) {
	ts, err := timestamp.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TSTInfo: %w", err)
	}
	if !ts.HashAlgorithm.Available() {
		return ts, fmt.Errorf("unsupported timestamp hash %v", ts.HashAlgorithm)
	}
	h := ts.HashAlgorithm.New()
	h.Write(signedContent)
	if !bytes.Equal(h.Sum(nil), ts.HashedMessage) {
		return ts, errTimestampMismatch
	}
	return ts, nil
}

// signerCertificate matches the first signer info to an embedded
// certificate by issuer and serial number.
func signerCertificate(p7 *pkcs7.PKCS7) *x509.Certificate {
	ias := p7.Signers[0].IssuerAndSerialNumber
	for _, c := range p7.Certificates {
		if c.SerialNumber.Cmp(ias.SerialNumber) == 0 && bytes.Equal(c.RawIssuer, ias.IssuerName.FullBytes) {
			return c
		}
	}
	return nil
}

// parseTimestamp returns the RFC 3161 token attached to the first signer,
// checking that it covers the signature value.
func parseTimestamp(p7 *pkcs7.PKCS7) (*timestamp.Timestamp, error) {
	s := p7.Signers[0]
	for _, attr := range s.UnauthenticatedAttributes {
		if !attr.Type.Equal(oidTimeStampToken) {
			continue
		}
		ts, err := timestamp.Parse(attr.Value.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		if !ts.HashAlgorithm.Available() {
			return ts, fmt.Errorf("unsupported timestamp hash %v", ts.HashAlgorithm)
		}
		h := ts.HashAlgorithm.New()
		h.Write(s.EncryptedDigest)
		if !bytes.Equal(h.Sum(nil), ts.HashedMessage) {
			return ts, errTimestampMismatch
		}
		return ts, nil
	}
	return nil, nil
}

// hashName names the digest algorithm of the first signer.
func (e *envelope) hashName() string {
	oid := e.p7.Signers[0].DigestAlgorithm.Algorithm
	switch {
	case oid.Equal(pkcs7.OIDDigestAlgorithmSHA1):
		return "SHA-1"
	case oid.Equal(pkcs7.OIDDigestAlgorithmSHA256):
		return "SHA-256"
	case oid.Equal(pkcs7.OIDDigestAlgorithmSHA384):
		return "SHA-384"
	case oid.Equal(pkcs7.OIDDigestAlgorithmSHA512):
		return "SHA-512"
	}
	return oid.String()
}

// issuerOf returns the embedded certificate that issued c.
func (e *envelope) issuerOf(c *x509.Certificate) *x509.Certificate {
	for _, cand := range e.chain {
		if !cand.Equal(c) && certs.IssuedBy(c, cand) {
			return cand
		}
	}
	return nil
}
