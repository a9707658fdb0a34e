// Package revocation decides whether a signing certificate has been
// revoked, using evidence embedded in the signature before asking an OCSP
// responder over the network.
package revocation

import (
	"crypto/x509"
	"encoding/asn1"
	"math/big"
	"time"

	"golang.org/x/crypto/ocsp"
)

// OIDInfoArchival identifies the adbe-revocationInfoArchival signed
// attribute.
var OIDInfoArchival = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}

// InfoArchival is the revocation evidence a signer bundled inside the CMS
// envelope.
type InfoArchival struct {
	CRL   CRL   `asn1:"tag:0,optional,explicit"`
	OCSP  OCSP  `asn1:"tag:1,optional,explicit"`
	Other Other `asn1:"tag:2,optional,explicit"`
}

// AddCRL embeds the raw bytes of a CRL.
func (r *InfoArchival) AddCRL(b []byte) error {
	r.CRL = append(r.CRL, asn1.RawValue{FullBytes: b})
	return nil
}

// AddOCSP embeds the raw bytes of an OCSP response.
func (r *InfoArchival) AddOCSP(b []byte) error {
	r.OCSP = append(r.OCSP, asn1.RawValue{FullBytes: b})
	return nil
}

// IsEmpty reports whether no CRL or OCSP response is embedded.
func (r *InfoArchival) IsEmpty() bool {
	return r == nil || (len(r.CRL) == 0 && len(r.OCSP) == 0)
}

// embeddedOCSP looks for a response about c. A nil issuer skips signature
// verification of the response.
func (r *InfoArchival) embeddedOCSP(c, issuer *x509.Certificate) (*ocsp.Response, bool) {
	for _, raw := range r.OCSP {
		var resp *ocsp.Response
		var err error
		if issuer != nil {
			resp, err = ocsp.ParseResponseForCert(raw.FullBytes, c, issuer)
		} else {
			resp, err = ocsp.ParseResponse(raw.FullBytes, nil)
		}
		if err != nil || resp.SerialNumber == nil || resp.SerialNumber.Cmp(c.SerialNumber) != 0 {
			continue
		}
		return resp, true
	}
	return nil, false
}

// revokedByCRL returns the revocation time when an embedded CRL from
// c's issuer lists c.
func (r *InfoArchival) revokedByCRL(c, issuer *x509.Certificate) (*time.Time, bool) {
	for _, raw := range r.CRL {
		crl, err := x509.ParseRevocationList(raw.FullBytes)
		if err != nil {
			continue
		}
		if issuer != nil && crl.CheckSignatureFrom(issuer) != nil {
			continue
		}
		if at, ok := findSerial(crl, c.SerialNumber); ok {
			return at, true
		}
	}
	return nil, false
}

func findSerial(crl *x509.RevocationList, serial *big.Int) (*time.Time, bool) {
	for _, rc := range crl.RevokedCertificateEntries {
		if rc.SerialNumber.Cmp(serial) == 0 {
			at := rc.RevocationTime
			return &at, true
		}
	}
	return nil, false
}

// CRL contains the raw bytes of CRLs, parseable with
// x509.ParseRevocationList.
type CRL []asn1.RawValue

// OCSP contains the raw bytes of OCSP responses, parseable with
// ocsp.ParseResponse.
type OCSP []asn1.RawValue

// Other is the ASN.1 OtherRevInfo.
type Other struct {
	Type  asn1.ObjectIdentifier
	Value []byte
}
