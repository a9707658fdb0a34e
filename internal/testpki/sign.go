package testpki

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
)

var (
	oidRevocationInfoArchival = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}
	oidTimeStampToken         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
)

// SignOptions controls the CMS envelope produced by SignDetached.
type SignOptions struct {
	// Chain is embedded after the signer certificate.
	Chain []*x509.Certificate
	// RevocationInfo is embedded as the adbe-revocationInfoArchival signed
	// attribute when non-nil.
	RevocationInfo interface{}
	// Timestamp attaches an RFC 3161 token issued by a throwaway TSA.
	Timestamp bool
	// CorruptTimestamp attaches a token whose imprint does not match.
	CorruptTimestamp bool
	// CRLs are DER CRLs placed in the SignedData crls field.
	CRLs [][]byte
}

// RevocationArchival mirrors the adbe-revocationInfoArchival attribute.
type RevocationArchival struct {
	CRL   []asn1.RawValue `asn1:"tag:0,optional,explicit"`
	OCSP  []asn1.RawValue `asn1:"tag:1,optional,explicit"`
	Other []asn1.RawValue `asn1:"tag:2,optional,explicit"`
}

// Archival wraps DER OCSP responses and CRLs for SignOptions.RevocationInfo.
func Archival(ocspResponses, crls [][]byte) RevocationArchival {
	var ra RevocationArchival
	for _, o := range ocspResponses {
		ra.OCSP = append(ra.OCSP, asn1.RawValue{FullBytes: o})
	}
	for _, c := range crls {
		ra.CRL = append(ra.CRL, asn1.RawValue{FullBytes: c})
	}
	return ra
}

// SignDetached returns a detached CMS signature over content.
func (p *TestPKI) SignDetached(content []byte, key crypto.Signer, cert *x509.Certificate, opts SignOptions) []byte {
	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		Fail(p.T, "new signed data: %v", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	var config pkcs7.SignerInfoConfig
	if opts.RevocationInfo != nil {
		config.ExtraSignedAttributes = append(config.ExtraSignedAttributes, pkcs7.Attribute{
			Type:  oidRevocationInfoArchival,
			Value: opts.RevocationInfo,
		})
	}
	if err := sd.AddSignerChain(cert, key, opts.Chain, config); err != nil {
		Fail(p.T, "add signer chain: %v", err)
	}
	sd.Detach()

	for _, der := range opts.CRLs {
		var crl pkix.CertificateList
		if _, err := asn1.Unmarshal(der, &crl); err != nil {
			Fail(p.T, "parse CRL: %v", err)
		}
		sd.GetSignedData().CRLs = append(sd.GetSignedData().CRLs, crl)
	}

	if opts.Timestamp || opts.CorruptTimestamp {
		info := &sd.GetSignedData().SignerInfos[0]
		imprint := sha256.Sum256(info.EncryptedDigest)
		if opts.CorruptTimestamp {
			imprint[0] ^= 0xff
		}
		token := p.timestampToken(imprint[:])
		if err := info.SetUnauthenticatedAttributes([]pkcs7.Attribute{{
			Type:  oidTimeStampToken,
			Value: asn1.RawValue{FullBytes: token},
		}}); err != nil {
			Fail(p.T, "set timestamp attribute: %v", err)
		}
	}

	der, err := sd.Finish()
	if err != nil {
		Fail(p.T, "finish signed data: %v", err)
	}
	return der
}

// DocumentTimestamp returns an RFC 3161 token over the SHA-256 digest of
// content, as embedded by a /DocTimeStamp signature. When corrupt is set
// the imprint does not match content.
func (p *TestPKI) DocumentTimestamp(content []byte, corrupt bool) []byte {
	imprint := sha256.Sum256(content)
	if corrupt {
		imprint[0] ^= 0xff
	}
	return p.timestampToken(imprint[:])
}

func (p *TestPKI) timestampToken(imprint []byte) []byte {
	tsaKey := GenerateKey(p.T, ECDSA_P256)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "PDFTrust Test TSA"},
		NotBefore:    time.Now().Add(-1 * time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping},
	}
	issuer, issuerKey := p.Issuer()
	der, err := x509.CreateCertificate(rand.Reader, template, issuer, tsaKey.Public(), issuerKey)
	if err != nil {
		Fail(p.T, "create TSA cert: %v", err)
	}
	tsaCert, err := x509.ParseCertificate(der)
	if err != nil {
		Fail(p.T, "parse TSA cert: %v", err)
	}

	ts := timestamp.Timestamp{
		HashAlgorithm:     crypto.SHA256,
		HashedMessage:     imprint,
		Time:              time.Now().Add(-time.Minute),
		SerialNumber:      big.NewInt(time.Now().UnixNano()),
		Policy:            asn1.ObjectIdentifier{1, 2, 3, 4, 1},
		AddTSACertificate: true,
	}
	resp, err := ts.CreateResponseWithOpts(tsaCert, tsaKey, crypto.SHA256)
	if err != nil {
		Fail(p.T, "create timestamp response: %v", err)
	}
	parsed, err := timestamp.ParseResponse(resp)
	if err != nil {
		Fail(p.T, "parse timestamp response: %v", err)
	}
	return parsed.RawToken
}
