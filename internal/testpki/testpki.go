// Package testpki builds throwaway certificate hierarchies, revocation
// responders and signed fixtures for tests.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
)

// KeyProfile defines the cryptographic settings for the PKI.
type KeyProfile string

const (
	RSA_2048   KeyProfile = "RSA_2048"
	ECDSA_P256 KeyProfile = "ECDSA_P256"
	ECDSA_P384 KeyProfile = "ECDSA_P384"
)

// OCSPMode selects how the responder answers.
type OCSPMode int

const (
	// OCSPAnswer replies Good, or Revoked for serials passed to Revoke.
	OCSPAnswer OCSPMode = iota
	// OCSPFail replies with HTTP 500.
	OCSPFail
	// OCSPGarbage replies 200 with a body that is not an OCSP response.
	OCSPGarbage
	// OCSPHang holds the request open until the client gives up.
	OCSPHang
	// OCSPUnknown replies with status Unknown for every serial.
	OCSPUnknown
)

type TestPKIConfig struct {
	Profile         KeyProfile
	IntermediateCAs int
	// RootName overrides the root common name.
	RootName string
}

// TestPKI manages a temporary PKI hierarchy for testing.
type TestPKI struct {
	T                 testing.TB
	RootKey           crypto.Signer
	RootCert          *x509.Certificate
	IntermediateKeys  []crypto.Signer
	IntermediateCerts []*x509.Certificate
	Server            *httptest.Server
	Profile           KeyProfile

	mu           sync.Mutex
	mode         OCSPMode
	revoked      map[string]time.Time
	ocspRequests int
}

// NewTestPKI creates a root and one intermediate using P-256 keys.
func NewTestPKI(t testing.TB) *TestPKI {
	return NewTestPKIWithConfig(t, TestPKIConfig{
		Profile:         ECDSA_P256,
		IntermediateCAs: 1,
	})
}

// NewTestPKIWithConfig allows detailed configuration of the PKI.
func NewTestPKIWithConfig(t testing.TB, config TestPKIConfig) *TestPKI {
	if config.Profile == "" {
		config.Profile = ECDSA_P256
	}
	rootName := config.RootName
	if rootName == "" {
		rootName = "PDFTrust Test Root CA"
	}

	rootKey := GenerateKey(t, config.Profile)
	rootCert := CreateCA(t, rootName, nil, nil, rootKey)

	var intermediateKeys []crypto.Signer
	var intermediateCerts []*x509.Certificate

	parentKey := rootKey
	parentCert := rootCert
	for i := 0; i < config.IntermediateCAs; i++ {
		key := GenerateKey(t, config.Profile)
		cert := CreateCA(t, fmt.Sprintf("PDFTrust Test Intermediate CA %d", i+1), parentCert, parentKey, key)
		intermediateKeys = append(intermediateKeys, key)
		intermediateCerts = append(intermediateCerts, cert)
		parentKey = key
		parentCert = cert
	}

	return &TestPKI{
		T:                 t,
		RootKey:           rootKey,
		RootCert:          rootCert,
		IntermediateKeys:  intermediateKeys,
		IntermediateCerts: intermediateCerts,
		Profile:           config.Profile,
		revoked:           make(map[string]time.Time),
	}
}

// CreateCA issues a CA certificate for key. A nil parent makes it
// self-signed.
func CreateCA(t testing.TB, commonName string, parent *x509.Certificate, parentKey, key crypto.Signer) *x509.Certificate {
	serial, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"PDFTrust Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	if parent == nil {
		parent = template
		parentKey = key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, key.Public(), parentKey)
	if err != nil {
		Fail(t, "failed to create CA %q: %v", commonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		Fail(t, "failed to parse CA %q: %v", commonName, err)
	}
	return cert
}

// SelfSigned returns a standalone self-signed end-entity certificate.
func SelfSigned(t testing.TB, commonName string) (crypto.Signer, *x509.Certificate) {
	key := GenerateKey(t, ECDSA_P256)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-1 * time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		Fail(t, "failed to create self-signed cert: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		Fail(t, "failed to parse self-signed cert: %v", err)
	}
	return key, cert
}

// Issuer returns the certificate and key that sign leaves.
func (p *TestPKI) Issuer() (*x509.Certificate, crypto.Signer) {
	if n := len(p.IntermediateCerts); n > 0 {
		return p.IntermediateCerts[n-1], p.IntermediateKeys[n-1]
	}
	return p.RootCert, p.RootKey
}

// SetOCSPMode changes how the responder answers subsequent requests.
func (p *TestPKI) SetOCSPMode(mode OCSPMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = mode
}

// Revoke marks serial as revoked for both the responder and CRL.
func (p *TestPKI) Revoke(serial *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[serial.String()] = time.Now().Add(-time.Minute)
}

// OCSPRequests returns how many OCSP requests the responder has seen.
func (p *TestPKI) OCSPRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ocspRequests
}

// CRL returns a DER CRL from the leaf issuer listing revoked serials.
func (p *TestPKI) CRL() []byte {
	issuerCert, issuerKey := p.Issuer()
	p.mu.Lock()
	var entries []x509.RevocationListEntry
	for s, at := range p.revoked {
		n, _ := new(big.Int).SetString(s, 10)
		entries = append(entries, x509.RevocationListEntry{SerialNumber: n, RevocationTime: at})
	}
	p.mu.Unlock()

	der, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:                    big.NewInt(1),
		ThisUpdate:                time.Now().Add(-time.Hour),
		NextUpdate:                time.Now().Add(24 * time.Hour),
		RevokedCertificateEntries: entries,
	}, issuerCert, issuerKey)
	if err != nil {
		Fail(p.T, "failed to create CRL: %v", err)
	}
	return der
}

// OCSPResponse builds a signed response for serial as the responder would.
func (p *TestPKI) OCSPResponse(serial *big.Int) []byte {
	issuerCert, issuerKey := p.Issuer()
	now := time.Now()
	template := ocsp.Response{
		Status:       ocsp.Good,
		SerialNumber: serial,
		ThisUpdate:   now.Add(-1 * time.Hour),
		NextUpdate:   now.Add(24 * time.Hour),
	}
	p.mu.Lock()
	if at, ok := p.revoked[serial.String()]; ok {
		template.Status = ocsp.Revoked
		template.RevokedAt = at
		template.RevocationReason = ocsp.KeyCompromise
	} else if p.mode == OCSPUnknown {
		template.Status = ocsp.Unknown
	}
	p.mu.Unlock()

	der, err := ocsp.CreateResponse(issuerCert, issuerCert, template, issuerKey)
	if err != nil {
		Fail(p.T, "failed to create OCSP response: %v", err)
	}
	return der
}

// StartServer starts a mock HTTP server answering OCSP POST requests on
// /ocsp and serving the CRL on /crl and the issuer on /ca.
func (p *TestPKI) StartServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/crl", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pkix-crl")
		_, _ = w.Write(p.CRL())
	})
	mux.HandleFunc("/ca", func(w http.ResponseWriter, r *http.Request) {
		issuer, _ := p.Issuer()
		w.Header().Set("Content-Type", "application/x-x509-ca-cert")
		_, _ = w.Write(issuer.Raw)
	})
	mux.HandleFunc("/ocsp", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.ocspRequests++
		mode := p.mode
		p.mu.Unlock()

		switch mode {
		case OCSPFail:
			w.WriteHeader(http.StatusInternalServerError)
			return
		case OCSPGarbage:
			w.Header().Set("Content-Type", "application/ocsp-response")
			_, _ = w.Write([]byte("not an ocsp response"))
			return
		case OCSPHang:
			// Reading the body to EOF lets the server notice when the
			// client goes away, which cancels r.Context().
			_, _ = io.Copy(io.Discard, r.Body)
			select {
			case <-r.Context().Done():
			case <-time.After(10 * time.Second):
			}
			return
		}

		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/ocsp-request" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		req, err := ocsp.ParseRequest(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/ocsp-response")
		_, _ = w.Write(p.OCSPResponse(req.SerialNumber))
	})
	p.Server = httptest.NewServer(mux)
}

// LeafOptions tunes IssueLeafWithOptions.
type LeafOptions struct {
	NotBefore time.Time
	NotAfter  time.Time
	// NoOCSP omits the authority information access responder URL.
	NoOCSP bool
	// OCSPURL overrides the responder URL.
	OCSPURL string
}

// IssueLeaf issues a signing certificate from the last intermediate.
func (p *TestPKI) IssueLeaf(commonName string) (crypto.Signer, *x509.Certificate) {
	return p.IssueLeafWithOptions(commonName, LeafOptions{})
}

// IssueLeafWithOptions issues a signing certificate from the last
// intermediate. The responder URL points at the mock server when it runs.
func (p *TestPKI) IssueLeafWithOptions(commonName string, opts LeafOptions) (crypto.Signer, *x509.Certificate) {
	priv := GenerateKey(p.T, p.Profile)

	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now().Add(-1 * time.Hour)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = time.Now().Add(1 * time.Hour)
	}

	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"PDFTrust Test Org"},
		},
		NotBefore:   opts.NotBefore,
		NotAfter:    opts.NotAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	switch {
	case opts.NoOCSP:
	case opts.OCSPURL != "":
		template.OCSPServer = []string{opts.OCSPURL}
	case p.Server != nil:
		template.OCSPServer = []string{p.Server.URL + "/ocsp"}
		template.CRLDistributionPoints = []string{p.Server.URL + "/crl"}
		template.IssuingCertificateURL = []string{p.Server.URL + "/ca"}
	}

	issuerCert, issuerKey := p.Issuer()
	certBytes, err := x509.CreateCertificate(rand.Reader, template, issuerCert, priv.Public(), issuerKey)
	if err != nil {
		Fail(p.T, "failed to issue leaf cert: %v", err)
	}
	leafCert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		Fail(p.T, "failed to parse leaf cert: %v", err)
	}
	return priv, leafCert
}

// Chain returns the issuing chain for a leaf, intermediates first.
func (p *TestPKI) Chain() []*x509.Certificate {
	var chain []*x509.Certificate
	for i := len(p.IntermediateCerts) - 1; i >= 0; i-- {
		chain = append(chain, p.IntermediateCerts[i])
	}
	return append(chain, p.RootCert)
}

// Close stops the mock server.
func (p *TestPKI) Close() {
	if p.Server != nil {
		p.Server.Close()
	}
}

// PEM encodes certs as CERTIFICATE blocks.
func PEM(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, c := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
	}
	return out
}

// DER concatenates the raw encodings of certs.
func DER(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, c := range certs {
		out = append(out, c.Raw...)
	}
	return out
}

func Fail(t testing.TB, format string, args ...interface{}) {
	if t != nil {
		t.Fatalf(format, args...)
	} else {
		log.Fatalf(format, args...)
	}
}

func GenerateKey(t testing.TB, profile KeyProfile) crypto.Signer {
	switch profile {
	case RSA_2048:
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			Fail(t, "failed to generate RSA 2048 key: %v", err)
		}
		return k
	case ECDSA_P256:
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			Fail(t, "failed to generate P-256 key: %v", err)
		}
		return k
	case ECDSA_P384:
		k, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		if err != nil {
			Fail(t, "failed to generate P-384 key: %v", err)
		}
		return k
	default:
		Fail(t, "unknown key profile: %s", profile)
		return nil
	}
}
