package verify

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/digitorus/pdftrust/certs"
	"github.com/digitorus/pdftrust/common"
	"github.com/digitorus/pdftrust/internal/testpki"
	"github.com/digitorus/pdftrust/revocation"
)

type fixture struct {
	t    *testing.T
	pki  *testpki.TestPKI
	key  crypto.Signer
	leaf *x509.Certificate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pki := testpki.NewTestPKI(t)
	key, leaf := pki.IssueLeafWithOptions("Alice Signer", testpki.LeafOptions{NoOCSP: true})
	return &fixture{t: t, pki: pki, key: key, leaf: leaf}
}

func (f *fixture) anchors() AnchorSource {
	return StaticAnchors{Set: certs.NewSet([]*x509.Certificate{f.pki.RootCert})}
}

// embeddedGood returns archival evidence saying serial is good.
func (f *fixture) embeddedGood(serial *big.Int) testpki.RevocationArchival {
	return testpki.Archival([][]byte{f.pki.OCSPResponse(serial)}, nil)
}

// record signs a synthetic revision with the fixture leaf.
func (f *fixture) record(name string, revision, total int, level common.CertificationLevel) common.SignatureRecord {
	return f.recordWith(name, revision, total, level, f.key, f.leaf, testpki.SignOptions{
		Chain:          f.pki.IntermediateCerts,
		RevocationInfo: f.embeddedGood(f.leaf.SerialNumber),
	})
}

func (f *fixture) recordWith(name string, revision, total int, level common.CertificationLevel, key crypto.Signer, cert *x509.Certificate, opts testpki.SignOptions) common.SignatureRecord {
	content := []byte(fmt.Sprintf("%%PDF-1.7 %s revision %d", name, revision))
	return common.SignatureRecord{
		FieldName:           name,
		Name:                name,
		Reason:              "Approval",
		Contents:            f.pki.SignDetached(content, key, cert, opts),
		SignedContent:       content,
		Revision:            revision,
		TotalRevisions:      total,
		CoversWholeDocument: revision == total,
		CertificationLevel:  level,
	}
}

// offline checks embedded evidence only.
func offline() Option {
	return WithRevocationChecker(revocation.NewChecker(revocation.Options{}))
}

type memorySource struct {
	records []common.SignatureRecord
	err     error
	dss     bool
}

func (m *memorySource) ListSignatures() ([]common.SignatureRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]common.SignatureRecord{}, m.records...), nil
}

func (m *memorySource) HasRevocationEvidenceFor(*x509.Certificate) bool {
	return m.dss
}

type fixedChecker struct {
	status revocation.Status
}

func (c fixedChecker) Check(context.Context, *x509.Certificate, *x509.Certificate, *revocation.InfoArchival) revocation.Status {
	return c.status
}

type panickingChecker struct {
	victim string
}

func (c panickingChecker) Check(_ context.Context, cert, _ *x509.Certificate, _ *revocation.InfoArchival) revocation.Status {
	if cert.Subject.CommonName == c.victim {
		panic(errors.New("responder exploded"))
	}
	return revocation.Status{State: revocation.Valid, Source: revocation.SourceLiveOCSP}
}
