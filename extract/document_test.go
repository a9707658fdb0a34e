package extract_test

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdftrust/certs"
	"github.com/digitorus/pdftrust/common"
	"github.com/digitorus/pdftrust/extract"
	"github.com/digitorus/pdftrust/internal/testpki"
	"github.com/digitorus/pdftrust/revocation"
	"github.com/digitorus/pdftrust/verify"
)

type signer struct {
	pki  *testpki.TestPKI
	key  crypto.Signer
	cert *x509.Certificate
	// covered collects the bytes handed to each signature.
	covered [][]byte
}

func newSigner(t *testing.T) *signer {
	pki := testpki.NewTestPKI(t)
	key, cert := pki.IssueLeafWithOptions("Document Signer", testpki.LeafOptions{NoOCSP: true})
	return &signer{pki: pki, key: key, cert: cert}
}

func (s *signer) field(name string, level int) testpki.SignatureField {
	return testpki.SignatureField{
		FieldName:          name,
		Name:               "Document Signer",
		Reason:             "Approved",
		Location:           "Amsterdam",
		SigningTime:        time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
		CertificationLevel: level,
		Sign: func(covered []byte) []byte {
			s.covered = append(s.covered, covered)
			return s.pki.SignDetached(covered, s.key, s.cert, testpki.SignOptions{
				Chain:          s.pki.IntermediateCerts,
				RevocationInfo: testpki.Archival([][]byte{s.pki.OCSPResponse(s.cert.SerialNumber)}, nil),
			})
		},
	}
}

func open(t *testing.T, data []byte) *extract.Document {
	t.Helper()
	doc, err := extract.OpenBytes(context.Background(), data)
	require.NoError(t, err)
	return doc
}

func TestListSignaturesSingle(t *testing.T) {
	s := newSigner(t)
	pdf := testpki.NewPDF(t)
	pdf.AddSignature(s.field("Signature1", 0))
	data := pdf.Bytes()

	records, err := open(t, data).ListSignatures()
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "Signature1", rec.FieldName)
	assert.Equal(t, "Document Signer", rec.Name)
	assert.Equal(t, "Approved", rec.Reason)
	assert.Equal(t, "Amsterdam", rec.Location)
	assert.Equal(t, "Adobe.PPKLite", rec.Filter)
	assert.Equal(t, "adbe.pkcs7.detached", rec.SubFilter)
	require.NotNil(t, rec.SigningTime)
	assert.True(t, rec.SigningTime.Equal(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, common.NotCertified, rec.CertificationLevel)
	assert.Equal(t, 1, rec.Revision)
	assert.Equal(t, 1, rec.TotalRevisions)
	assert.True(t, rec.CoversWholeDocument)
	assert.Equal(t, int64(len(data)), rec.SignedEnd())
	assert.Equal(t, s.covered[0], rec.SignedContent)
	assert.NotEmpty(t, rec.Contents)
}

func TestListSignaturesRevisions(t *testing.T) {
	s := newSigner(t)
	pdf := testpki.NewPDF(t)
	pdf.AddSignature(s.field("Author", 2))
	pdf.AddSignature(s.field("Reviewer", 0))
	pdf.AddSignature(s.field("Approver", 1))

	records, err := open(t, pdf.Bytes()).ListSignatures()
	require.NoError(t, err)
	require.Len(t, records, 3)

	names := []string{records[0].FieldName, records[1].FieldName, records[2].FieldName}
	assert.Equal(t, []string{"Author", "Reviewer", "Approver"}, names)
	assert.Equal(t, common.FormFilling, records[0].CertificationLevel)
	assert.Equal(t, common.NotCertified, records[1].CertificationLevel)
	assert.Equal(t, common.NoChanges, records[2].CertificationLevel)
	for i, rec := range records {
		assert.Equal(t, i+1, rec.Revision)
		assert.Equal(t, 3, rec.TotalRevisions)
		assert.Equal(t, i == 2, rec.CoversWholeDocument)
		assert.Equal(t, s.covered[i], rec.SignedContent)
	}
}

func TestListSignaturesTrailingUpdate(t *testing.T) {
	s := newSigner(t)
	pdf := testpki.NewPDF(t)
	pdf.AddSignature(s.field("Signature1", 0))
	pdf.AddUpdate()

	records, err := open(t, pdf.Bytes()).ListSignatures()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Revision)
	assert.Equal(t, 2, records[0].TotalRevisions)
	assert.False(t, records[0].CoversWholeDocument)
}

func TestListSignaturesUnsigned(t *testing.T) {
	records, err := open(t, testpki.NewPDF(t).Bytes()).ListSignatures()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOpenRejectsGarbage(t *testing.T) {
	_, err := extract.OpenBytes(context.Background(), []byte("this is not a PDF"))
	assert.Error(t, err)
}

func TestOpenFile(t *testing.T) {
	s := newSigner(t)
	pdf := testpki.NewPDF(t)
	pdf.AddSignature(s.field("Signature1", 0))

	path := filepath.Join(t.TempDir(), "signed.pdf")
	require.NoError(t, os.WriteFile(path, pdf.Bytes(), 0o600))

	doc, err := extract.Open(context.Background(), path)
	require.NoError(t, err)
	defer func() { assert.NoError(t, doc.Close()) }()

	assert.Equal(t, int64(len(pdf.Bytes())), doc.Size())
	count := 0
	for sig, err := range doc.Signatures() {
		require.NoError(t, err)
		assert.Equal(t, "Signature1", sig.FieldName())
		count++
	}
	assert.Equal(t, 1, count)

	_, err = extract.Open(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestSecurityStore(t *testing.T) {
	s := newSigner(t)
	_, other := s.pki.IssueLeafWithOptions("Other Signer", testpki.LeafOptions{NoOCSP: true})
	_, stranger := testpki.SelfSigned(t, "Stranger")

	t.Run("ocsp", func(t *testing.T) {
		pdf := testpki.NewPDF(t)
		pdf.AddSignature(s.field("Signature1", 0))
		pdf.AddDSS(testpki.DSS{OCSPs: [][]byte{s.pki.OCSPResponse(s.cert.SerialNumber)}})
		doc := open(t, pdf.Bytes())
		assert.True(t, doc.HasRevocationEvidenceFor(s.cert))
		assert.False(t, doc.HasRevocationEvidenceFor(other))
	})
	t.Run("crl", func(t *testing.T) {
		pdf := testpki.NewPDF(t)
		pdf.AddSignature(s.field("Signature1", 0))
		pdf.AddDSS(testpki.DSS{CRLs: [][]byte{s.pki.CRL()}})
		doc := open(t, pdf.Bytes())
		assert.True(t, doc.HasRevocationEvidenceFor(s.cert))
		assert.True(t, doc.HasRevocationEvidenceFor(other))
		assert.False(t, doc.HasRevocationEvidenceFor(stranger))
	})
	t.Run("vri", func(t *testing.T) {
		pdf := testpki.NewPDF(t)
		pdf.AddDSS(testpki.DSS{VRI: true})
		assert.True(t, open(t, pdf.Bytes()).HasRevocationEvidenceFor(stranger))
	})
	t.Run("none", func(t *testing.T) {
		pdf := testpki.NewPDF(t)
		pdf.AddSignature(s.field("Signature1", 0))
		assert.False(t, open(t, pdf.Bytes()).HasRevocationEvidenceFor(s.cert))
	})
}

func verifier(s *signer) *verify.Verifier {
	anchors := verify.StaticAnchors{Set: certs.NewSet([]*x509.Certificate{s.pki.RootCert})}
	return verify.New(anchors, verify.WithRevocationChecker(revocation.NewChecker(revocation.Options{})))
}

func TestVerifyDocument(t *testing.T) {
	s := newSigner(t)
	pdf := testpki.NewPDF(t)
	pdf.AddSignature(s.field("Signature1", 0))
	pdf.AddSignature(s.field("Signature2", 0))

	results, err := verifier(s).VerifyAll(context.Background(), open(t, pdf.Bytes()))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, verify.StatusValid, r.OverallStatus(), "%s: %v", r.FieldName, r.Errors)
		assert.True(t, r.HasLongTermValidation)
	}
}

func TestVerifyDocumentNoChangesCertification(t *testing.T) {
	s := newSigner(t)
	pdf := testpki.NewPDF(t)
	pdf.AddSignature(s.field("Signature1", 0))
	pdf.AddSignature(s.field("Signature2", 0))
	pdf.AddSignature(s.field("Signature3", 1))

	results, err := verifier(s).VerifyAll(context.Background(), open(t, pdf.Bytes()))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, verify.StatusInvalid, results[0].OverallStatus())
	assert.Equal(t, verify.StatusInvalid, results[1].OverallStatus())
	assert.Equal(t, verify.StatusValid, results[2].OverallStatus(), "%v", results[2].Errors)
}

func TestVerifyDocumentTampered(t *testing.T) {
	s := newSigner(t)
	pdf := testpki.NewPDF(t)
	pdf.AddSignature(s.field("Signature1", 0))
	data := pdf.Bytes()

	i := bytes.Index(data, []byte("/MediaBox [0 0 612 792]"))
	require.Positive(t, i)
	copy(data[i:], "/MediaBox [0 0 595 842]")

	results, err := verifier(s).VerifyAll(context.Background(), open(t, data))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].SignatureValid)
	assert.Equal(t, verify.StatusInvalid, results[0].OverallStatus())
}

func TestVerifyDocumentAfterDSSUpdate(t *testing.T) {
	s := newSigner(t)
	pdf := testpki.NewPDF(t)
	pdf.AddSignature(testpki.SignatureField{
		FieldName: "Signature1",
		Sign: func(covered []byte) []byte {
			return s.pki.SignDetached(covered, s.key, s.cert, testpki.SignOptions{Chain: s.pki.IntermediateCerts})
		},
	})
	pdf.AddDSS(testpki.DSS{OCSPs: [][]byte{s.pki.OCSPResponse(s.cert.SerialNumber)}})

	results, err := verifier(s).VerifyAll(context.Background(), open(t, pdf.Bytes()))
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.True(t, r.DocumentIntact)
	assert.True(t, r.HasLongTermValidation)
	assert.Contains(t, r.Info, "Signature is valid. Document has additional signatures or modifications after this signature.")
}
