package revocation

import (
	"testing"

	"github.com/digitorus/pdftrust/internal/testpki"
)

func TestInfoArchivalMethods(t *testing.T) {
	info := InfoArchival{}
	if !info.IsEmpty() {
		t.Error("new archival should be empty")
	}

	if err := info.AddCRL([]byte("crl")); err != nil {
		t.Errorf("AddCRL failed: %v", err)
	}
	if len(info.CRL) != 1 {
		t.Error("AddCRL did not append CRL")
	}

	if err := info.AddOCSP([]byte("ocsp")); err != nil {
		t.Errorf("AddOCSP failed: %v", err)
	}
	if len(info.OCSP) != 1 {
		t.Error("AddOCSP did not append OCSP")
	}
	if info.IsEmpty() {
		t.Error("archival with evidence reported empty")
	}
}

func TestRevokedByCRL(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	_, leaf := pki.IssueLeaf("Signer")
	issuer, _ := pki.Issuer()

	var info InfoArchival
	_ = info.AddCRL(pki.CRL())
	if _, revoked := info.revokedByCRL(leaf, issuer); revoked {
		t.Fatal("empty CRL reported certificate as revoked")
	}

	pki.Revoke(leaf.SerialNumber)
	info = InfoArchival{}
	_ = info.AddCRL(pki.CRL())
	at, revoked := info.revokedByCRL(leaf, issuer)
	if !revoked || at == nil {
		t.Fatal("revoked serial not found in CRL")
	}

	// A CRL signed by someone else is ignored.
	other := testpki.NewTestPKIWithConfig(t, testpki.TestPKIConfig{RootName: "Other Root", IntermediateCAs: 1})
	otherIssuer, _ := other.Issuer()
	if _, revoked := info.revokedByCRL(leaf, otherIssuer); revoked {
		t.Fatal("CRL from a different issuer was trusted")
	}
}
