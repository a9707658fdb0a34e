package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdftrust/internal/testpki"
)

func newServedPKI(t *testing.T) *testpki.TestPKI {
	pki := testpki.NewTestPKI(t)
	pki.StartServer()
	t.Cleanup(pki.Close)
	return pki
}

func TestCheckEmbeddedOCSP(t *testing.T) {
	pki := newServedPKI(t)
	_, leaf := pki.IssueLeaf("Signer")
	issuer, _ := pki.Issuer()
	checker := NewChecker(Options{Live: true})

	var info InfoArchival
	_ = info.AddOCSP(pki.OCSPResponse(leaf.SerialNumber))
	st := checker.Check(context.Background(), leaf, issuer, &info)
	assert.Equal(t, "Valid (Embedded)", st.String())

	pki.Revoke(leaf.SerialNumber)
	info = InfoArchival{}
	_ = info.AddOCSP(pki.OCSPResponse(leaf.SerialNumber))
	st = checker.Check(context.Background(), leaf, issuer, &info)
	assert.Equal(t, Revoked, st.State)
	assert.NotNil(t, st.RevokedAt)

	assert.Equal(t, 0, pki.OCSPRequests(), "embedded evidence must not reach the network")
}

func TestCheckEmbeddedCRL(t *testing.T) {
	pki := newServedPKI(t)
	_, leaf := pki.IssueLeaf("Signer")
	issuer, _ := pki.Issuer()
	checker := NewChecker(Options{Live: true})

	var info InfoArchival
	_ = info.AddCRL(pki.CRL())
	assert.Equal(t, "Valid (CRL)", checker.Check(context.Background(), leaf, issuer, &info).String())

	pki.Revoke(leaf.SerialNumber)
	info = InfoArchival{}
	_ = info.AddCRL(pki.CRL())
	st := checker.Check(context.Background(), leaf, issuer, &info)
	assert.Equal(t, Revoked, st.State)
	assert.Equal(t, SourceEmbeddedCRL, st.Source)
}

func TestCheckLive(t *testing.T) {
	pki := newServedPKI(t)
	_, leaf := pki.IssueLeaf("Signer")
	issuer, _ := pki.Issuer()
	checker := NewChecker(Options{Live: true, ConnectTimeout: 300 * time.Millisecond, ReadTimeout: 300 * time.Millisecond})

	tests := []struct {
		name   string
		mode   testpki.OCSPMode
		revoke bool
		want   string
	}{
		{"good", testpki.OCSPAnswer, false, "Valid (Live OCSP)"},
		{"server error", testpki.OCSPFail, false, "Unknown (Check Failed)"},
		{"malformed reply", testpki.OCSPGarbage, false, "Unknown (Check Failed)"},
		{"responder unknown", testpki.OCSPUnknown, false, "Unknown (Certificate Unknown)"},
		{"timeout", testpki.OCSPHang, false, "Unknown (Timeout)"},
		{"revoked", testpki.OCSPAnswer, true, "Revoked"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pki.SetOCSPMode(tt.mode)
			if tt.revoke {
				pki.Revoke(leaf.SerialNumber)
			}
			st := checker.Check(context.Background(), leaf, issuer, nil)
			assert.Equal(t, tt.want, st.String())
		})
	}
}

func TestCheckNetworkError(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartServer()
	url := pki.Server.URL + "/ocsp"
	pki.Close()

	_, leaf := pki.IssueLeafWithOptions("Signer", testpki.LeafOptions{OCSPURL: url})
	issuer, _ := pki.Issuer()

	st := NewChecker(Options{Live: true}).Check(context.Background(), leaf, issuer, nil)
	require.Equal(t, Unknown, st.State)
	assert.Equal(t, "Unknown (Network Error)", st.String())
	assert.Error(t, st.Err)
}

func TestCheckWithoutNetworkPath(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	_, noURL := pki.IssueLeafWithOptions("NoURL", testpki.LeafOptions{NoOCSP: true})
	_, withURL := pki.IssueLeafWithOptions("WithURL", testpki.LeafOptions{OCSPURL: "http://ocsp.example.test"})
	issuer, _ := pki.Issuer()

	live := NewChecker(Options{Live: true})
	assert.Equal(t, "Unknown (No Responder)", live.Check(context.Background(), noURL, issuer, nil).String())
	assert.Equal(t, "Unknown (No Issuer)", live.Check(context.Background(), withURL, nil, nil).String())

	off := NewChecker(Options{})
	assert.Equal(t, "Not Checked", off.Check(context.Background(), withURL, issuer, nil).String())
}
