package revocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdftrust/internal/testpki"
)

func TestOCSPServerURL(t *testing.T) {
	pki := testpki.NewTestPKI(t)

	_, withURL := pki.IssueLeafWithOptions("With", testpki.LeafOptions{OCSPURL: "http://ocsp.example.test/q"})
	url, err := OCSPServerURL(withURL)
	require.NoError(t, err)
	assert.Equal(t, "http://ocsp.example.test/q", url)
	assert.Equal(t, withURL.OCSPServer[0], url)

	_, without := pki.IssueLeafWithOptions("Without", testpki.LeafOptions{NoOCSP: true})
	url, err = OCSPServerURL(without)
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestParseAccessDescriptionsRejectsGarbage(t *testing.T) {
	_, err := parseAccessDescriptions([]byte{0x30, 0x05, 0x01}, oidAccessMethodOCSP)
	assert.Error(t, err)
}
