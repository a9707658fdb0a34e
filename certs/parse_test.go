package certs_test

import (
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/digitorus/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdftrust/certs"
	"github.com/digitorus/pdftrust/internal/testpki"
)

func fingerprints(list []*x509.Certificate) []string {
	var out []string
	for _, c := range list {
		out = append(out, certs.Fingerprint(c))
	}
	sort.Strings(out)
	return out
}

func TestParseEncodingsAgree(t *testing.T) {
	pki := testpki.NewTestPKIWithConfig(t, testpki.TestPKIConfig{IntermediateCAs: 2})
	all := append([]*x509.Certificate{pki.RootCert}, pki.IntermediateCerts...)

	bundle, err := pkcs7.DegenerateCertificate(testpki.DER(all...))
	require.NoError(t, err)

	inputs := map[string][]byte{
		"der":    testpki.DER(all...),
		"pem":    testpki.PEM(all...),
		"pkcs7":  bundle,
		"single": testpki.DER(pki.RootCert),
	}

	want := fingerprints(all)
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := certs.Parse(data)
			require.NoError(t, err)
			if name == "single" {
				assert.Equal(t, fingerprints([]*x509.Certificate{pki.RootCert}), fingerprints(got))
				return
			}
			assert.Equal(t, want, fingerprints(got))
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := certs.Parse([]byte("definitely not a certificate"))
	require.Error(t, err)

	var pe *certs.ParseError
	require.True(t, errors.As(err, &pe))
	assert.True(t, errors.Is(err, certs.ErrNoCertificates))
}

func TestParseDERStopsAtTrailingBytes(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	data := append(testpki.DER(pki.RootCert), 0x00, 0x01, 0x02)

	got, err := certs.Parse(data)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestParseFileNamesSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pem")
	require.NoError(t, os.WriteFile(path, []byte("-----BEGIN NOTHING-----"), 0o600))

	_, err := certs.ParseFile(path)
	var pe *certs.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, path, pe.Source)
}

func TestHasExtension(t *testing.T) {
	assert.True(t, certs.HasExtension("root.PEM", certs.Extensions))
	assert.True(t, certs.HasExtension("bundle.p7c", certs.Extensions))
	assert.False(t, certs.HasExtension("code.spc", certs.Extensions))
	assert.True(t, certs.HasExtension("code.spc", certs.UserExtensions))
	assert.False(t, certs.HasExtension("notes.txt", certs.UserExtensions))
}
