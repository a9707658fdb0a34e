package truststore

import (
	"context"
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/digitorus/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdftrust/certs"
	"github.com/digitorus/pdftrust/internal/testpki"
)

func aliases(anchors []Anchor) []string {
	var out []string
	for _, a := range anchors {
		out = append(out, a.Alias)
	}
	return out
}

func TestInitializeLoadsAllSources(t *testing.T) {
	pki := testpki.NewTestPKIWithConfig(t, testpki.TestPKIConfig{IntermediateCAs: 1})
	_, selfSigned := testpki.SelfSigned(t, "User Root")
	_, osRoot := testpki.SelfSigned(t, "OS Root")

	bundle, err := pkcs7.DegenerateCertificate(testpki.DER(pki.RootCert, pki.IntermediateCerts[0]))
	require.NoError(t, err)

	bundled := fstest.MapFS{
		"root.pem":   {Data: testpki.PEM(pki.RootCert)},
		"chain.p7b":  {Data: bundle},
		"notes.txt":  {Data: []byte("ignored")},
		"broken.crt": {Data: []byte("not a certificate")},
	}
	userDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "user.crt"), testpki.DER(selfSigned), 0o600))

	s := New(Options{Bundled: bundled, UserDir: userDir, UseOSStore: true})
	s.loadOS = func() ([]*x509.Certificate, error) { return []*x509.Certificate{osRoot}, nil }

	require.NoError(t, s.Initialize(context.Background()))

	assert.Equal(t, []string{"chain.p7b[0]", "chain.p7b[1]", "root.pem"}, aliases(s.BundledAnchors(context.Background())))
	assert.Equal(t, []string{"user.crt"}, aliases(s.UserAnchors(context.Background())))

	set := s.AllAnchors(context.Background())
	// root.pem duplicates chain.p7b[0]
	assert.Equal(t, 4, set.Len())
	assert.True(t, set.Contains(osRoot))
	assert.True(t, set.Contains(selfSigned))
}

func TestOSStoreFailureIsNotFatal(t *testing.T) {
	s := New(Options{UseOSStore: true})
	s.loadOS = func() ([]*x509.Certificate, error) { return nil, errors.New("unsupported") }

	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, 0, s.AllAnchors(context.Background()).Len())
}

func TestMissingUserDirIsEmpty(t *testing.T) {
	s := New(Options{UserDir: filepath.Join(t.TempDir(), "absent")})
	require.NoError(t, s.Initialize(context.Background()))
	assert.Empty(t, s.UserAnchors(context.Background()))
}

func TestAddReloadRemove(t *testing.T) {
	ctx := context.Background()
	pki := testpki.NewTestPKI(t)
	src := filepath.Join(t.TempDir(), "partner.der")
	require.NoError(t, os.WriteFile(src, testpki.DER(pki.RootCert), 0o600))

	userDir := filepath.Join(t.TempDir(), "trusted-certs")
	s := New(Options{UserDir: userDir})

	before := s.AllAnchors(ctx)
	got, err := s.AddAnchor(ctx, src, "partner")
	require.NoError(t, err)
	assert.Equal(t, []string{"partner.der"}, got)
	assert.FileExists(t, filepath.Join(userDir, "partner.der"))

	assert.False(t, before.Contains(pki.RootCert), "earlier snapshots must not change")
	assert.True(t, s.AllAnchors(ctx).Contains(pki.RootCert))

	require.NoError(t, s.Reload(ctx))
	assert.True(t, s.AllAnchors(ctx).Contains(pki.RootCert))
	assert.Equal(t, []string{"partner.der"}, aliases(s.UserAnchors(ctx)))

	removed, err := s.RemoveAnchor(ctx, "partner.der")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoFileExists(t, filepath.Join(userDir, "partner.der"))
	assert.False(t, s.AllAnchors(ctx).Contains(pki.RootCert))

	removed, err = s.RemoveAnchor(ctx, "partner.der")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAddAnchorAliasExtension(t *testing.T) {
	ctx := context.Background()
	pki := testpki.NewTestPKI(t)
	dir := t.TempDir()

	noExt := filepath.Join(dir, "rootcert")
	require.NoError(t, os.WriteFile(noExt, testpki.PEM(pki.RootCert), 0o600))
	bundlePath := filepath.Join(dir, "chain.pem")
	require.NoError(t, os.WriteFile(bundlePath, testpki.PEM(pki.RootCert, pki.IntermediateCerts[0]), 0o600))

	s := New(Options{UserDir: filepath.Join(dir, "user")})

	got, err := s.AddAnchor(ctx, noExt, "plain")
	require.NoError(t, err)
	assert.Equal(t, []string{"plain.pem"}, got)

	got, err = s.AddAnchor(ctx, bundlePath, "mine.crt")
	require.NoError(t, err)
	assert.Equal(t, []string{"mine.crt[0]", "mine.crt[1]"}, got)

	removed, err := s.RemoveAnchor(ctx, "mine.crt[1]")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"plain.pem"}, aliases(s.UserAnchors(ctx)))
}

func TestAddAnchorRejects(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("nope"), 0o600))

	s := New(Options{UserDir: filepath.Join(dir, "user")})

	_, err := s.AddAnchor(ctx, garbage, "../escape")
	assert.ErrorIs(t, err, ErrInvalidAlias)

	_, err = s.AddAnchor(ctx, garbage, "garbage")
	var pe *certs.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, garbage, pe.Source)
	assert.NoDirExists(t, filepath.Join(dir, "user"))

	_, err = New(Options{}).AddAnchor(ctx, garbage, "x")
	assert.Error(t, err)
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	ctx := context.Background()
	pki := testpki.NewTestPKI(t)
	src := filepath.Join(t.TempDir(), "root.pem")
	require.NoError(t, os.WriteFile(src, testpki.PEM(pki.RootCert), 0o600))

	s := New(Options{UserDir: t.TempDir()})
	require.NoError(t, s.Initialize(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				set := s.AllAnchors(ctx)
				n := set.Len()
				assert.Equal(t, n, len(set.All()))
			}
		}()
	}
	for i := 0; i < 10; i++ {
		_, err := s.AddAnchor(ctx, src, "root")
		require.NoError(t, err)
		_, err = s.RemoveAnchor(ctx, "root.pem")
		require.NoError(t, err)
	}
	wg.Wait()
}
