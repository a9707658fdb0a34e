//go:build !windows

package truststore

import (
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"

	"github.com/digitorus/pdftrust/certs"
)

// Bundle files and directories consulted in order. The first bundle file
// found wins; directories are scanned only when no bundle exists.
var (
	systemBundles = []string{
		"/etc/ssl/certs/ca-certificates.crt",
		"/etc/pki/tls/certs/ca-bundle.crt",
		"/etc/ssl/ca-bundle.pem",
		"/etc/pki/tls/cacert.pem",
		"/etc/pki/ca-trust/extracted/pem/tls-ca-bundle.pem",
		"/etc/ssl/cert.pem",
	}
	systemDirs = []string{
		"/etc/ssl/certs",
		"/etc/pki/tls/certs",
	}
)

// loadOSAnchors enumerates the system roots. x509.SystemCertPool cannot
// list its members, so the well-known files are read directly.
func loadOSAnchors() ([]*x509.Certificate, error) {
	if env := os.Getenv("SSL_CERT_FILE"); env != "" {
		return certs.ParseFile(env)
	}
	for _, path := range systemBundles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return certs.ParseFile(path)
	}

	var out []*x509.Certificate
	for _, dir := range systemDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !certs.HasExtension(e.Name(), certs.Extensions) {
				continue
			}
			list, err := certs.ParseFile(filepath.Join(dir, e.Name()))
			if err != nil {
				continue
			}
			out = append(out, list...)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no system certificate bundle found")
	}
	return out, nil
}
