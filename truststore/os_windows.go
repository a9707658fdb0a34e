//go:build windows

package truststore

import (
	"crypto/x509"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// systemStores are the CryptoAPI stores merged into the anchor set: the
// trusted roots and the current user's personal certificates.
var systemStores = []string{"ROOT", "MY"}

// loadOSAnchors enumerates the Windows system stores. A store that cannot
// be opened is skipped; an error is returned only when none could.
func loadOSAnchors() ([]*x509.Certificate, error) {
	var out []*x509.Certificate
	var errs []error
	opened := 0
	for _, name := range systemStores {
		list, err := enumStore(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		opened++
		out = append(out, list...)
	}
	if opened == 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func enumStore(name string) ([]*x509.Certificate, error) {
	ptr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	store, err := windows.CertOpenSystemStore(0, ptr)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", name, err)
	}
	defer windows.CertCloseStore(store, 0)

	var out []*x509.Certificate
	var ctx *windows.CertContext
	for {
		// The previous context is released by the next call.
		ctx, err = windows.CertEnumCertificatesInStore(store, ctx)
		if ctx == nil {
			break
		}
		if ctx.EncodingType&windows.X509_ASN_ENCODING == 0 {
			continue
		}
		der := unsafe.Slice(ctx.EncodedCert, ctx.Length)
		cert, perr := x509.ParseCertificate(append([]byte(nil), der...))
		if perr != nil {
			continue
		}
		out = append(out, cert)
	}
	if err != nil && !errors.Is(err, windows.Errno(windows.CRYPT_E_NOT_FOUND)) {
		return out, fmt.Errorf("enumerate %s store: %w", name, err)
	}
	return out, nil
}
