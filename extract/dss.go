package extract

import (
	"bytes"
	"crypto/x509"
	"io"

	pdflib "github.com/digitorus/pdf"
	"golang.org/x/crypto/ocsp"

	"github.com/digitorus/pdftrust/log"
)

// securityStore is the parsed /DSS dictionary of the catalog.
type securityStore struct {
	ocspSerials map[string]bool
	crlIssuers  [][]byte
	vri         bool
}

func readSecurityStore(rdr *pdflib.Reader, logger log.Logger) *securityStore {
	dss := rdr.Trailer().Key("Root").Key("DSS")
	if dss.IsNull() {
		return nil
	}
	s := &securityStore{ocspSerials: make(map[string]bool)}

	for _, data := range streams(dss.Key("OCSPs"), logger) {
		resp, err := ocsp.ParseResponse(data, nil)
		if err != nil {
			logger.Warnf("skipping malformed DSS OCSP response: %v", err)
			continue
		}
		s.ocspSerials[resp.SerialNumber.String()] = true
	}
	for _, data := range streams(dss.Key("CRLs"), logger) {
		crl, err := x509.ParseRevocationList(data)
		if err != nil {
			logger.Warnf("skipping malformed DSS CRL: %v", err)
			continue
		}
		s.crlIssuers = append(s.crlIssuers, crl.RawIssuer)
	}
	vri := dss.Key("VRI")
	s.vri = vri.Kind() == pdflib.Dict && len(vri.Keys()) > 0

	logger.Debugf("DSS holds %d OCSP responses, %d CRLs, VRI %t", len(s.ocspSerials), len(s.crlIssuers), s.vri)
	return s
}

func streams(arr pdflib.Value, logger log.Logger) [][]byte {
	if arr.Kind() != pdflib.Array {
		return nil
	}
	var out [][]byte
	for i := 0; i < arr.Len(); i++ {
		v := arr.Index(i)
		if v.Kind() != pdflib.Stream {
			continue
		}
		rc := v.Reader()
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			logger.Warnf("skipping unreadable DSS stream: %v", err)
			continue
		}
		out = append(out, data)
	}
	return out
}

func (s *securityStore) covers(cert *x509.Certificate) bool {
	if s == nil || cert == nil {
		return false
	}
	if s.vri || s.ocspSerials[cert.SerialNumber.String()] {
		return true
	}
	for _, issuer := range s.crlIssuers {
		if bytes.Equal(issuer, cert.RawIssuer) {
			return true
		}
	}
	return false
}
