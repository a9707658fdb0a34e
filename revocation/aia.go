package revocation

import (
	"crypto/x509"
	"encoding/asn1"
	"errors"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidAuthorityInfoAccess = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}
	oidAccessMethodOCSP    = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1}
)

// OCSPServerURL returns the first OCSP responder URL named in the
// authority information access extension, or "" when there is none.
func OCSPServerURL(cert *x509.Certificate) (string, error) {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(oidAuthorityInfoAccess) {
			continue
		}
		urls, err := parseAccessDescriptions(ext.Value, oidAccessMethodOCSP)
		if err != nil {
			return "", err
		}
		if len(urls) > 0 {
			return urls[0], nil
		}
	}
	return "", nil
}

// parseAccessDescriptions reads
//
//	AuthorityInfoAccessSyntax ::= SEQUENCE SIZE (1..MAX) OF AccessDescription
//	AccessDescription ::= SEQUENCE { accessMethod OBJECT IDENTIFIER,
//	                                 accessLocation GeneralName }
//
// returning uniformResourceIdentifier locations for method.
func parseAccessDescriptions(der []byte, method asn1.ObjectIdentifier) ([]string, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, errors.New("malformed authority information access extension")
	}

	var urls []string
	for !seq.Empty() {
		var desc cryptobyte.String
		var oid asn1.ObjectIdentifier
		if !seq.ReadASN1(&desc, cbasn1.SEQUENCE) || !desc.ReadASN1ObjectIdentifier(&oid) {
			return nil, errors.New("malformed access description")
		}
		var location cryptobyte.String
		var tag cbasn1.Tag
		if !desc.ReadAnyASN1(&location, &tag) {
			return nil, errors.New("malformed access location")
		}
		// uniformResourceIdentifier [6] IA5String
		if oid.Equal(method) && tag == cbasn1.Tag(6).ContextSpecific() {
			urls = append(urls, string(location))
		}
	}
	return urls, nil
}
