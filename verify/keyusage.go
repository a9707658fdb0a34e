package verify

import (
	"crypto/x509"
)

// documentSigningEKU is id-kp-documentSigning (1.3.6.1.5.5.7.3.36) per RFC 9336.
const documentSigningEKU = x509.ExtKeyUsage(36)

// keyUsageWarnings reports key usage bits and extended key usages that make
// cert unsuitable for signing documents. A certificate without an EKU
// extension is unrestricted.
func keyUsageWarnings(cert *x509.Certificate) []string {
	var warnings []string

	if cert.KeyUsage != 0 && cert.KeyUsage&(x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment) == 0 {
		warnings = append(warnings, "Certificate key usage does not permit digital signatures")
	}

	if len(cert.ExtKeyUsage) == 0 && len(cert.UnknownExtKeyUsage) == 0 {
		return warnings
	}
	for _, eku := range cert.ExtKeyUsage {
		switch eku {
		case x509.ExtKeyUsageAny, documentSigningEKU, x509.ExtKeyUsageEmailProtection, x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageCodeSigning:
			return warnings
		}
	}
	for _, oid := range cert.UnknownExtKeyUsage {
		// Some toolkits report document signing as unknown.
		if oid.String() == "1.3.6.1.5.5.7.3.36" {
			return warnings
		}
	}
	return append(warnings, "Certificate extended key usage is not intended for document signing")
}
