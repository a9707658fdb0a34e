package verify

import (
	"crypto/x509"
	"encoding/asn1"
	"testing"
)

func TestKeyUsageWarnings(t *testing.T) {
	tests := []struct {
		name string
		cert *x509.Certificate
		want int
	}{
		{"unrestricted", &x509.Certificate{}, 0},
		{"digital signature", &x509.Certificate{KeyUsage: x509.KeyUsageDigitalSignature}, 0},
		{"non repudiation only", &x509.Certificate{KeyUsage: x509.KeyUsageContentCommitment}, 0},
		{"cert sign only", &x509.Certificate{KeyUsage: x509.KeyUsageCertSign}, 1},
		{"document signing", &x509.Certificate{ExtKeyUsage: []x509.ExtKeyUsage{documentSigningEKU}}, 0},
		{"document signing as unknown", &x509.Certificate{UnknownExtKeyUsage: []asn1.ObjectIdentifier{{1, 3, 6, 1, 5, 5, 7, 3, 36}}}, 0},
		{"server auth", &x509.Certificate{ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}}, 1},
		{"both wrong", &x509.Certificate{KeyUsage: x509.KeyUsageCRLSign, ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keyUsageWarnings(tt.cert)
			if len(got) != tt.want {
				t.Errorf("keyUsageWarnings() = %v, want %d warnings", got, tt.want)
			}
		})
	}
}
