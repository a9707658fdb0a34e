package verify

import (
	"context"
	"crypto/x509"
	"errors"
	"time"

	"github.com/digitorus/pdftrust/certs"
	"github.com/digitorus/pdftrust/chain"
	"github.com/digitorus/pdftrust/common"
	"github.com/digitorus/pdftrust/log"
	"github.com/digitorus/pdftrust/revocation"
)

// RevocationChecker decides the revocation status of cert. Implementations
// must not fail: every problem is reported as an Unknown status.
type RevocationChecker interface {
	Check(ctx context.Context, cert, issuer *x509.Certificate, embedded *revocation.InfoArchival) revocation.Status
}

// signatureCheck carries what one pass shares between signatures.
type signatureCheck struct {
	anchors  *certs.Set
	dss      common.SecurityStore
	now      time.Time
	maxIter  int
	checker  RevocationChecker
	progress func(key string, args ...interface{})
}

// verify runs the per-signature pipeline. Checks are independent: a
// failing check records its message and the remaining checks still run.
// A cancelled ctx stops the pipeline between phases and the partial
// result is returned.
func (sc *signatureCheck) verify(ctx context.Context, rec *common.SignatureRecord) *Result {
	logger := log.GetLogger(ctx)
	b := newResultBuilder(rec)

	if rec.Revision > rec.TotalRevisions {
		logger.Warnf("signature %s claims revision %d of %d", rec.FieldName, rec.Revision, rec.TotalRevisions)
		b.r.TotalRevisions = rec.Revision
	}

	env, err := parseEnvelope(rec.Contents, rec.SignedContent, rec.SubFilter)
	if err != nil {
		logger.Warnf("signature %s: %v", rec.FieldName, err)
		b.fail("Unable to extract signature data")
		return b.build()
	}
	if env.signingTime != nil {
		b.r.SigningTime = env.signingTime
	}
	if env.signer != nil {
		b.r.SignerName = certs.CommonName(env.signer.Subject)
	}

	b.r.DocumentTimestamp = env.docTimestamp

	sc.progress("Verifying signature validity...")
	if err := env.p7.Verify(); err != nil {
		b.r.Err = &InvalidSignatureError{Msg: "cryptographic verification failed", Err: err}
		logger.Infof("signature %s: %v", rec.FieldName, b.r.Err)
		b.fail("This signature is not valid")
	} else if env.imprintErr != nil {
		b.r.Err = &InvalidSignatureError{Msg: "document timestamp does not cover the signed bytes", Err: env.imprintErr}
		logger.Infof("signature %s: %v", rec.FieldName, b.r.Err)
		b.fail("Document timestamp does not match the document")
	} else {
		b.r.SignatureValid = true
	}
	if err := ctx.Err(); err != nil {
		return b.build()
	}
	sc.progress("Checking document integrity...")
	b.r.DocumentIntact = b.r.SignatureValid && (b.r.Revision < b.r.TotalRevisions || rec.CoversWholeDocument)
	if !b.r.DocumentIntact {
		b.fail("Document was changed after signing")
	} else if b.r.Revision < b.r.TotalRevisions {
		b.info("Signature is valid. Document has additional signatures or modifications after this signature.")
	}

	b.r.HashAlgorithm = env.hashName()
	sc.checkTimestamp(b, env)

	signer := env.signer
	if signer == nil {
		b.fail("No certificate found in signature")
		sc.checkLongTermValidation(b, env, nil)
		return b.build()
	}
	info := newCertificateInfo(signer)
	b.r.SignerCertificate = &info

	sc.progress("Checking certificate...")
	sc.checkValidityPeriod(b, signer)
	if !env.docTimestamp {
		for _, w := range keyUsageWarnings(signer) {
			b.warn(w)
		}
	}

	if err := ctx.Err(); err != nil {
		return b.build()
	}
	sc.progress("Verifying certificate trust...")
	path := sc.checkTrust(ctx, b, env)
	if err := ctx.Err(); err != nil {
		return b.build()
	}

	sc.progress("Checking revocation status (OCSP)...")
	issuer := env.issuerOf(signer)
	if issuer == nil && path != nil && len(path.Chain) > 1 {
		issuer = path.Chain[1]
	}
	sc.checkRevocation(ctx, b, signer, issuer, env.archival)

	sc.checkLongTermValidation(b, env, signer)
	return b.build()
}

func (sc *signatureCheck) checkValidityPeriod(b *resultBuilder, cert *x509.Certificate) {
	switch {
	case sc.now.After(cert.NotAfter):
		b.fail("Certificate has expired")
		return
	case sc.now.Before(cert.NotBefore):
		b.fail("Certificate is not yet valid")
		return
	}
	b.r.CertificateValid = true

	if st := b.r.SigningTime; st != nil {
		if st.Before(cert.NotBefore) || st.After(cert.NotAfter) {
			b.warn("Certificate was not valid when document was signed")
		} else {
			b.info("Certificate was valid at signing time")
		}
	}
}

func (sc *signatureCheck) checkTrust(ctx context.Context, b *resultBuilder, env *envelope) *chain.Path {
	v := &chain.Validator{Anchors: sc.anchors, MaxIterations: sc.maxIter, CurrentTime: sc.now}
	path, err := v.Validate(ctx, env.chain)
	if err != nil {
		var f *chain.ValidationFailure
		if errors.As(err, &f) {
			b.fail(f.Message())
		} else {
			b.fail("Certificate issuer is not trusted")
		}
		log.GetLogger(ctx).Infof("certificate trust verification failed: %v", err)
		for _, c := range env.chain {
			b.r.Chain = append(b.r.Chain, newCertificateInfo(c))
		}
		return nil
	}

	b.r.CertificateTrusted = true
	b.r.DirectTrust = path.Direct
	b.r.TrustAnchor = certs.CommonName(path.Anchor.Subject)
	for _, c := range path.Chain {
		b.r.Chain = append(b.r.Chain, newCertificateInfo(c))
	}
	if path.Direct {
		b.info("Certificate is directly trusted")
	}
	return path
}

func (sc *signatureCheck) checkRevocation(ctx context.Context, b *resultBuilder, cert, issuer *x509.Certificate, archival *revocation.InfoArchival) {
	st := sc.checker.Check(ctx, cert, issuer, archival)
	b.r.RevocationStatus = st

	switch st.State {
	case revocation.Valid:
		switch st.Source {
		case revocation.SourceEmbeddedOCSP:
			b.info("Revocation checked via embedded OCSP")
		case revocation.SourceEmbeddedCRL:
			b.info("Revocation checked via embedded CRL")
		default:
			b.info("Revocation checked via live OCSP")
		}
	case revocation.Revoked:
		b.r.CertificateRevoked = true
		b.fail("Certificate has been revoked")
	case revocation.Unknown:
		if st.Reason == revocation.ReasonNetwork || st.Reason == revocation.ReasonTimeout {
			b.warn("Could not check if certificate was revoked (network error)")
		} else {
			b.warn("Could not check if certificate was revoked")
		}
	default:
		b.warn("Could not check if certificate was revoked")
	}
}

func (sc *signatureCheck) checkTimestamp(b *resultBuilder, env *envelope) {
	switch {
	case env.timestamp == nil && env.timestampErr == nil:
		b.info("Timestamp not enabled in this signature")
	case env.docTimestamp && (env.timestampErr != nil || !b.r.SignatureValid):
		b.warn("Document timestamp could not be verified")
	case env.timestampErr != nil:
		b.warn("Timestamp could not be verified")
	default:
		b.r.TimestampValid = true
		t := env.timestamp.Time
		b.r.TimestampTime = &t
		b.r.TimestampAuthority = "Timestamp Authority"
		if len(env.timestamp.Certificates) > 0 {
			b.r.TimestampAuthority = certs.CommonName(env.timestamp.Certificates[0].Subject)
		}
	}
}

func (sc *signatureCheck) checkLongTermValidation(b *resultBuilder, env *envelope, signer *x509.Certificate) {
	ltv := !env.archival.IsEmpty()
	if !ltv && signer != nil && sc.dss != nil {
		ltv = sc.dss.HasRevocationEvidenceFor(signer)
	}
	b.r.HasLongTermValidation = ltv
	if !ltv {
		b.info("Long term validation not enabled in this signature")
	}
}
