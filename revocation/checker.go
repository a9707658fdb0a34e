package revocation

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/digitorus/pdftrust/log"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 5 * time.Second

	maxResponseSize = 1 << 20
)

// CheckError describes why a live query produced no answer.
type CheckError struct {
	Reason Reason
	URL    string
	Err    error
}

func (e *CheckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("OCSP query to %s failed (%s): %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("OCSP query to %s failed (%s)", e.URL, e.Reason)
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// Options configures a Checker.
type Options struct {
	// Live enables the network query after embedded evidence is exhausted.
	Live           bool
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// HTTPClient replaces the client built from the timeouts.
	HTTPClient *http.Client
}

// Checker decides the revocation status of a certificate.
type Checker struct {
	opts   Options
	client *http.Client
}

// NewChecker returns a Checker. Zero timeouts take the defaults.
func NewChecker(opts Options) *Checker {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext,
				TLSHandshakeTimeout:   opts.ConnectTimeout,
				ResponseHeaderTimeout: opts.ReadTimeout,
			},
		}
	}
	return &Checker{opts: opts, client: client}
}

// Check consults, in order, OCSP responses embedded in the signature,
// CRLs embedded in the signature and finally the responder named by the
// certificate. Failures never escape; they become Unknown states.
func (c *Checker) Check(ctx context.Context, cert, issuer *x509.Certificate, embedded *InfoArchival) Status {
	logger := log.GetLogger(ctx)

	if embedded != nil && len(embedded.OCSP) > 0 {
		if resp, ok := embedded.embeddedOCSP(cert, issuer); ok && resp.Status == ocsp.Revoked {
			at := resp.RevokedAt
			return Status{State: Revoked, Source: SourceEmbeddedOCSP, RevokedAt: &at}
		}
		logger.Debugf("revocation for %s accepted from embedded OCSP response", cert.Subject)
		return Status{State: Valid, Source: SourceEmbeddedOCSP}
	}

	if embedded != nil && len(embedded.CRL) > 0 {
		if at, revoked := embedded.revokedByCRL(cert, issuer); revoked {
			return Status{State: Revoked, Source: SourceEmbeddedCRL, RevokedAt: at}
		}
		logger.Debugf("revocation for %s accepted from embedded CRL", cert.Subject)
		return Status{State: Valid, Source: SourceEmbeddedCRL}
	}

	if !c.opts.Live {
		return Status{State: NotChecked, Reason: ReasonDisabled}
	}

	url, err := OCSPServerURL(cert)
	if err != nil {
		logger.Warnf("unreadable authority information access in %s: %v", cert.Subject, err)
		return Status{State: Unknown, Reason: ReasonProtocol, Err: err}
	}
	if url == "" {
		return Status{State: Unknown, Reason: ReasonNoResponder}
	}
	if issuer == nil {
		return Status{State: Unknown, Reason: ReasonNoIssuer}
	}

	resp, err := c.queryOCSP(ctx, url, cert, issuer)
	if err != nil {
		var ce *CheckError
		reason := ReasonProtocol
		if errors.As(err, &ce) {
			reason = ce.Reason
		}
		logger.Warnf("live OCSP check for %s failed: %v", cert.Subject, err)
		return Status{State: Unknown, Reason: reason, Err: err}
	}

	switch resp.Status {
	case ocsp.Good:
		return Status{State: Valid, Source: SourceLiveOCSP}
	case ocsp.Revoked:
		at := resp.RevokedAt
		return Status{State: Revoked, Source: SourceLiveOCSP, RevokedAt: &at}
	}
	return Status{State: Unknown, Reason: ReasonResponderUnknown}
}

func (c *Checker) queryOCSP(ctx context.Context, url string, cert, issuer *x509.Certificate) (*ocsp.Response, error) {
	req, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: crypto.SHA1})
	if err != nil {
		return nil, &CheckError{Reason: ReasonProtocol, URL: url, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout+c.opts.ReadTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req))
	if err != nil {
		return nil, &CheckError{Reason: ReasonProtocol, URL: url, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/ocsp-request")
	httpReq.Header.Set("Accept", "application/ocsp-response")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &CheckError{Reason: classify(err), URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &CheckError{Reason: ReasonProtocol, URL: url, Err: fmt.Errorf("responder returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &CheckError{Reason: classify(err), URL: url, Err: err}
	}

	parsed, err := ocsp.ParseResponseForCert(body, cert, issuer)
	if err != nil {
		return nil, &CheckError{Reason: ReasonProtocol, URL: url, Err: err}
	}
	return parsed, nil
}

func classify(err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimeout
	}
	return ReasonNetwork
}
