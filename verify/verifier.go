// Package verify decides, for every signature of a document, whether the
// signed bytes are intact, the signature verifies, the signer chains to a
// trusted anchor and the certificate is unrevoked, then applies the
// certification rules that tie the signatures of one document together.
package verify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/digitorus/pdftrust/certs"
	"github.com/digitorus/pdftrust/chain"
	"github.com/digitorus/pdftrust/common"
	"github.com/digitorus/pdftrust/log"
	"github.com/digitorus/pdftrust/revocation"
)

// AnchorSource supplies the trust anchors for one verification pass.
type AnchorSource interface {
	AllAnchors(ctx context.Context) *certs.Set
}

// StaticAnchors is an AnchorSource over a fixed set.
type StaticAnchors struct {
	Set *certs.Set
}

func (s StaticAnchors) AllAnchors(context.Context) *certs.Set {
	return s.Set
}

// ProgressListener receives human readable progress messages.
type ProgressListener func(message string)

// Option configures a Verifier.
type Option func(*Verifier)

// WithRevocationChecker replaces the default live OCSP checker.
func WithRevocationChecker(c RevocationChecker) Option {
	return func(v *Verifier) { v.checker = c }
}

// WithClock sets the source of the validation instant.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithParallelism sets how many signatures are verified at once.
func WithParallelism(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.parallelism = n
		}
	}
}

// WithStrictCertification invalidates certifying signatures that precede a
// form filling certification.
func WithStrictCertification(strict bool) Option {
	return func(v *Verifier) { v.strict = strict }
}

// WithMaxChainIterations caps chain completion.
func WithMaxChainIterations(n int) Option {
	return func(v *Verifier) { v.maxIter = n }
}

// WithProgressListener installs a progress listener.
func WithProgressListener(l ProgressListener) Option {
	return func(v *Verifier) { v.listener = l }
}

// WithLanguage selects the language of progress messages.
func WithLanguage(tag language.Tag) Option {
	return func(v *Verifier) { v.printer = message.NewPrinter(tag) }
}

// Verifier verifies every signature of a document.
type Verifier struct {
	anchors     AnchorSource
	checker     RevocationChecker
	now         func() time.Time
	parallelism int
	strict      bool
	maxIter     int
	printer     *message.Printer

	mu       sync.Mutex
	listener ProgressListener
}

// New returns a Verifier drawing anchors from anchors. Without
// WithRevocationChecker, live OCSP queries use the default timeouts.
func New(anchors AnchorSource, opts ...Option) *Verifier {
	v := &Verifier{
		anchors:     anchors,
		now:         time.Now,
		parallelism: 1,
		maxIter:     chain.DefaultMaxIterations,
		printer:     message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.checker == nil {
		v.checker = revocation.NewChecker(revocation.Options{Live: true})
	}
	return v
}

// SetProgressListener replaces the progress listener; nil disables it.
func (v *Verifier) SetProgressListener(l ProgressListener) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listener = l
}

func (v *Verifier) notify(key string, args ...interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.listener != nil {
		v.listener(v.printer.Sprintf(key, args...))
	}
}

func (v *Verifier) check(anchors *certs.Set, dss common.SecurityStore) *signatureCheck {
	return &signatureCheck{
		anchors:  anchors,
		dss:      dss,
		now:      v.now(),
		maxIter:  v.maxIter,
		checker:  v.checker,
		progress: v.notify,
	}
}

// VerifyAll lists the signatures of src, verifies each and applies the
// certification rules. Results are ordered oldest revision first. A
// failure inside one signature is reported in its result; only a failure
// to list the signatures or a cancelled ctx fails the call.
func (v *Verifier) VerifyAll(ctx context.Context, src common.Source) ([]*Result, error) {
	logger := log.GetLogger(ctx)

	records, err := src.ListSignatures()
	if err != nil {
		return nil, &SourceError{Err: err}
	}
	results := make([]*Result, len(records))
	if len(records) == 0 {
		return results, nil
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Revision < records[j].Revision })

	dss, _ := src.(common.SecurityStore)
	sc := v.check(v.anchors.AllAnchors(ctx), dss)

	var g errgroup.Group
	g.SetLimit(v.parallelism)
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		v.notify("Verifying signature %d of %d...", i+1, len(records))
		rec := &records[i]
		g.Go(func() error {
			results[i] = v.isolated(ctx, sc, rec)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.notify("Applying certification rules...")
	ApplyCertificationRules(ctx, results, v.strict)

	for _, r := range results {
		logger.Infof("signature %s: %s (%s)", r.FieldName, r.OverallStatus(), r.CertificationLevel)
	}
	return results, nil
}

// VerifySignature verifies a single record against the current anchors.
// Certification rules are not applied.
func (v *Verifier) VerifySignature(ctx context.Context, rec *common.SignatureRecord, dss common.SecurityStore) *Result {
	return v.isolated(ctx, v.check(v.anchors.AllAnchors(ctx), dss), rec)
}

// isolated confines a panic to the result of the signature that caused it.
func (v *Verifier) isolated(ctx context.Context, sc *signatureCheck, rec *common.SignatureRecord) (r *Result) {
	defer func() {
		if p := recover(); p != nil {
			log.GetLogger(ctx).Errorf("verification of %s panicked: %v\n%s", rec.FieldName, p, debug.Stack())
			err := &ValidationError{Msg: fmt.Sprintf("Verification error: %v", p)}
			b := newResultBuilder(rec)
			b.fail(err.Error())
			b.r.Err = err
			r = b.build()
		}
	}()
	return sc.verify(ctx, rec)
}
