// Package extract reads the signatures of a PDF document and hands them to
// the verifier as common.SignatureRecord values.
package extract

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sort"
	"sync"

	pdflib "github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"

	"github.com/digitorus/pdftrust/common"
	"github.com/digitorus/pdftrust/log"
)

// ErrNoSignatures is returned by callers that require at least one
// signature; ListSignatures itself returns an empty list.
var ErrNoSignatures = errors.New("no digital signature in document")

// Document is an opened PDF. It implements common.Source and
// common.SecurityStore and is safe for concurrent reads.
type Document struct {
	rdr    *pdflib.Reader
	file   io.ReaderAt
	size   int64
	closer io.Closer
	logger log.Logger

	dssOnce sync.Once
	dss     *securityStore
}

// Open opens the PDF at path. The caller must Close the document.
func Open(ctx context.Context, path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	d, err := OpenReader(ctx, f, fi.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	d.closer = f
	return d, nil
}

// OpenBytes opens an in-memory PDF.
func OpenBytes(ctx context.Context, data []byte) (*Document, error) {
	return OpenReader(ctx, filebuffer.New(data), int64(len(data)))
}

// OpenReader opens a PDF of size bytes read from r.
func OpenReader(ctx context.Context, r io.ReaderAt, size int64) (d *Document, err error) {
	defer func() {
		if p := recover(); p != nil {
			d, err = nil, fmt.Errorf("failed to open PDF: %v", p)
		}
	}()
	rdr, err := pdflib.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &Document{rdr: rdr, file: r, size: size, logger: log.GetLogger(ctx)}, nil
}

// Close releases the underlying file when the document was opened by path.
func (d *Document) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// Size returns the length of the document in bytes.
func (d *Document) Size() int64 {
	return d.size
}

// Signatures iterates over the signature dictionaries of the document in
// form field order.
func (d *Document) Signatures() iter.Seq2[*Signature, error] {
	return Iter(d.rdr, d.file)
}

// ListSignatures returns one record per signature, ordered by the end of
// the signed byte range. Revisions are numbered from 1 in that order; the
// total counts one extra revision when bytes follow the last signature.
func (d *Document) ListSignatures() (records []common.SignatureRecord, err error) {
	logger := d.logger
	defer func() {
		if p := recover(); p != nil {
			records, err = nil, fmt.Errorf("malformed signature structure: %v", p)
		}
	}()

	for sig, err := range d.Signatures() {
		if err != nil {
			return nil, err
		}
		rec := common.SignatureRecord{
			FieldName:          sig.FieldName(),
			Name:               sig.Name(),
			Reason:             sig.Reason(),
			Location:           sig.Location(),
			ContactInfo:        sig.ContactInfo(),
			SigningTime:        sig.SigningTime(),
			Filter:             sig.Filter(),
			SubFilter:          sig.SubFilter(),
			ByteRange:          sig.ByteRange(),
			Contents:           sig.Contents(),
			CertificationLevel: sig.CertificationLevel(),
		}
		if err := checkByteRange(rec.ByteRange, d.size); err != nil {
			logger.Warnf("signature %s: %v", rec.FieldName, err)
		} else if r, err := sig.SignedData(); err == nil {
			if rec.SignedContent, err = io.ReadAll(r); err != nil {
				logger.Warnf("signature %s: reading signed bytes: %v", rec.FieldName, err)
				rec.SignedContent = nil
			}
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SignedEnd() < records[j].SignedEnd()
	})
	total := len(records)
	if total > 0 && records[total-1].SignedEnd() != d.size {
		total++
	}
	for i := range records {
		records[i].Revision = i + 1
		records[i].TotalRevisions = total
		records[i].CoversWholeDocument = records[i].SignedEnd() == d.size
	}
	logger.Debugf("found %d signatures in %d revisions", len(records), total)
	return records, nil
}

// HasRevocationEvidenceFor reports whether the document security store
// holds an OCSP response or CRL for cert, or any validation related
// information.
func (d *Document) HasRevocationEvidenceFor(cert *x509.Certificate) bool {
	d.dssOnce.Do(func() {
		d.dss = readSecurityStore(d.rdr, d.logger)
	})
	return d.dss.covers(cert)
}
