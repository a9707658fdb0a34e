package extract

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	pdflib "github.com/digitorus/pdf"

	"github.com/digitorus/pdftrust/common"
)

// Signature is a signature field together with its signature dictionary.
type Signature struct {
	Field pdflib.Value
	Obj   pdflib.Value
	File  io.ReaderAt
}

// Object returns the underlying low-level PDF value for the signature dictionary.
func (s *Signature) Object() pdflib.Value {
	return s.Obj
}

// FieldName returns the partial name of the form field holding the signature.
func (s *Signature) FieldName() string {
	return s.Field.Key("T").Text()
}

// Name returns the name of the person or authority signing the document.
func (s *Signature) Name() string {
	return s.Obj.Key("Name").Text()
}

func (s *Signature) Reason() string {
	return s.Obj.Key("Reason").Text()
}

func (s *Signature) Location() string {
	return s.Obj.Key("Location").Text()
}

func (s *Signature) ContactInfo() string {
	return s.Obj.Key("ContactInfo").Text()
}

// SigningTime returns the claimed signing time from /M, or nil when it is
// absent or malformed.
func (s *Signature) SigningTime() *time.Time {
	m := s.Obj.Key("M")
	if m.IsNull() {
		return nil
	}
	t, err := parseDate(m.Text())
	if err != nil {
		return nil
	}
	return &t
}

// Filter returns the name of the preferred signature handler.
func (s *Signature) Filter() string {
	return s.Obj.Key("Filter").Name()
}

// SubFilter returns the encoding format of the signature.
func (s *Signature) SubFilter() string {
	return s.Obj.Key("SubFilter").Name()
}

// Contents returns the raw PKCS#7/CMS signature envelope.
func (s *Signature) Contents() []byte {
	return []byte(s.Obj.Key("Contents").RawString())
}

// ByteRange returns the array of byte offsets that define the range(s) of the file covered by the signature.
func (s *Signature) ByteRange() []int64 {
	br := s.Obj.Key("ByteRange")
	if br.IsNull() || br.Len() == 0 {
		return nil
	}

	ranges := make([]int64, 0, br.Len())
	for i := 0; i < br.Len(); i++ {
		ranges = append(ranges, br.Index(i).Int64())
	}
	return ranges
}

// CertificationLevel returns the DocMDP permission of a certifying
// signature, or NotCertified for an approval signature.
func (s *Signature) CertificationLevel() common.CertificationLevel {
	refs := s.Obj.Key("Reference")
	if refs.IsNull() || refs.Kind() != pdflib.Array {
		return common.NotCertified
	}
	for i := 0; i < refs.Len(); i++ {
		ref := refs.Index(i)
		if ref.Key("TransformMethod").Name() != "DocMDP" {
			continue
		}
		// P defaults to 2 when TransformParams or P is missing.
		return common.CertificationLevelFromP(ref.Key("TransformParams").Key("P").Int64())
	}
	return common.NotCertified
}

// SignedData returns a reader that provides the actual bytes of the document covered by the signature.
func (s *Signature) SignedData() (io.Reader, error) {
	ranges := s.ByteRange()
	if len(ranges) == 0 || len(ranges)%2 != 0 {
		return nil, errors.New("invalid or missing ByteRange")
	}

	return &ByteRangeReader{
		File:   s.File,
		Ranges: ranges,
	}, nil
}

// checkByteRange rejects ranges that are negative, overlapping or reach
// past size.
func checkByteRange(ranges []int64, size int64) error {
	if len(ranges) == 0 || len(ranges)%2 != 0 {
		return errors.New("invalid or missing ByteRange")
	}
	var prevEnd int64
	for i := 0; i < len(ranges); i += 2 {
		start, length := ranges[i], ranges[i+1]
		if start < prevEnd || length < 0 {
			return fmt.Errorf("ByteRange entry %d is out of order", i/2)
		}
		if start+length > size {
			return fmt.Errorf("ByteRange entry %d ends at %d past end of file (%d)", i/2, start+length, size)
		}
		prevEnd = start + length
	}
	return nil
}

// Iter returns an iterator over all signature dictionaries in the PDF reader.
func Iter(rdr *pdflib.Reader, file io.ReaderAt) iter.Seq2[*Signature, error] {
	return func(yield func(*Signature, error) bool) {
		root := rdr.Trailer().Key("Root")
		acroForm := root.Key("AcroForm")

		sigFlags := acroForm.Key("SigFlags")
		if sigFlags.IsNull() {
			return
		}

		fields := acroForm.Key("Fields")

		var traverse func(pdflib.Value) bool
		traverse = func(arr pdflib.Value) bool {
			if arr.IsNull() || arr.Kind() != pdflib.Array {
				return true
			}
			for i := 0; i < arr.Len(); i++ {
				field := arr.Index(i)

				if field.Key("FT").Name() == "Sig" {
					v := field.Key("V")
					sigType := v.Key("Type").Name()
					isSig := sigType == "Sig" || sigType == "DocTimeStamp" ||
						(!v.Key("Filter").IsNull() && !v.Key("Contents").IsNull())

					if isSig && !yield(&Signature{Field: field, Obj: v, File: file}, nil) {
						return false
					}
				}

				kids := field.Key("Kids")
				if !kids.IsNull() && !traverse(kids) {
					return false
				}
			}
			return true
		}

		traverse(fields)
	}
}

// ByteRangeReader implements io.Reader to look like a continuous stream
// over the non-contiguous byte ranges.
type ByteRangeReader struct {
	File      io.ReaderAt
	Ranges    []int64
	rangeIdx  int
	readInCur int64
}

func (r *ByteRangeReader) Read(p []byte) (n int, err error) {
	if r.rangeIdx >= len(r.Ranges) {
		return 0, io.EOF
	}

	totalRead := 0
	for totalRead < len(p) && r.rangeIdx < len(r.Ranges) {
		start := r.Ranges[r.rangeIdx]
		length := r.Ranges[r.rangeIdx+1]

		remainingInCurrent := length - r.readInCur
		if remainingInCurrent <= 0 {
			r.rangeIdx += 2
			r.readInCur = 0
			continue
		}

		toRead := int64(len(p) - totalRead)
		if toRead > remainingInCurrent {
			toRead = remainingInCurrent
		}

		bytesRead, readErr := r.File.ReadAt(p[totalRead:totalRead+int(toRead)], start+r.readInCur)
		if bytesRead > 0 {
			totalRead += bytesRead
			r.readInCur += int64(bytesRead)
		}

		if readErr != nil {
			if readErr == io.EOF && r.readInCur == length {
				r.rangeIdx += 2
				r.readInCur = 0
				continue
			}
			return totalRead, readErr
		}
	}

	if totalRead == 0 && r.rangeIdx >= len(r.Ranges) {
		return 0, io.EOF
	}

	return totalRead, nil
}
