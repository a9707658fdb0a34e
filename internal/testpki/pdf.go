package testpki

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"
)

const contentsCapacity = 8192

// SignatureField describes one signature added by PDF.AddSignature.
type SignatureField struct {
	FieldName   string
	Name        string
	Reason      string
	Location    string
	ContactInfo string
	SigningTime time.Time
	// CertificationLevel is the DocMDP /P value; zero adds an approval
	// signature.
	CertificationLevel int
	// Sign returns the CMS envelope over the covered bytes. A nil Sign
	// leaves the contents zeroed.
	Sign func(covered []byte) []byte
}

// DSS holds the document security store contents written by AddDSS.
type DSS struct {
	OCSPs [][]byte
	CRLs  [][]byte
	VRI   bool
}

type object struct {
	num  int
	body []byte
}

// PDF writes a minimal document and appends incremental updates to it.
type PDF struct {
	T        testing.TB
	buf      []byte
	nextObj  int
	prevXref int
	fields   []int
	perms    int
	dss      int
}

// NewPDF returns a one page document with an empty catalog.
func NewPDF(t testing.TB) *PDF {
	p := &PDF{T: t, buf: []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n"), nextObj: 4, prevXref: -1}
	p.writeRevision([]object{
		{1, []byte("<< /Type /Catalog /Pages 2 0 R >>")},
		{2, []byte("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")},
		{3, []byte("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")},
	})
	return p
}

// Bytes returns the document written so far.
func (p *PDF) Bytes() []byte {
	return append([]byte{}, p.buf...)
}

func (p *PDF) catalog() object {
	var b strings.Builder
	b.WriteString("<< /Type /Catalog /Pages 2 0 R")
	if len(p.fields) > 0 {
		b.WriteString(" /AcroForm << /Fields [")
		for i, f := range p.fields {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d 0 R", f)
		}
		b.WriteString("] /SigFlags 3 >>")
	}
	if p.perms > 0 {
		fmt.Fprintf(&b, " /Perms << /DocMDP %d 0 R >>", p.perms)
	}
	if p.dss > 0 {
		fmt.Fprintf(&b, " /DSS %d 0 R", p.dss)
	}
	b.WriteString(" >>")
	return object{1, []byte(b.String())}
}

// AddSignature appends an incremental update holding a new signed field.
func (p *PDF) AddSignature(f SignatureField) {
	fieldNum, sigNum := p.nextObj, p.nextObj+1
	p.nextObj += 2
	p.fields = append(p.fields, fieldNum)
	if f.CertificationLevel > 0 {
		p.perms = sigNum
	}
	if f.FieldName == "" {
		f.FieldName = fmt.Sprintf("Signature%d", len(p.fields))
	}

	var sig strings.Builder
	sig.WriteString("<< /Type /Sig /Filter /Adobe.PPKLite /SubFilter /adbe.pkcs7.detached")
	sig.WriteString(" /ByteRange [0 0000000000 0000000000 0000000000]")
	sig.WriteString(" /Contents <" + strings.Repeat("0", contentsCapacity*2) + ">")
	for _, kv := range [][2]string{{"Name", f.Name}, {"Reason", f.Reason}, {"Location", f.Location}, {"ContactInfo", f.ContactInfo}} {
		if kv[1] != "" {
			fmt.Fprintf(&sig, " /%s (%s)", kv[0], kv[1])
		}
	}
	if !f.SigningTime.IsZero() {
		fmt.Fprintf(&sig, " /M (D:%sZ)", f.SigningTime.UTC().Format("20060102150405"))
	}
	if f.CertificationLevel > 0 {
		fmt.Fprintf(&sig, " /Reference [<< /Type /SigRef /TransformMethod /DocMDP /TransformParams << /Type /TransformParams /P %d /V /1.2 >> >>]", f.CertificationLevel)
	}
	sig.WriteString(" >>")

	field := fmt.Sprintf("<< /FT /Sig /T (%s) /V %d 0 R /Type /Annot /Subtype /Widget /Rect [0 0 0 0] /P 3 0 R >>", f.FieldName, sigNum)

	start := len(p.buf)
	p.writeRevision([]object{p.catalog(), {fieldNum, []byte(field)}, {sigNum, []byte(sig.String())}})
	end := len(p.buf)

	rev := p.buf[start:end]
	cIdx := bytes.Index(rev, []byte("/Contents <"))
	contentsStart := start + cIdx + len("/Contents ")
	contentsEnd := contentsStart + contentsCapacity*2 + 2

	placeholder := []byte("[0 0000000000 0000000000 0000000000]")
	brIdx := start + bytes.Index(rev, placeholder)
	byteRange := fmt.Sprintf("[0 %010d %010d %010d]", contentsStart, contentsEnd, end-contentsEnd)
	copy(p.buf[brIdx:], byteRange)

	if f.Sign == nil {
		return
	}
	covered := append(append([]byte{}, p.buf[:contentsStart]...), p.buf[contentsEnd:end]...)
	cms := f.Sign(covered)
	if len(cms) > contentsCapacity {
		p.T.Fatalf("signature of %d bytes exceeds placeholder", len(cms))
	}
	hex.Encode(p.buf[contentsStart+1:], cms)
}

// AddDSS appends an incremental update with a document security store.
func (p *PDF) AddDSS(d DSS) {
	var objs []object
	stream := func(data []byte) int {
		num := p.nextObj
		p.nextObj++
		body := fmt.Sprintf("<< /Length %d >>\nstream\n", len(data)) + string(data) + "\nendstream"
		objs = append(objs, object{num, []byte(body)})
		return num
	}
	refs := func(list [][]byte) string {
		var parts []string
		for _, data := range list {
			parts = append(parts, fmt.Sprintf("%d 0 R", stream(data)))
		}
		return strings.Join(parts, " ")
	}

	var b strings.Builder
	b.WriteString("<< /Type /DSS")
	if len(d.OCSPs) > 0 {
		b.WriteString(" /OCSPs [" + refs(d.OCSPs) + "]")
	}
	if len(d.CRLs) > 0 {
		b.WriteString(" /CRLs [" + refs(d.CRLs) + "]")
	}
	if d.VRI {
		b.WriteString(" /VRI << /0000000000000000000000000000000000000000 << /Type /VRI >> >>")
	}
	b.WriteString(" >>")

	p.dss = p.nextObj
	p.nextObj++
	objs = append(objs, object{p.dss, []byte(b.String())})
	p.writeRevision(append([]object{p.catalog()}, objs...))
}

// AddUpdate appends an incremental update that changes no signature.
func (p *PDF) AddUpdate() {
	num := p.nextObj
	p.nextObj++
	p.writeRevision([]object{{num, []byte("<< /Type /Annot /Subtype /Text /Rect [0 0 10 10] /Contents (note) >>")}})
}

func (p *PDF) writeRevision(objs []object) {
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = len(p.buf)
		p.buf = append(p.buf, fmt.Sprintf("%d 0 obj\n", o.num)...)
		p.buf = append(p.buf, o.body...)
		p.buf = append(p.buf, "\nendobj\n"...)
	}

	xref := len(p.buf)
	p.buf = append(p.buf, "xref\n"...)
	if p.prevXref < 0 {
		p.buf = append(p.buf, "0 1\n0000000000 65535 f \n"...)
	}
	for i, o := range objs {
		p.buf = append(p.buf, fmt.Sprintf("%d 1\n%010d 00000 n \n", o.num, offsets[i])...)
	}
	p.buf = append(p.buf, fmt.Sprintf("trailer\n<< /Size %d /Root 1 0 R", p.nextObj)...)
	if p.prevXref >= 0 {
		p.buf = append(p.buf, fmt.Sprintf(" /Prev %d", p.prevXref)...)
	}
	p.buf = append(p.buf, fmt.Sprintf(" >>\nstartxref\n%d\n%%%%EOF\n", xref)...)
	p.prevXref = xref
}
