package verify

import (
	"context"

	"github.com/digitorus/pdftrust/common"
	"github.com/digitorus/pdftrust/log"
)

const (
	msgChangedAfterSigning  = "Document was changed after signing. This signature is no longer valid."
	msgEarlierCertification = "Document was certified earlier; later certification is not permitted"
)

// ApplyCertificationRules adjusts results, ordered oldest first, for the
// certification level of the newest signature:
//
//   - NoChanges: every earlier signature is invalidated.
//   - FormFilling or FormFillingAndAnnotation: earlier signatures must be
//     approval signatures. A certifying one is logged, and invalidated
//     only when strict is set.
//   - NotCertified: mixed levels are logged; nothing changes.
func ApplyCertificationRules(ctx context.Context, results []*Result, strict bool) {
	if len(results) == 0 {
		return
	}
	logger := log.GetLogger(ctx)
	last := results[len(results)-1]
	earlier := results[:len(results)-1]

	switch last.CertificationLevel {
	case common.NoChanges:
		for _, r := range earlier {
			invalidate(r, msgChangedAfterSigning)
			logger.Infof("signature %s invalidated by later no-changes certification", r.FieldName)
		}

	case common.FormFilling, common.FormFillingAndAnnotation:
		for _, r := range earlier {
			if !r.IsCertification() {
				continue
			}
			logger.Warnf("signature %s is %s but precedes a %s certification", r.FieldName, r.CertificationLevel, last.CertificationLevel)
			if strict {
				invalidate(r, msgEarlierCertification)
			}
		}

	case common.NotCertified:
		for _, r := range results {
			if r.IsCertification() {
				logger.Infof("mixed certification levels: %s is %s", r.FieldName, r.CertificationLevel)
				break
			}
		}
	}
}

// IsCertified reports whether any signature of src certifies the document.
func IsCertified(src common.Source) (bool, error) {
	records, err := src.ListSignatures()
	if err != nil {
		return false, &SourceError{Err: err}
	}
	for _, r := range records {
		if r.CertificationLevel.IsCertification() {
			return true, nil
		}
	}
	return false, nil
}
