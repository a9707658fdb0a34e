package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/digitorus/pdftrust/extract"
	"github.com/digitorus/pdftrust/log"
	"github.com/digitorus/pdftrust/revocation"
	"github.com/digitorus/pdftrust/verify"
)

// ErrInvalidSignatures is returned when at least one signature is INVALID.
var ErrInvalidSignatures = errors.New("one or more signatures are invalid")

// DocumentReport is the JSON output for one file.
type DocumentReport struct {
	File       string           `json:"file"`
	Certified  bool             `json:"certified"`
	Signatures []*verify.Result `json:"signatures"`
	Statuses   []string         `json:"statuses"`
	Error      string           `json:"error,omitempty"`
}

type verifyFlags struct {
	json     bool
	noOCSP   bool
	strict   bool
	parallel int
}

func newVerifyCommand(a *app) *cobra.Command {
	var f verifyFlags
	cmd := &cobra.Command{
		Use:   "verify [flags] <input.pdf>...",
		Short: "Verify the signatures of PDF files",
		Long: `Verify every signature of each PDF file and print its overall status:
VALID, UNKNOWN (identity or revocation could not be established) or INVALID.
The command fails when any signature is INVALID or a file cannot be read.`,
		Example: `  pdftrust verify document.pdf
  pdftrust verify --no-ocsp --json contract.pdf
  pdftrust verify --strict --parallel 4 *.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVerify(cmd, f, args)
		},
	}
	cmd.Flags().BoolVar(&f.json, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&f.noOCSP, "no-ocsp", false, "do not query OCSP responders; use embedded revocation data only")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "invalidate certifying signatures followed by a later form filling certification")
	cmd.Flags().IntVar(&f.parallel, "parallel", 0, "signatures verified concurrently (default from config)")
	return cmd
}

func (a *app) verifier(cmd *cobra.Command, f verifyFlags) (*verify.Verifier, error) {
	ropts := a.cfg.RevocationOptions()
	if f.noOCSP {
		ropts.Live = false
	}
	parallel := a.cfg.Parallelism
	if f.parallel > 0 {
		parallel = f.parallel
	}
	tag, err := language.Parse(a.lang)
	if err != nil {
		return nil, fmt.Errorf("unknown language %q: %w", a.lang, err)
	}

	opts := []verify.Option{
		verify.WithRevocationChecker(revocation.NewChecker(ropts)),
		verify.WithParallelism(parallel),
		verify.WithStrictCertification(a.cfg.StrictCertification || f.strict),
		verify.WithMaxChainIterations(a.cfg.MaxChainIterations),
		verify.WithLanguage(tag),
	}
	if a.verbose {
		w := cmd.ErrOrStderr()
		opts = append(opts, verify.WithProgressListener(func(msg string) {
			fmt.Fprintln(w, msg)
		}))
	}
	return verify.New(a.store, opts...), nil
}

func (a *app) runVerify(cmd *cobra.Command, f verifyFlags, files []string) error {
	ctx := cmd.Context()
	logger := log.GetLogger(ctx)

	v, err := a.verifier(cmd, f)
	if err != nil {
		return err
	}

	var reports []DocumentReport
	var failed error
	for _, file := range files {
		report := DocumentReport{File: file}
		results, err := verifyFile(cmd, v, file, &report)
		if err != nil {
			logger.Errorf("%s: %v", file, err)
			report.Error = err.Error()
			failed = errors.Join(failed, fmt.Errorf("%s: %w", file, err))
		}
		for _, r := range results {
			status := r.OverallStatus()
			report.Statuses = append(report.Statuses, status.String())
			if status == verify.StatusInvalid && failed == nil {
				failed = ErrInvalidSignatures
			}
		}
		report.Signatures = results
		reports = append(reports, report)
	}

	out := cmd.OutOrStdout()
	if f.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			printReport(out, r)
		}
	}
	return failed
}

func verifyFile(cmd *cobra.Command, v *verify.Verifier, file string, report *DocumentReport) ([]*verify.Result, error) {
	doc, err := extract.Open(cmd.Context(), file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = doc.Close() }()

	results, err := v.VerifyAll(cmd.Context(), doc)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, extract.ErrNoSignatures
	}
	report.Certified, _ = verify.IsCertified(doc)
	return results, nil
}

func printReport(w io.Writer, r DocumentReport) {
	if r.Error != "" && len(r.Signatures) == 0 {
		fmt.Fprintf(w, "%s: %s\n", r.File, r.Error)
		return
	}
	kind := "signed"
	if r.Certified {
		kind = "certified"
	}
	fmt.Fprintf(w, "%s: %s, %d signature(s)\n", r.File, kind, len(r.Signatures))
	for i, s := range r.Signatures {
		fmt.Fprintf(w, "  [%d/%d] %s (%s): %s - %s\n", i+1, len(r.Signatures), s.FieldName, s.SignerName, s.OverallStatus(), s.StatusMessage())
		fmt.Fprintf(w, "        revision %d of %d, %s\n", s.Revision, s.TotalRevisions, s.CertificationLevel)
		fmt.Fprintf(w, "        revocation: %s\n", s.RevocationStatus)
		if s.TrustAnchor != "" {
			fmt.Fprintf(w, "        trusted by: %s\n", s.TrustAnchor)
		}
		if s.SigningTime != nil {
			fmt.Fprintf(w, "        signed at: %s\n", s.SigningTime.Format("2006-01-02 15:04:05 MST"))
		}
		for _, e := range s.Errors {
			fmt.Fprintf(w, "        error: %s\n", e)
		}
		for _, m := range s.Warnings {
			fmt.Fprintf(w, "        warning: %s\n", m)
		}
		for _, m := range s.Info {
			fmt.Fprintf(w, "        %s\n", strings.TrimSuffix(m, "."))
		}
	}
}
