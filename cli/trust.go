package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitorus/pdftrust/certs"
	"github.com/digitorus/pdftrust/truststore"
)

// AnchorInfo is the listing entry of one trust anchor.
type AnchorInfo struct {
	Alias       string    `json:"alias"`
	Source      string    `json:"source"`
	Subject     string    `json:"subject"`
	NotAfter    time.Time `json:"not_after"`
	Fingerprint string    `json:"sha256_fingerprint"`
}

func newTrustCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Manage trusted certificates",
	}
	cmd.AddCommand(newTrustAddCommand(a), newTrustRemoveCommand(a), newTrustListCommand(a))
	return cmd
}

func newTrustAddCommand(a *app) *cobra.Command {
	var alias string
	cmd := &cobra.Command{
		Use:   "add [--alias name] <certificate-file>",
		Short: "Trust the certificates in a PEM, DER or PKCS#7 file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if alias == "" {
				alias = filepath.Base(args[0])
			}
			added, err := a.store.AddAnchor(cmd.Context(), args[0], alias)
			if err != nil {
				return err
			}
			for _, al := range added {
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", al)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&alias, "alias", "", "name to store the certificates under (default: file name)")
	return cmd
}

func newTrustRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <alias>",
		Short: "Remove a user trusted certificate file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := a.store.RemoveAnchor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no user trusted certificate named %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func newTrustListCommand(a *app) *cobra.Command {
	var asJSON, all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trusted certificates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			anchors := append(a.store.BundledAnchors(cmd.Context()), a.store.UserAnchors(cmd.Context())...)
			if all {
				anchors = a.store.Anchors(cmd.Context())
			}
			infos := make([]AnchorInfo, 0, len(anchors))
			for _, an := range anchors {
				infos = append(infos, anchorInfo(an))
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ALIAS\tSOURCE\tSUBJECT\tEXPIRES\tSHA-256")
			for _, i := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", i.Alias, i.Source, i.Subject, i.NotAfter.Format("2006-01-02"), i.Fingerprint[:16])
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the anchors as JSON")
	cmd.Flags().BoolVar(&all, "all", false, "include operating system anchors")
	return cmd
}

func anchorInfo(a truststore.Anchor) AnchorInfo {
	return AnchorInfo{
		Alias:       a.Alias,
		Source:      a.Source.String(),
		Subject:     certs.CommonName(a.Certificate.Subject),
		NotAfter:    a.Certificate.NotAfter,
		Fingerprint: certs.Fingerprint(a.Certificate),
	}
}
