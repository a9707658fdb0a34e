// Package cli implements the pdftrust command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/digitorus/pdftrust/config"
	"github.com/digitorus/pdftrust/log"
	"github.com/digitorus/pdftrust/truststore"
)

// Version is set at build time.
var Version = "dev"

var osExit = os.Exit

// app holds what the subcommands share once flags are parsed.
type app struct {
	configPath string
	verbose    bool
	lang       string

	cfg   config.Config
	store *truststore.Store
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pdftrust",
		Short: "Verify PDF signatures against a managed trust store",
		Long: `pdftrust verifies every digital signature of a PDF document: document
integrity, the cryptographic signature, the certificate chain up to a trusted
anchor and the revocation status of the signer. Trust anchors are managed
with the trust subcommands.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (TOML or YAML), defaults to "+config.DefaultLocation+" when present")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log progress and diagnostics to stderr")
	root.PersistentFlags().StringVar(&a.lang, "lang", "en", "language of progress messages (en, de, nl)")

	root.AddCommand(newVerifyCommand(a))
	root.AddCommand(newTrustCommand(a))
	return root
}

// setup loads the configuration, installs the logger and prepares the
// trust store.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path := a.configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultLocation); err == nil {
			path = config.DefaultLocation
		}
	}
	a.cfg = config.Default()
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	level, err := log.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	if a.verbose {
		level = log.LevelDebug
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(log.WithLogger(ctx, log.NewStdLogger(cmd.ErrOrStderr(), level)))

	opts, err := a.cfg.TrustStoreOptions()
	if err != nil {
		return err
	}
	a.store = truststore.New(opts)
	if err := a.store.Initialize(cmd.Context()); err != nil {
		// The anchors that did load stay usable.
		log.GetLogger(cmd.Context()).Warnf("trust store: %v", err)
	}
	return nil
}

// Execute runs root with a context cancelled on interrupt.
func Execute(root *cobra.Command) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		osExit(1)
	}
}
