package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/bagfetch/pkg/urlutil"
)

// NewKeychainCmd creates the keychain command with subcommands.
func NewKeychainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keychain",
		Short: "Inspect the credential keychain",
	}

	cmd.AddCommand(newKeychainCheckCmd())
	return cmd
}

func newKeychainCheckCmd() *cobra.Command {
	var keychainPath string

	cmd := &cobra.Command{
		Use:   "check [URL...]",
		Short: "Validate the keychain and show which entry matches each URL",
		Long: `Load the keychain, report entries that would be ignored and, for each URL
given, print the pattern and auth type that would be used. Secrets are never
printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeychainCheck(cmd, keychainPath, args)
		},
	}

	cmd.Flags().StringVar(&keychainPath, "keychain", "", "Keychain file (defaults to $BDBAG_KEYCHAIN_FILE or ~/.bdbag/keychain.json)")
	return cmd
}

func runKeychainCheck(cmd *cobra.Command, flagPath string, urls []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path, required, err := keychainSource(cfg, flagPath)
	if err != nil {
		return withCode(ExitInvalid, err)
	}
	kc, err := loadKeychain(path, required)
	if err != nil {
		return withCode(ExitInvalid, err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Keychain: %s (%d entries, %d ignored)\n", path, kc.Len(), len(kc.Skipped()))
	for _, s := range kc.Skipped() {
		_, _ = fmt.Fprintf(out, "  entry %d ignored: %s\n", s.Index, s.Reason)
	}
	if len(urls) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "URL\tPATTERN\tAUTH TYPE")
	var invalid int
	for _, raw := range urls {
		parts, err := urlutil.Parse(raw)
		if err != nil {
			invalid++
			_, _ = fmt.Fprintf(tw, "%s\t(invalid: %v)\t-\n", raw, err)
			continue
		}
		entry, ok := kc.CredentialsFor(parts.URL)
		if !ok {
			_, _ = fmt.Fprintf(tw, "%s\t(none)\t-\n", urlutil.Redact(parts.URL))
			continue
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", urlutil.Redact(parts.URL), entry.URIPattern, entry.AuthType)
	}
	_ = tw.Flush()

	if invalid > 0 {
		return withCode(ExitInvalid, fmt.Errorf("%d invalid URL(s)", invalid))
	}
	return nil
}
