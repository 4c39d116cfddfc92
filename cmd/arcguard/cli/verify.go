package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/arcguard"
	"github.com/meigma/arcguard/cmd/arcguard/cli/config"
)

var verifyCmd = &cobra.Command{
	Use:     "verify <archive>",
	Short:   "Check an archive without extracting it",
	GroupID: "core",
	Long: `Verify runs every extraction check over an archive and reports all
findings instead of stopping at the first.

The verdict is PASS, WARNING or FAIL. The command exits non-zero exactly
when the verdict is FAIL, so it can gate a pipeline.

Examples:
  arcguard verify upload.zip
  arcguard verify -o json release.tar.gz
  arcguard verify --max-ratio 20 --max-total 100MiB upload.tar.zst`,
	Args:              cobra.ExactArgs(1),
	PreRunE:           bindSecurityFlags,
	RunE:              runVerify,
	ValidArgsFunction: completeArchive,
}

func init() {
	addSecurityFlags(verifyCmd)
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := libraryOptions(cfg)
	if err != nil {
		return err
	}

	// Set up signal handling
	ctx, cancel := signalContext()
	defer cancel()

	report, err := arcguard.VerifyFile(ctx, args[0], opts...)
	if err != nil {
		return err
	}

	err = render(cmd.OutOrStdout(), viper.GetString(config.KeyOutput), report, func(w io.Writer) error {
		return printVerificationReport(w, report)
	})
	if err != nil {
		return err
	}
	if !report.Passed() {
		return errVerificationFailed
	}
	return nil
}

// printVerificationReport prints the verdict line followed by one row per
// issue.
func printVerificationReport(w io.Writer, r arcguard.VerificationReport) error {
	format := string(r.Format)
	if format == "" {
		format = "unknown format"
	}
	fmt.Fprintf(w, "%s %s (%d entries, %s)\n", r.Status, format, r.TotalEntries, humanize.IBytes(r.TotalBytes))
	if len(r.Issues) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, issue := range r.Issues {
		path := issue.Path
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", issue.Severity, issue.Category, path, issue.Message)
	}
	return tw.Flush()
}
