package cli

import (
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/arcguard"
	"github.com/meigma/arcguard/cmd/arcguard/cli/config"
)

var (
	listLong    bool
	listHuman   bool
	listDigests bool
)

var listCmd = &cobra.Command{
	Use:     "ls <archive>",
	Aliases: []string{"list"},
	Short:   "List the entries of an archive",
	GroupID: "core",
	Long: `Ls displays the entries of a tar or zip archive without extracting it.

Paths are shown normalized. An archive with a path traversal or unsafe
permissions fails to list, as it would fail to extract.

Examples:
  arcguard ls release.tar.gz
  arcguard ls -l release.tar.gz
  arcguard ls -lH --digests upload.zip
  arcguard ls -o json release.tar.gz`,
	Args:              cobra.ExactArgs(1),
	PreRunE:           bindSecurityFlags,
	RunE:              runList,
	ValidArgsFunction: completeArchive,
}

func init() {
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "Use long listing format")
	listCmd.Flags().BoolVarP(&listHuman, "human-readable", "H", false, "Print sizes in human-readable format")
	listCmd.Flags().BoolVar(&listDigests, "digests", false, "Compute a sha256 digest of every file")
	addSecurityFlags(listCmd)
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := libraryOptions(cfg)
	if err != nil {
		return err
	}
	opts = append(opts, arcguard.WithDigests(listDigests))

	// Set up signal handling
	ctx, cancel := signalContext()
	defer cancel()

	manifest, err := arcguard.ListFile(ctx, args[0], opts...)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), viper.GetString(config.KeyOutput), manifest, func(w io.Writer) error {
		if listLong {
			return printLongListing(w, manifest.Entries)
		}
		printShortListing(w, manifest.Entries)
		return nil
	})
}

// printShortListing prints just the entry paths.
func printShortListing(w io.Writer, entries []arcguard.ArchiveEntry) {
	for _, entry := range entries {
		fmt.Fprintln(w, entry.Path)
	}
}

// printLongListing prints mode, size, path and link target in ls -l style
// format, with the digest column when digests were computed.
func printLongListing(w io.Writer, entries []arcguard.ArchiveEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, entry := range entries {
		name := entry.Path
		switch entry.Type {
		case arcguard.EntrySymlink:
			name += " -> " + entry.LinkTarget
		case arcguard.EntryHardlink:
			name += " link to " + entry.LinkTarget
		}
		if listDigests {
			digest := entry.Digest
			if digest == "" {
				digest = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", formatMode(entry), formatSize(entry), digest, name)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", formatMode(entry), formatSize(entry), name)
	}
	return tw.Flush()
}

// formatMode converts the entry mode to symbolic format (e.g., "-rw-r--r--").
func formatMode(entry arcguard.ArchiveEntry) string {
	mode := entry.Mode
	buf := make([]byte, 10)

	// Type indicator
	switch entry.Type {
	case arcguard.EntryDir:
		buf[0] = 'd'
	case arcguard.EntrySymlink:
		buf[0] = 'l'
	case arcguard.EntryHardlink:
		buf[0] = 'h'
	case arcguard.EntryOther:
		buf[0] = '?'
	default:
		buf[0] = '-'
	}

	// Permission bits
	const rwx = "rwx"
	for i := range 3 {
		for j := range 3 {
			//nolint:gosec // G115: i and j are in range 0-2, no overflow possible
			if mode&(1<<uint(8-i*3-j)) != 0 {
				buf[1+i*3+j] = rwx[j]
			} else {
				buf[1+i*3+j] = '-'
			}
		}
	}

	// Special bits replace the execute position, as ls does.
	if mode&fs.ModeSetuid != 0 {
		buf[3] = specialBit(buf[3], 's')
	}
	if mode&fs.ModeSetgid != 0 {
		buf[6] = specialBit(buf[6], 's')
	}
	if mode&fs.ModeSticky != 0 {
		buf[9] = specialBit(buf[9], 't')
	}

	return string(buf)
}

func specialBit(exec, set byte) byte {
	if exec == 'x' {
		return set
	}
	return set - 'a' + 'A'
}

// formatSize formats entry size for display.
func formatSize(entry arcguard.ArchiveEntry) string {
	if entry.Type != arcguard.EntryFile {
		return "-"
	}
	if listHuman {
		//nolint:gosec // G115: size is from archive metadata and never negative
		return humanize.IBytes(uint64(entry.Size))
	}
	return strconv.FormatInt(entry.Size, 10)
}
