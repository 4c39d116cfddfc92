package cli

import (
	"github.com/spf13/cobra"
)

// archiveExtensions are offered when completing an archive argument.
var archiveExtensions = []string{
	"tar", "gz", "tgz", "zst", "tzst", "xz", "txz", "bz2", "tbz2", "lz4", "lz", "zip",
}

// completeArchive completes a single archive file argument.
func completeArchive(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return archiveExtensions, cobra.ShellCompDirectiveFilterFileExt
}

// completeArchiveThenDir provides completion for the extract command arguments:
// - First arg: archive file (filtered by extension)
// - Second arg: destination directory (filesystem directory completion)
func completeArchiveThenDir(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return archiveExtensions, cobra.ShellCompDirectiveFilterFileExt
	case 1:
		return nil, cobra.ShellCompDirectiveFilterDirs
	default:
		// No more args expected
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeDirThenFile provides completion for the create command arguments:
// - First arg: source directory (filesystem directory completion)
// - Second arg: output archive (default file completion)
func completeDirThenFile(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return nil, cobra.ShellCompDirectiveFilterDirs
	case 1:
		return nil, cobra.ShellCompDirectiveDefault
	default:
		// No more args expected
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}
