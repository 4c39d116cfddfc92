package cli

import (
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/meigma/arcguard"
	"github.com/meigma/arcguard/cmd/arcguard/cli/config"
)

// shouldShowProgress returns true if progress bars should be displayed.
func shouldShowProgress(cfg config.Config) bool {
	switch cfg.Progress {
	case "plain":
		return false
	case "tty":
		return true
	default:
		// Auto mode: show progress only if connected to a TTY.
		return term.IsTerminal(int(os.Stderr.Fd()))
	}
}

// newProgressBar creates a new progress bar for byte-based operations. A
// negative total renders a spinner.
func newProgressBar(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionUseANSICodes(true),
	)
}

// newProgress creates a progress callback that drives a progress bar.
// Returns the callback and a finish function to call when done.
// Returns nil callback if progress should not be shown.
func newProgress(cfg config.Config, description string) (callback arcguard.ProgressCallback, finish func()) {
	if !shouldShowProgress(cfg) {
		return nil, func() {}
	}

	var bar *progressbar.ProgressBar
	var once sync.Once

	callback = func(event arcguard.ProgressEvent) {
		once.Do(func() {
			bar = newProgressBar(event.TotalBytes, description)
		})
		if bar != nil {
			//nolint:errcheck // progress bar errors are not critical
			bar.Set64(event.BytesTransferred)
		}
	}

	finish = func() {
		if bar != nil {
			//nolint:errcheck // progress bar errors are not critical
			bar.Finish()
		}
	}

	return callback, finish
}
