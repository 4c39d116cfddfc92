// Package arcguard extracts and inspects untrusted tar and zip archives.
//
// Every entry passes through the same validators before anything touches
// the filesystem: path normalization (zip-slip), symlink and hardlink
// containment, permission bits, per-entry and streaming compression ratio
// limits (zip bombs) and cumulative quotas. Formats are detected from magic
// bytes, never from file names.
//
// # Basic Usage
//
// Extract an archive into an existing directory:
//
//	report, err := arcguard.ExtractFile(ctx, "upload.tar.gz", "./out")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Files, "files written")
//
// Inspect without writing:
//
//	manifest, err := arcguard.ListFile(ctx, "upload.zip", arcguard.WithDigests(true))
//
//	report, err := arcguard.VerifyFile(ctx, "upload.zip")
//	if !report.Passed() {
//	    // report.Issues lists every finding
//	}
//
// # Security Configuration
//
// DefaultSecurityConfig is applied unless WithSecurityConfig is given. A
// zero numeric limit disables that limit. Symlinks and hardlinks are allowed
// by default but must stay inside the destination; setuid, setgid and sticky
// bits are refused unless AllowSetuid is set.
//
// # Policies
//
// PolicyFailFast (the default) aborts on the first rejected entry.
// PolicySkipAndReport skips rejected entries and lists them in the report.
// Quota, corrupt-archive and streaming ratio failures always abort.
package arcguard
