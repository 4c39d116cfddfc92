// Package quota tracks cumulative extraction totals against configured limits.
package quota

import (
	"fmt"
	"math"

	"github.com/meigma/arcguard/core"
)

// Accountant holds the running totals for one session.
// It is not safe for concurrent use.
type Accountant struct {
	maxEntries uint64
	maxBytes   uint64
	maxSingle  uint64

	entries uint64
	bytes   uint64
}

// New returns an Accountant enforcing cfg's limits. A zero limit is unlimited.
func New(cfg core.SecurityConfig) *Accountant {
	return &Accountant{
		maxEntries: cfg.MaxEntryCount,
		maxBytes:   cfg.MaxTotalBytes,
		maxSingle:  cfg.MaxSingleEntryBytes,
	}
}

// Admit charges one entry of the given declared size.
//
// Checks run in order: entry count, total bytes, single entry size. Totals
// are committed only when every check passes.
func (a *Accountant) Admit(path string, size int64) error {
	if size < 0 {
		return &core.EntryError{Op: "quota", Path: path,
			Err: fmt.Errorf("%w: negative size %d", core.ErrCorruptArchive, size)}
	}
	n := uint64(size)

	if a.entries == math.MaxUint64 {
		return &core.QuotaError{Resource: core.QuotaEntryCount, Observed: a.entries, Limit: a.maxEntries}
	}
	entries := a.entries + 1
	if a.maxEntries > 0 && entries > a.maxEntries {
		return &core.QuotaError{Resource: core.QuotaEntryCount, Observed: entries, Limit: a.maxEntries}
	}

	if n > math.MaxUint64-a.bytes {
		return &core.QuotaError{Resource: core.QuotaTotalBytes, Observed: math.MaxUint64, Limit: a.maxBytes}
	}
	bytes := a.bytes + n
	if a.maxBytes > 0 && bytes > a.maxBytes {
		return &core.QuotaError{Resource: core.QuotaTotalBytes, Observed: bytes, Limit: a.maxBytes}
	}

	if a.maxSingle > 0 && n > a.maxSingle {
		return &core.QuotaError{Resource: core.QuotaSingleEntrySize, Observed: n, Limit: a.maxSingle}
	}

	a.entries = entries
	a.bytes = bytes
	return nil
}

// Entries returns the number of admitted entries.
func (a *Accountant) Entries() uint64 {
	return a.entries
}

// Bytes returns the total admitted bytes.
func (a *Accountant) Bytes() uint64 {
	return a.bytes
}
