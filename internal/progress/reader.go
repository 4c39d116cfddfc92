// Package progress provides utilities for tracking extraction progress.
package progress

import "io"

// Callback is called to report progress. done is cumulative across the
// session; total is the expected size or -1 when unknown.
type Callback func(done, total int64)

// Tracker accumulates bytes across every entry of one session.
// It is not safe for concurrent use.
type Tracker struct {
	callback Callback
	total    int64
	done     int64
}

// NewTracker creates a tracker. A nil callback makes every call a no-op
// apart from counting.
func NewTracker(total int64, callback Callback) *Tracker {
	return &Tracker{callback: callback, total: total}
}

// Add records n more bytes and reports the new cumulative count.
func (t *Tracker) Add(n int64) {
	if t == nil || n <= 0 {
		return
	}
	t.done += n
	if t.callback != nil {
		t.callback(t.done, t.total)
	}
}

// Done returns the cumulative byte count.
func (t *Tracker) Done() int64 {
	if t == nil {
		return 0
	}
	return t.done
}

// Reader wraps an io.Reader and charges every read to a Tracker.
type Reader struct {
	reader  io.Reader
	tracker *Tracker
}

// NewReader creates a progress-tracking reader charging t.
func NewReader(r io.Reader, t *Tracker) *Reader {
	return &Reader{reader: r, tracker: t}
}

// Read implements io.Reader and reports progress after each read.
func (r *Reader) Read(p []byte) (n int, err error) {
	n, err = r.reader.Read(p)
	if n > 0 {
		r.tracker.Add(int64(n))
	}
	return n, err
}

// Close closes the underlying reader if it implements io.Closer.
func (r *Reader) Close() error {
	if closer, ok := r.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
