package arcguard

// ProgressEvent represents a progress update during extraction.
type ProgressEvent struct {
	// Operation identifies the operation type ("extract").
	Operation string
	// BytesTransferred is the cumulative bytes written so far.
	BytesTransferred int64
	// TotalBytes is the total expected size, or -1 when unknown.
	TotalBytes int64
}

// ProgressCallback is called during extraction to report progress.
// Implementations should be efficient as this may be called frequently.
type ProgressCallback func(event ProgressEvent)
