package edgar

import "context"

// Fetcher retrieves raw bytes from a URL. Implementations must be safe
// for concurrent use and honor the context for cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ArchiveExtractor unpacks an archive payload into its member files.
type ArchiveExtractor interface {
	Extract(data []byte) (map[string][]byte, error)
}

// RecordSource yields index records one at a time, scanner style.
type RecordSource interface {
	Scan() bool
	Record() IndexRecord
	Err() error
}

// StateStore persists the set of filings already fully processed and
// the failure ledger. Contains/MarkProcessed must be safe for
// concurrent use; marking an already-processed key is a no-op.
type StateStore interface {
	Load(ctx context.Context) error
	Contains(ctx context.Context, key FilingKey) (bool, error)
	MarkProcessed(ctx context.Context, key FilingKey) error
	RecordFailure(ctx context.Context, rec FailureRecord) error
	// Flush is a durability barrier: after it returns, a Load in a new
	// process observes every key marked before the flush.
	Flush(ctx context.Context) error
	Close() error
}

// MetadataSink durably appends filing metadata records. Each append is
// atomic: a record is either fully written or not written at all.
type MetadataSink interface {
	Append(ctx context.Context, md FilingMetadata) error
	Close() error
}

// BlobStore writes document bytes under a caller-chosen key and returns
// a URI. Re-writing the same key with the same bytes is a no-op.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}
