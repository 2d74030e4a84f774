package core

import "context"

// Repository defines the contract for storing and retrieving certificates,
// drafts, documents, types and queued messages.
// Adhering to this interface allows the core to be independent of the
// underlying storage mechanism (Filesystem, HTTP, memory).
//
// Fetch methods return (nil, nil) when the identifier is absent.
// StoreCertificate, StoreDocument, StoreType and QueueMessage are
// create-if-absent and fail with ErrAlreadyExists on an occupied key;
// StoreDraft creates or replaces.
type Repository interface {
	CertificateExists(ctx context.Context, id string) (bool, error)
	FetchCertificate(ctx context.Context, id string) (*Document, error)
	StoreCertificate(ctx context.Context, id string, cert Document) error

	DraftExists(ctx context.Context, id string) (bool, error)
	FetchDraft(ctx context.Context, id string) (*Document, error)
	StoreDraft(ctx context.Context, id string, draft Document) error
	// DeleteDraft removes a draft slot. An absent slot is not an error.
	DeleteDraft(ctx context.Context, id string) error

	DocumentExists(ctx context.Context, id string) (bool, error)
	FetchDocument(ctx context.Context, id string) (*Document, error)
	StoreDocument(ctx context.Context, id string, doc Document) error

	TypeExists(ctx context.Context, id string) (bool, error)
	FetchType(ctx context.Context, id string) (*Document, error)
	StoreType(ctx context.Context, id string, typ Document) error

	QueueExists(ctx context.Context, queue string) (bool, error)
	// CreateQueue is idempotent.
	CreateQueue(ctx context.Context, queue string) error
	DeleteQueue(ctx context.Context, queue string) error
	// QueueMessage writes message under queue with the given entry name, creating the queue if needed.
	QueueMessage(ctx context.Context, queue, name string, message Document) error
	// ListMessages returns the entry names currently pending on queue; a missing queue is empty.
	ListMessages(ctx context.Context, queue string) ([]string, error)
	FetchMessage(ctx context.Context, queue, name string) (*Document, error)
	// DeleteMessage removes an entry and fails with ErrNotFound if it is already gone.
	DeleteMessage(ctx context.Context, queue, name string) error

	// Initialize ensures the underlying storage is ready (e.g., create directories, probe a server).
	Initialize(ctx context.Context) error
}

// Dequeuer is implemented by repositories that run the claim protocol on their
// side (e.g. a remote store). It returns (nil, nil) when the queue is empty.
type Dequeuer interface {
	DequeueMessage(ctx context.Context, queue string) (*Document, error)
}

// Watchable is implemented by repositories that can signal new queue entries.
type Watchable interface {
	// Watch emits an event for each entry created or removed on queue until ctx is done.
	Watch(ctx context.Context, queue string) (<-chan Event, error)
}

// Notary signs documents and verifies seals.
type Notary interface {
	// Sign returns a seal over doc as it is now.
	Sign(ctx context.Context, doc Document) (Seal, error)
	// Verify reports whether seal is a valid signature by certificate over doc.
	Verify(ctx context.Context, doc Document, seal Seal, certificate Document) (bool, error)
}

// Codec converts documents to and from their wire notation.
// Encode must be deterministic: signatures and digests are computed over its output.
type Codec interface {
	Encode(doc Document) ([]byte, error)
	Decode(data []byte) (*Document, error)
	MediaType() string
}
