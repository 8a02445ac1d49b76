package interfaces

import (
	"context"
	"errors"
)

// ContentKind indicates the storage namespace for document material.
type ContentKind int

const (
	// DocumentContent is the signed document body.
	DocumentContent ContentKind = iota
	// EvidenceContent is supporting material attached to a document.
	EvidenceContent
)

// String returns the namespace name.
func (k ContentKind) String() string {
	switch k {
	case DocumentContent:
		return "documents"
	case EvidenceContent:
		return "evidence"
	default:
		return "unknown"
	}
}

// ContentLocation is a backend URI of the form
// [scheme]://[auth@]host[:port][/path][?params]. Supported schemes:
// file://, s3://, ipfs://, vault://, github://.
type ContentLocation string

var (
	// ErrContentNotFound is returned when requested content cannot be found.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a content backend is not accessible.
	ErrBackendUnavailable = errors.New("content backend unavailable")

	// ErrInvalidLocationURI is returned when a content location URI is
	// malformed or uses an unsupported scheme.
	ErrInvalidLocationURI = errors.New("invalid content location URI")
)

// ContentStore provides content-addressed storage for document bodies.
// The registry itself never holds document content, only ContentIDs and
// backend references; stores live entirely off-band.
type ContentStore interface {
	// Fetch retrieves data by content id and kind.
	Fetch(ctx context.Context, id ContentID, kind ContentKind) ([]byte, error)

	// Store saves data and returns its content id.
	Store(ctx context.Context, data []byte, kind ContentKind) (ContentID, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}

// ContentStoreFactory creates content stores from location URIs.
type ContentStoreFactory interface {
	ContentStoreFor(location ContentLocation) (ContentStore, error)
	CreateMultiStore(locations []ContentLocation) (ContentStore, error)
}
