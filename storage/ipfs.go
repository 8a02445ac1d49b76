package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/instidoc/institution-registry-backend/interfaces"
)

// IPFSStore keeps document content on an IPFS node or gateway. The store
// tracks our keccak content ids alongside the CIDs IPFS assigns; the CID
// mapping is pinned on the node itself.
type IPFSStore struct {
	shell       *shell.Shell
	host        string
	port        string
	useGateway  bool
	log         *slog.Logger
	locationURI string
}

// NewIPFSStore creates an IPFS store connected to the given host and port.
// When useGateway is true the HTTP gateway is used instead of the API.
func NewIPFSStore(host, port string, useGateway bool, timeout string, log *slog.Logger) (*IPFSStore, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	var uri string
	if useGateway {
		uri = fmt.Sprintf("ipfs://%s/?gateway=true&timeout=%s", apiURL, timeout)
	} else {
		uri = fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout)
	}

	return &IPFSStore{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		useGateway:  useGateway,
		log:         log,
		locationURI: uri,
	}, nil
}

// Fetch retrieves content by id and kind. Returns ErrContentNotFound if
// the node has no matching path, ErrBackendUnavailable if the node is down.
func (s *IPFSStore) Fetch(ctx context.Context, id interfaces.ContentID, kind interfaces.ContentKind) ([]byte, error) {
	start := time.Now()
	path := s.ipfsPath(id, kind)

	if !s.shell.IsUp() {
		s.log.Warn("IPFS node unavailable",
			slog.String("host", s.host),
			slog.String("port", s.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := s.shell.Cat(path)
	if err != nil {
		if strings.Contains(err.Error(), "no link named") {
			s.log.Debug("Content not found in IPFS",
				slog.String("path", path),
				slog.String("content_id", id.String()),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrContentNotFound
		}

		s.log.Error("Failed to fetch data from IPFS",
			slog.String("path", path),
			slog.String("content_id", id.String()),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch data from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	s.log.Debug("Fetched content from IPFS",
		slog.String("path", path),
		slog.String("content_id", id.String()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// Store adds content to IPFS and returns its keccak256 content id.
// Returns ErrBackendUnavailable if the node is not accessible.
func (s *IPFSStore) Store(ctx context.Context, data []byte, kind interfaces.ContentKind) (interfaces.ContentID, error) {
	id := interfaces.ComputeContentID(data)

	if !s.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	cid, err := s.shell.Add(bytes.NewReader(data))
	if err != nil {
		return id, fmt.Errorf("failed to add data to IPFS: %w", err)
	}

	s.log.Debug("Stored content in IPFS",
		slog.String("ipfsCID", cid),
		slog.String("contentID", id.String()),
		slog.String("kind", kind.String()))
	return id, nil
}

// Available checks if the IPFS node is accessible.
func (s *IPFSStore) Available(ctx context.Context) bool {
	return s.shell.IsUp()
}

// Name returns a unique identifier for this store.
func (s *IPFSStore) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", s.host, s.port)
}

// LocationURI returns the URI that identifies this store.
func (s *IPFSStore) LocationURI() string {
	return s.locationURI
}

func (s *IPFSStore) ipfsPath(id interfaces.ContentID, kind interfaces.ContentKind) string {
	return fmt.Sprintf("/ipfs/%s-%s", kind, id)
}
