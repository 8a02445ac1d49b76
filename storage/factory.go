package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/instidoc/institution-registry-backend/interfaces"
)

// StoreFactory creates content stores from URI strings and assembles
// multi-store configurations for redundant storage.
type StoreFactory struct {
	log *slog.Logger
}

// NewStoreFactory creates a factory instance.
func NewStoreFactory(logger *slog.Logger) *StoreFactory {
	return &StoreFactory{log: logger}
}

var _ interfaces.ContentStoreFactory = (*StoreFactory)(nil)

// ContentStoreFor creates a content store from a location URI.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - Local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS distributed storage
//   - vault:// - HashiCorp Vault KV v2 storage
//   - github:// - Read-only storage via GitHub's Git blob API
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (sf *StoreFactory) ContentStoreFor(location interfaces.ContentLocation) (interfaces.ContentStore, error) {
	u, err := url.Parse(string(location))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "github":
		return sf.createGitHubStore(u)
	case "ipfs":
		return sf.createIPFSStore(u)
	case "s3":
		return sf.createS3Store(u)
	case "vault":
		return sf.createVaultStore(u)
	case "file":
		return sf.createFileStore(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// CreateMultiStore creates a multi store from a list of location URIs.
// URIs that fail to produce a store are skipped with a warning; at least
// one valid store is required.
func (sf *StoreFactory) CreateMultiStore(locations []interfaces.ContentLocation) (interfaces.ContentStore, error) {
	stores := make([]interfaces.ContentStore, 0, len(locations))

	for _, uri := range locations {
		store, err := sf.ContentStoreFor(uri)
		if err != nil {
			sf.log.Warn("Failed to create content store",
				"err", err,
				slog.String("locationURI", string(uri)))
			continue
		}
		stores = append(stores, store)
	}

	if len(stores) == 0 {
		return nil, fmt.Errorf("no valid content stores created")
	}
	return NewMultiStore(stores, sf.log), nil
}

// createGitHubStore creates a read-only GitHub store.
// URI format: github://owner/repo
func (sf *StoreFactory) createGitHubStore(u *url.URL) (interfaces.ContentStore, error) {
	sf.log.Debug("Creating GitHub store", slog.String("uri", u.String()))

	owner := u.Host
	repo := strings.Trim(u.Path, "/")
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid GitHub URI format, expected github://owner/repo")
	}
	return NewGitHubStore(owner, repo, sf.log), nil
}

// createIPFSStore creates an IPFS store.
// URI format: ipfs://host:port/?gateway=true&timeout=30s
func (sf *StoreFactory) createIPFSStore(u *url.URL) (interfaces.ContentStore, error) {
	sf.log.Debug("Creating IPFS store", slog.String("uri", u.String()))

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "5001" // Default IPFS API port
	}

	query := u.Query()
	useGateway := query.Get("gateway") == "true"

	timeout := query.Get("timeout")
	if timeout == "" {
		timeout = "30s"
	}

	return NewIPFSStore(host, port, useGateway, timeout, sf.log)
}

// createS3Store creates an S3 or S3-compatible store.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
func (sf *StoreFactory) createS3Store(u *url.URL) (interfaces.ContentStore, error) {
	sf.log.Debug("Creating S3 store", slog.String("uri", u.String()))

	bucketName := u.Host
	path := strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := query.Get("endpoint")

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
		sf.log.Debug("Using embedded credentials for write access")
	} else {
		sf.log.Debug("No credentials provided, S3 bucket assumed to be public, write operations may fail")
	}

	return NewS3Store(bucketName, path, region, endpoint, accessKey, secretKey, sf.log)
}

// createVaultStore creates a Vault KV v2 store.
// URI format: vault://[token@]host:port/mount/path?tls=true
func (sf *StoreFactory) createVaultStore(u *url.URL) (interfaces.ContentStore, error) {
	sf.log.Debug("Creating Vault store", slog.String("uri", u.String()))

	scheme := "https"
	if u.Query().Get("tls") == "false" {
		scheme = "http"
	}
	address := fmt.Sprintf("%s://%s", scheme, u.Host)

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid Vault URI format, expected vault://host:port/mount/path")
	}

	var token string
	if u.User != nil {
		token = u.User.Username()
	}

	return NewVaultStore(address, parts[0], parts[1], token, sf.log)
}

// createFileStore creates a file system store.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StoreFactory) createFileStore(u *url.URL) (interfaces.ContentStore, error) {
	sf.log.Debug("Creating file store", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("empty path in file URI: %s", u.String())
	}

	return NewFileStore(path, sf.log)
}
