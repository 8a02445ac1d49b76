// Package storage provides a content-addressed storage system with pluggable backends.
//
// The package offers a unified interface for storing and retrieving document
// content identified by keccak256 hash across multiple backends:
//
//   - File system storage for local development and testing
//   - S3-compatible storage for cloud deployments
//   - IPFS storage for decentralized content
//   - Vault KV v2 storage for access-controlled evidence material
//   - GitHub storage (read-only) for published document templates
//
// # Storage URI Format
//
// Content stores are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/instidoc/documents/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://ipfs.example.com:5001/
//   - vault://vault.example.com:8200/secret/instidoc
//   - github://owner/repo
//
// # Content Addressing
//
// Content is stored and retrieved by content id, the keccak256 hash of the
// data. The id doubles as the on-record content hash bound into approval
// signatures, so a fetched document can always be checked against what was
// signed. Document bodies and evidence material are stored in separate
// namespaces.
//
// # Multi-Store Redundancy
//
// CreateMultiStore aggregates several stores behind the ContentStore
// interface. Writes go to every available store; reads return from the
// first store holding the content. A single reachable store is enough for
// the aggregate to be available.
package storage
