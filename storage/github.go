package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/instidoc/institution-registry-backend/interfaces"
)

// GitHubStore is a read-only store over GitHub's Git blob API, used for
// institutions that publish signed document templates in a public repo.
type GitHubStore struct {
	owner       string
	repo        string
	client      *http.Client
	log         *slog.Logger
	locationURI string
}

type gitHubBlob struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	URL      string `json:"url"`
	SHA      string `json:"sha"`
	Size     int    `json:"size"`
}

// NewGitHubStore creates a read-only GitHub store.
func NewGitHubStore(owner, repo string, log *slog.Logger) *GitHubStore {
	return &GitHubStore{
		owner:       owner,
		repo:        repo,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
		locationURI: fmt.Sprintf("github://%s/%s", owner, repo),
	}
}

// Fetch retrieves content using the content id hex as the blob SHA. The
// fetched bytes are re-hashed; a mismatch with the requested id fails.
func (s *GitHubStore) Fetch(ctx context.Context, id interfaces.ContentID, kind interfaces.ContentKind) ([]byte, error) {
	blob, err := s.fetchBlob(ctx, id.String())
	if err != nil {
		return nil, err
	}

	if blob.Encoding != "base64" {
		return nil, fmt.Errorf("unexpected blob encoding: %s", blob.Encoding)
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(blob.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode blob content: %w", err)
	}

	if actual := interfaces.ComputeContentID(data); !actual.Equal(id) {
		s.log.Warn("Content hash mismatch",
			slog.String("expected", id.String()),
			slog.String("actual", actual.String()))
		return nil, fmt.Errorf("content hash mismatch")
	}

	s.log.Debug("Fetched content from GitHub",
		slog.String("blobSHA", blob.SHA),
		slog.Int("size", len(data)))
	return data, nil
}

// Store is not implemented; the store is read-only.
func (s *GitHubStore) Store(ctx context.Context, data []byte, kind interfaces.ContentKind) (interfaces.ContentID, error) {
	return interfaces.ComputeContentID(data), fmt.Errorf("GitHub store is read-only")
}

// Available checks the repository is reachable.
func (s *GitHubStore) Available(ctx context.Context) bool {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s", s.owner, s.repo)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		s.log.Debug("Failed to create request", "err", err)
		return false
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug("GitHub store unavailable", "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		s.log.Debug("GitHub store unavailable", slog.String("status", resp.Status))
		return false
	}
	return true
}

// Name returns a unique identifier for this store.
func (s *GitHubStore) Name() string {
	return fmt.Sprintf("github-%s-%s", s.owner, s.repo)
}

// LocationURI returns the URI that identifies this store.
func (s *GitHubStore) LocationURI() string {
	return s.locationURI
}

func (s *GitHubStore) fetchBlob(ctx context.Context, sha string) (*gitHubBlob, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/git/blobs/%s", s.owner, s.repo, sha)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return nil, interfaces.ErrContentNotFound
	}
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub API error: %s, %s", resp.Status, string(body))
	}

	var blob gitHubBlob
	if err := json.NewDecoder(resp.Body).Decode(&blob); err != nil {
		return nil, fmt.Errorf("failed to decode blob: %w", err)
	}
	return &blob, nil
}
