package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/instidoc/institution-registry-backend/interfaces"
)

// MultiStore aggregates several content stores. Writes go to every
// available store for redundancy; reads return from the first store that
// has the content.
type MultiStore struct {
	stores []interfaces.ContentStore
	log    *slog.Logger
}

// NewMultiStore creates a multi store over the given stores.
func NewMultiStore(stores []interfaces.ContentStore, logger *slog.Logger) *MultiStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiStore{
		stores: stores,
		log:    logger,
	}
}

// Fetch returns content from the first available store that has it.
func (m *MultiStore) Fetch(ctx context.Context, id interfaces.ContentID, kind interfaces.ContentKind) ([]byte, error) {
	start := time.Now()
	var errs []error

	for _, store := range m.stores {
		if !store.Available(ctx) {
			m.log.Debug("Store unavailable",
				slog.String("store_name", store.Name()),
				slog.String("content_id", id.String()))
			continue
		}

		data, err := store.Fetch(ctx, id, kind)
		if err == nil {
			m.log.Info("Successfully fetched content",
				slog.String("store_name", store.Name()),
				slog.String("content_id", id.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", store.Name(), err))
		m.log.Debug("Failed to fetch from store",
			slog.String("store_name", store.Name()),
			slog.String("content_id", id.String()),
			"err", err)
	}

	m.log.Error("All stores failed to fetch content",
		slog.String("content_id", id.String()),
		slog.Int("failed_stores", len(errs)),
		slog.Duration("duration", time.Since(start)))
	return nil, fmt.Errorf("all stores failed to fetch %s: %v", id, errs)
}

// Store writes content to every available store. Succeeds if at least one
// store accepted the write.
func (m *MultiStore) Store(ctx context.Context, data []byte, kind interfaces.ContentKind) (interfaces.ContentID, error) {
	start := time.Now()
	var result interfaces.ContentID
	var success bool
	var errs []error

	for _, store := range m.stores {
		if !store.Available(ctx) {
			m.log.Debug("Store unavailable", slog.String("store_name", store.Name()))
			continue
		}

		id, err := store.Store(ctx, data, kind)
		if err == nil {
			if !success {
				result = id
				success = true
				m.log.Info("Successfully stored content",
					slog.String("store_name", store.Name()),
					slog.String("content_id", id.String()),
					slog.Duration("duration", time.Since(start)))
			} else if !result.Equal(id) {
				// Same data must produce the same content id everywhere.
				m.log.Warn("Inconsistent content ids from stores",
					slog.String("store_name", store.Name()),
					slog.String("expected_id", result.String()),
					slog.String("actual_id", id.String()))
			}
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", store.Name(), err))
			m.log.Debug("Failed to store to store",
				slog.String("store_name", store.Name()),
				"err", err)
		}
	}

	if !success {
		m.log.Error("All stores failed to store data",
			slog.Int("failed_stores", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return result, fmt.Errorf("all stores failed to store data: %v", errs)
	}
	return result, nil
}

// Available reports whether any underlying store is available.
func (m *MultiStore) Available(ctx context.Context) bool {
	for _, store := range m.stores {
		if store.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this store.
func (m *MultiStore) Name() string {
	return "multi-storage"
}

// LocationURI returns the combined URI of all underlying stores.
func (m *MultiStore) LocationURI() string {
	var locations []string
	for _, store := range m.stores {
		locations = append(locations, store.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
