package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ruteri/functions-gemini-relay/interfaces"
)

// MultiStorageBackend writes to every available backend and reads from the
// first one that has the content.
type MultiStorageBackend struct {
	backends []interfaces.StorageBackend
	log      *slog.Logger
}

func NewMultiStorageBackend(backends []interfaces.StorageBackend, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Fetch tries each available backend in order. ErrContentNotFound is returned
// only when every consulted backend reported the content missing.
func (m *MultiStorageBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	var errs *multierror.Error
	allMissing := true

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend", backend.Name()),
				slog.String("contentID", id.String()))
			allMissing = false
			continue
		}

		data, err := backend.Fetch(ctx, id, contentType)
		if err == nil {
			m.log.Debug("Fetched content",
				slog.String("backend", backend.Name()),
				slog.String("contentID", id.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if !errors.Is(err, interfaces.ErrContentNotFound) {
			allMissing = false
		}
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend", backend.Name()),
			slog.String("contentID", id.String()),
			"err", err)
	}

	if errs == nil {
		return nil, interfaces.ErrBackendUnavailable
	}
	if allMissing {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrContentNotFound, errs)
	}
	return nil, errs.ErrorOrNil()
}

// Store saves data to all available backends. It succeeds when at least one
// backend accepted the data.
func (m *MultiStorageBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	start := time.Now()
	id := interfaces.ComputeID(data)
	stored := 0
	var errs *multierror.Error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend", backend.Name()))
			continue
		}

		backendID, err := backend.Store(ctx, data, contentType)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backend", backend.Name()),
				"err", err)
			continue
		}
		if backendID != id {
			m.log.Warn("Inconsistent content ID from backend",
				slog.String("backend", backend.Name()),
				slog.String("expected", id.String()),
				slog.String("actual", backendID.String()))
		}
		stored++
	}

	if stored == 0 {
		if errs == nil {
			return id, interfaces.ErrBackendUnavailable
		}
		return id, fmt.Errorf("all backends failed to store data: %w", errs)
	}

	m.log.Info("Stored content",
		slog.String("contentID", id.String()),
		slog.Int("backends", stored),
		slog.Duration("duration", time.Since(start)))
	return id, nil
}

func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

func (m *MultiStorageBackend) LocationURI() string {
	locations := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
