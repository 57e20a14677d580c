// Package visitor owns the anonymous visitor id that ties events from one
// install together.
package visitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/storage"
)

// StorageKey is where the visitor id is persisted.
const StorageKey = "visitor_id"

// Service hands out the current visitor id, creating and persisting one on
// first use.
type Service struct {
	store  storage.Storage
	logger *slog.Logger
	newID  func() string

	mu      sync.Mutex
	current string
}

// New creates a Service over store. A nil logger means slog.Default().
func New(store storage.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, newID: NewID}
}

// NewID returns a fresh visitor id: a random UUID without dashes.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ID returns the persisted visitor id, generating and storing one if none exists.
func (s *Service) ID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" {
		return s.current, nil
	}
	id, ok, err := s.store.Get(ctx, StorageKey)
	if err != nil {
		return "", fmt.Errorf("loading visitor id: %w", err)
	}
	if ok && id != "" {
		s.current = id
		return id, nil
	}
	return s.replace(ctx)
}

// Rotate discards the current visitor id and persists a new one.
func (s *Service) Rotate(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replace(ctx)
}

// replace is called with mu held.
func (s *Service) replace(ctx context.Context) (string, error) {
	id := s.newID()
	if err := s.store.Set(ctx, StorageKey, id); err != nil {
		return "", fmt.Errorf("saving visitor id: %w", err)
	}
	s.current = id
	s.logger.Debug("new visitor id", "visitor_id", id)
	return id, nil
}
