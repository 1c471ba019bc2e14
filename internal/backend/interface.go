package backend

import (
	"context"
	"io"

	"github.com/renezit0/despesa-agil-93/internal/financing"
	"github.com/renezit0/despesa-agil-93/internal/storage"
)

// Store is the persistence surface every backend provides.
type Store interface {
	storage.Store
	storage.Pinger
}

// Publisher is a domain event sink that holds a connection.
type Publisher interface {
	financing.EventPublisher
	io.Closer
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Backend is an opened store with its optional event publisher.
type Backend struct {
	Type      BackendType
	Store     Store
	Publisher financing.EventPublisher // nil when events are disabled
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*Backend, error)
}
