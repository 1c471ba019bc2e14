package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/renezit0/despesa-agil-93/internal/amqp"
	"github.com/renezit0/despesa-agil-93/internal/log"
	"github.com/renezit0/despesa-agil-93/internal/storage/memory"
	"github.com/renezit0/despesa-agil-93/internal/storage/sqlite"
)

// Dialer opens the domain event publisher.
type Dialer func(url, exchange, queue string) (Publisher, error)

func dialAMQP(url, exchange, queue string) (Publisher, error) {
	return amqp.NewClient(url, exchange, queue)
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	dial   Dialer
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
		dial:   dialAMQP,
	}
}

// WithDialer replaces the AMQP dialer.
func (f *DefaultFactory) WithDialer(d Dialer) *DefaultFactory {
	f.dial = d
	return f
}

// CreateBackend implements Factory.CreateBackend. An unreachable broker is
// logged and the backend runs without domain events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		b   *Backend
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		b, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		b = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := b.Store.Ping(ctx); err != nil {
		_ = b.Cleanup()
		return nil, fmt.Errorf("backend %s not ready: %w", config.Type, err)
	}

	if config.AMQPURL != "" {
		pub, err := f.dial(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without domain events", log.FieldError, err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			b.Publisher = pub
			storeCleanup := b.Cleanup
			b.Cleanup = func() error {
				return errors.Join(pub.Close(), storeCleanup())
			}
		}
	}

	return b, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Backend, error) {
	repo, err := sqlite.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &Backend{
		Type:    SQLiteBackend,
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() *Backend {
	f.logger.Info("Initialized memory backend")

	return &Backend{
		Type:    MemoryBackend,
		Store:   memory.New(),
		Cleanup: func() error { return nil },
	}
}
