package backend

import (
	"context"

	"cashbook/internal/amqp"
	"cashbook/internal/auth"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
)

// Store is everything a ledger backend offers the rest of the process: the
// shared ledger with its live feed, the user directory and a full read.
type Store interface {
	ledger.Backend
	ledger.Refresher
	auth.UserStore
	List(ctx context.Context) ([]core.Transaction, error)
	Version() uint64
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Store Store
	// Notifier is the change publisher/consumer, nil when AMQP is disabled.
	Notifier *amqp.Client
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	// AMQPQueue is the queue this process consumes; empty means a private
	// queue that disappears with the connection.
	AMQPQueue string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
