package http

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/ports"
	"github.com/samirrijal/pharmacover/internal/core/usecases"
)

// Pinger is a dependency that can report its connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AsyncStarter hands a preflighted search to a durable worker.
type AsyncStarter interface {
	StartAreaSearch(ctx context.Context, p domain.Principal, searchID string, req usecases.SearchRequest) (string, error)
}

// EventRelay streams the search events of one user. The returned function stops the relay.
type EventRelay interface {
	RelayUser(username string, fn func(data []byte)) (func(), error)
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Users    *usecases.UserService
	Searches *usecases.SearchService
	// DefaultPolicy applies when a request names neither a policy nor a preset.
	DefaultPolicy domain.GridPolicy
	// SearchTimeout bounds synchronous POST /v1/searches calls.
	SearchTimeout time.Duration

	Async AsyncStarter
	Relay EventRelay
	Cache ports.CacheService

	NATS        *nats.Conn
	DB          Pinger
	CacheHealth Pinger
}
