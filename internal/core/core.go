// Package core wires the event bus, registry, and manager into one
// explicitly constructed context object. The core is passed by reference
// instead of living in package-level singletons, so tests and embedders
// can run any number of isolated dependency graphs in one process.
package core

import (
	"github.com/flowmail/flowmail/internal/bus"
	"github.com/flowmail/flowmail/internal/logging"
	"github.com/flowmail/flowmail/internal/manager"
	"github.com/flowmail/flowmail/internal/registry"
)

// Core is the component dependency system: the definition catalog, the
// live instance graph, the propagation engine, and the event fabric they
// share.
type Core struct {
	Bus      *bus.EventBus
	Registry *registry.Registry
	Manager  *manager.Manager

	logger logging.Logger
}

// New constructs a fully wired core. A nil logger falls back to a no-op
// logger.
func New(logger logging.Logger) *Core {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	eventBus := bus.NewEventBus(logger)
	reg := registry.NewRegistry(eventBus, logger)
	mgr := manager.NewManager(reg, eventBus, logger)

	return &Core{
		Bus:      eventBus,
		Registry: reg,
		Manager:  mgr,
		logger:   logger,
	}
}

// Logger exposes the core's logger for embedders that want consistent
// output.
func (c *Core) Logger() logging.Logger {
	return c.logger
}
