package interfaces

import (
	"github.com/flowmail/flowmail/internal/bus"
	"github.com/flowmail/flowmail/internal/manager"
	"github.com/flowmail/flowmail/internal/registry"
)

// Compile-time checks that the concrete core types satisfy the contracts
// bridge adapters program against.
var (
	_ EventBus           = (*bus.EventBus)(nil)
	_ DefinitionRegistry = (*registry.Registry)(nil)
	_ DependencyManager  = (*manager.Manager)(nil)
)
