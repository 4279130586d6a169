// Package internal contains the core implementation packages for the
// FlowMail component dependency system.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the flowmail CLI and bridge server.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - types: shared definitions, instances, statuses, and event payloads
//   - bus: priority-ordered, scoped, pausable event dispatch
//   - registry: definition catalog, instance graph, and cycle detection
//   - manager: data propagation, hooks, last-value replay, and lifecycle
//   - core: explicit wiring of bus, registry, and manager
//   - interfaces: adapter-facing contracts for bridge implementations
//   - bridge: WebSocket fan-out of core events to browser front ends
//   - fixtures: JSON-file development harness backed by file watching
//   - config: configuration loading, validation, and scaffolding
//   - logging: structured logging shared by every package
//   - errors: structured error taxonomy for hook and config failures
//   - version: build metadata for the version command
//
// # Inter-Package Communication
//
// Packages communicate through the event bus and the registry:
//
//   - Registry mutations publish definition and dependency events
//   - Manager resolves edges through the registry and broadcasts data
//     events; it is the only writer of instance payloads
//   - Bridge and direct callbacks both consume events as bus
//     subscriptions, so every observer shares one dispatch path
//   - Fixtures feed the manager from the filesystem during development
//
// For detailed documentation, see the individual package documentation.
package internal
