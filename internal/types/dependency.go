// Package types provides the shared type definitions for the FlowMail
// component dependency core. This package contains shared types to avoid
// circular dependencies between the registry, manager, bus, and bridge
// packages.
package types

import "time"

// Role describes which side(s) of a dependency a definition can take.
type Role string

const (
	RoleProvider Role = "provider"
	RoleConsumer Role = "consumer"
	RoleBoth     Role = "both"
)

// CanProvide reports whether the role covers the provider side.
func (r Role) CanProvide() bool {
	return r == RoleProvider || r == RoleBoth
}

// CanConsume reports whether the role covers the consumer side.
func (r Role) CanConsume() bool {
	return r == RoleConsumer || r == RoleBoth
}

// Status is the connectivity state of a live dependency instance.
type Status string

const (
	// StatusDisconnected is the initial state of every new instance.
	StatusDisconnected Status = "disconnected"
	// StatusConnecting marks an instance waiting for its first payload.
	StatusConnecting Status = "connecting"
	// StatusConnected marks an instance that just received a payload.
	StatusConnected Status = "connected"
	// StatusReady marks an established but currently idle edge.
	StatusReady Status = "ready"
	// StatusSuspended freezes an edge: no data writes, no events.
	StatusSuspended Status = "suspended"
	// StatusError marks an explicit failure; requires a retry to leave.
	StatusError Status = "error"
	// StatusCycleDetected is a terminal safety state for edges that would
	// close a provider/consumer cycle.
	StatusCycleDetected Status = "cycle_detected"
)

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected,
		StatusReady, StatusSuspended, StatusError, StatusCycleDetected:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ValidateFunc checks a payload before it is written into an instance cache.
type ValidateFunc func(data interface{}) error

// TransformFunc rewrites a payload before it is written into an instance cache.
type TransformFunc func(data interface{}) (interface{}, error)

// DependencyDefinition is an immutable catalog entry declaring that a
// component can act as provider and/or consumer for a data type. It
// represents a class of possible relationship, not a live link.
type DependencyDefinition struct {
	// ID uniquely identifies the definition in the registry
	ID string
	// ComponentID is the owning component identity (e.g. "list-1")
	ComponentID string
	// DataType is the opaque tag partitioning data flows (e.g. "email")
	DataType string
	// Role declares which side(s) this definition can take
	Role Role
	// Required marks the dependency as mandatory for the owning component
	Required bool
	// OneToMany allows one provider to fan out to many consumers
	OneToMany bool
	// ManyToOne allows many providers to feed one consumer
	ManyToOne bool
	// Validate, when set, vets payloads published through this definition
	Validate ValidateFunc
	// Transform, when set, rewrites payloads published through this definition
	Transform TransformFunc
	// CreatedAt records when the definition was registered
	CreatedAt time.Time
}

// InstanceConfig holds per-instance behavior switches.
type InstanceConfig struct {
	// AutoUpdate lets provider publishes flow into the instance cache.
	// When false the instance only moves on explicit pulls.
	AutoUpdate bool
	// NotifyOnChange controls whether data updates emit bus events.
	NotifyOnChange bool
}

// DependencyInstance is one concrete, live edge in the graph between a
// provider component and a consumer component for a single data type.
type DependencyInstance struct {
	// ID uniquely identifies the instance
	ID string
	// DefinitionIDs references the provider- and consumer-side definitions
	// this instance was matched from
	DefinitionIDs []string
	// ProviderID is the component identity owning the data
	ProviderID string
	// ConsumerID is the component identity receiving the data
	ConsumerID string
	// DataType is the opaque data type tag of this edge
	DataType string
	// Status is the current connectivity state
	Status Status
	// Data is the cached current payload (written only by the manager)
	Data interface{}
	// LastUpdated is stamped when the instance transitions to ready
	LastUpdated time.Time
	// Error carries the free-text message for the error status
	Error string
	// Config holds the per-instance behavior switches
	Config InstanceConfig
}

// DependsOn reports whether the instance references the given definition id.
func (i *DependencyInstance) DependsOn(definitionID string) bool {
	for _, id := range i.DefinitionIDs {
		if id == definitionID {
			return true
		}
	}
	return false
}
