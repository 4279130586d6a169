package types

import "time"

// Event names crossing the core boundary. Bridge adapters rely on these
// exact strings when subscribing.
const (
	EventDefinitionRegistered    = "definitionRegistered"
	EventDefinitionRemoved       = "definitionRemoved"
	EventDependencyCreated       = "dependencyCreated"
	EventDependencyRemoved       = "dependencyRemoved"
	EventDependencyDataUpdated   = "dependencyDataUpdated"
	EventDependencyStatusChanged = "dependencyStatusChanged"
)

// Event is the envelope dispatched through the event bus.
type Event struct {
	// Type is the event name (see the constants above for core events)
	Type string
	// ID uniquely identifies this envelope
	ID string
	// Timestamp records when the event was published
	Timestamp time.Time
	// Source identifies the publisher (e.g. "registry", "manager")
	Source string
	// Scope restricts delivery to listeners with an intersecting scope
	Scope []string
	// Priority orders the queued replay of paused publishes
	Priority int
	// Cancelable allows a listener to halt dispatch by returning false
	Cancelable bool
	// Canceled is set when a listener canceled the event
	Canceled bool
	// Metadata carries publisher-defined annotations
	Metadata map[string]interface{}
	// Payload carries the event-specific data
	Payload interface{}

	propagationStopped bool
}

// StopPropagation halts dispatch to lower-priority listeners without
// marking the event canceled.
func (e *Event) StopPropagation() {
	e.propagationStopped = true
}

// PropagationStopped reports whether dispatch was halted.
func (e *Event) PropagationStopped() bool {
	return e.propagationStopped
}

// DataUpdatedPayload is carried by dependencyDataUpdated events.
type DataUpdatedPayload struct {
	DependencyID string
	ProviderID   string
	ConsumerID   string
	DataType     string
	Data         interface{}
}

// StatusChangedPayload is carried by dependencyStatusChanged events.
type StatusChangedPayload struct {
	DependencyID string
	Previous     Status
	Status       Status
	Error        string
}

// DependencyPayload is carried by dependencyCreated/dependencyRemoved events.
type DependencyPayload struct {
	DependencyID string
	ProviderID   string
	ConsumerID   string
	DataType     string
	Status       Status
}

// DefinitionPayload is carried by definitionRegistered/definitionRemoved events.
type DefinitionPayload struct {
	DefinitionID string
	ComponentID  string
	DataType     string
	Role         Role
}
