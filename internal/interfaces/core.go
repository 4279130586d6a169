// Package interfaces defines the adapter-facing contracts of the FlowMail
// dependency core. Bridge adapters translate domain identities (panels,
// tabs, mailbox views) into the generic (providerID, consumerID, dataType)
// vocabulary and consume the core purely through these interfaces and the
// event bus subscribe contract, which keeps them mockable in tests.
package interfaces

import (
	"github.com/flowmail/flowmail/internal/bus"
	"github.com/flowmail/flowmail/internal/types"
)

// EventBus is the subscribe contract bridges rely on.
type EventBus interface {
	Subscribe(eventType string, listener bus.Listener, opts bus.SubscribeOptions) string
	SubscribeOnce(eventType string, listener bus.Listener) string
	Unsubscribe(id string) bool
	Publish(eventType string, payload interface{}, opts bus.PublishOptions) *types.Event
	Pause()
	Resume()
}

// DefinitionRegistry is the catalog and instance-graph surface the core
// exposes to callers.
type DefinitionRegistry interface {
	RegisterDefinition(def *types.DependencyDefinition) string
	RemoveDefinition(id string)
	GetDefinition(id string) (*types.DependencyDefinition, bool)
	GetDefinitionsByComponent(componentID string) []*types.DependencyDefinition
	GetDefinitionsByDataType(dataType string) []*types.DependencyDefinition
	GetProviderDefinitions(dataType string) []*types.DependencyDefinition
	GetConsumerDefinitions(dataType string) []*types.DependencyDefinition
	FindCompatibleProviders(consumerDefinitionID string) []*types.DependencyDefinition
	FindCompatibleConsumers(providerDefinitionID string) []*types.DependencyDefinition

	CreateDependency(providerID, consumerID, dataType string) *types.DependencyInstance
	RemoveDependency(id string)
	GetDependency(id string) (*types.DependencyInstance, bool)
	GetDependenciesByProvider(providerID string) []*types.DependencyInstance
	GetDependenciesByConsumer(consumerID string) []*types.DependencyInstance
	GetDependenciesByDataType(dataType string) []*types.DependencyInstance
	UpdateDependencyStatus(id string, status types.Status) bool
}

// DependencyManager is the propagation surface the core exposes to
// callers. Only the manager may push data into instances.
type DependencyManager interface {
	UpdateData(providerID, dataType string, payload interface{})
	GetData(instanceID string) interface{}
	RequestData(consumerID, providerID, dataType string) *types.DependencyInstance
	ForceTriggerUpdate(instanceID string) bool

	Suspend(instanceID string) bool
	Resume(instanceID string) bool
	Retry(instanceID string) bool
	Fail(instanceID, message string) bool

	OnDataUpdated(cb func(types.DataUpdatedPayload)) string
	OnStatusChanged(cb func(types.StatusChangedPayload)) string
	RemoveCallback(id string) bool

	HasDependents(componentID, dataType string) bool
	GetDependents(componentID, dataType string) []string
	HasProviders(componentID, dataType string) bool
	GetProviders(componentID, dataType string) []string
}
