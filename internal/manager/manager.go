// Package manager implements the data propagation engine of the FlowMail
// dependency core. The manager is the only component allowed to push
// payloads into dependency instances: it resolves matching edges for a
// publishing provider, runs definition hooks, updates instance caches and
// statuses through the registry, and broadcasts data events on the bus.
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmail/flowmail/internal/bus"
	"github.com/flowmail/flowmail/internal/logging"
	"github.com/flowmail/flowmail/internal/registry"
	"github.com/flowmail/flowmail/internal/types"
)

type lastValueKey struct {
	providerID string
	dataType   string
}

// Manager moves data across the graph the registry describes.
type Manager struct {
	registry *registry.Registry
	bus      *bus.EventBus
	logger   logging.Logger

	mu sync.RWMutex
	// lastValues is a depth-1 replay buffer: the most recent payload each
	// provider published, kept independent of any instance, so consumers
	// that connect afterward still receive the current value immediately.
	lastValues map[lastValueKey]interface{}
}

// NewManager creates a manager over the given registry and bus.
func NewManager(reg *registry.Registry, eventBus *bus.EventBus, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Manager{
		registry:   reg,
		bus:        eventBus,
		logger:     logger.WithComponent("manager"),
		lastValues: make(map[lastValueKey]interface{}),
	}
}

// UpdateData publishes a payload from a provider for a data type. The
// payload always lands in the provider's last-value cache; every live
// matching instance for (providerID, dataType) additionally gets its
// cache and status updated and a data event broadcast. Suspended,
// failed, and cycle-pinned instances are skipped entirely: no cache
// write, no event. A failed edge rejoins the flow only through the
// explicit retry.
func (m *Manager) UpdateData(providerID, dataType string, payload interface{}) {
	key := lastValueKey{providerID: providerID, dataType: dataType}
	m.mu.Lock()
	m.lastValues[key] = payload
	m.mu.Unlock()

	instances := m.matchingInstances(providerID, dataType)
	if len(instances) == 0 {
		m.logger.Debug(context.Background(), "no instances for publish, last value retained",
			"provider_id", providerID, "data_type", dataType)
		return
	}

	for _, inst := range instances {
		switch inst.Status {
		case types.StatusSuspended, types.StatusError, types.StatusCycleDetected:
			continue
		}
		if !inst.Config.AutoUpdate {
			continue
		}

		value, err := m.applyHooks(inst, payload)
		if err != nil {
			m.logger.Warn(context.Background(), err, "hook rejected payload",
				"dependency_id", inst.ID, "provider_id", providerID, "data_type", dataType)
			m.registry.SetDependencyError(inst.ID, err.Error())
			continue
		}

		m.registry.SetDependencyData(inst.ID, value)

		if value != nil {
			m.registry.UpdateDependencyStatus(inst.ID, types.StatusConnected)
		} else if inst.Status != types.StatusReady {
			m.registry.UpdateDependencyStatus(inst.ID, types.StatusReady)
		}

		if inst.Config.NotifyOnChange {
			m.publishData(inst, value)
		}
	}
}

// GetData reads an instance's cached payload. An unknown instance yields
// nil.
func (m *Manager) GetData(instanceID string) interface{} {
	inst, exists := m.registry.GetDependency(instanceID)
	if !exists {
		m.logger.Debug(context.Background(), "data read for unknown dependency", "dependency_id", instanceID)
		return nil
	}
	return inst.Data
}

// RequestData is the pull path for late-joining consumers. A missing
// instance is created through the registry; the edge moves to connecting
// and, when the provider already published, immediately adopts the
// last value, moves to ready, and emits the data event. Suspended and
// cycle-pinned edges are returned untouched: suspension gates pulls the
// same way it gates pushes, until the explicit resume.
func (m *Manager) RequestData(consumerID, providerID, dataType string) *types.DependencyInstance {
	inst, exists := m.findInstance(providerID, consumerID, dataType)
	if !exists {
		inst = m.registry.CreateDependency(providerID, consumerID, dataType)
		if inst == nil {
			return nil
		}
	}

	switch inst.Status {
	case types.StatusSuspended, types.StatusCycleDetected:
		return inst
	}

	m.registry.UpdateDependencyStatus(inst.ID, types.StatusConnecting)

	m.mu.RLock()
	value, cached := m.lastValues[lastValueKey{providerID: providerID, dataType: dataType}]
	m.mu.RUnlock()

	if cached {
		m.registry.SetDependencyData(inst.ID, value)
		m.registry.UpdateDependencyStatus(inst.ID, types.StatusReady)
		m.publishData(inst, value)
	}

	return inst
}

// ForceTriggerUpdate is the administrative recovery path: it re-emits the
// instance's cached payload (pulling from the provider's last-value cache
// when the instance has none) and forces the status to connected without
// requiring the provider to republish. Cycle-pinned instances stay inert.
func (m *Manager) ForceTriggerUpdate(instanceID string) bool {
	inst, exists := m.registry.GetDependency(instanceID)
	if !exists {
		m.logger.Warn(context.Background(), nil, "force trigger for unknown dependency",
			"dependency_id", instanceID)
		return false
	}
	if inst.Status == types.StatusCycleDetected {
		return false
	}

	value := inst.Data
	if value == nil {
		m.mu.RLock()
		value = m.lastValues[lastValueKey{providerID: inst.ProviderID, dataType: inst.DataType}]
		m.mu.RUnlock()
	}

	m.registry.SetDependencyData(inst.ID, value)
	m.registry.UpdateDependencyStatus(inst.ID, types.StatusConnected)
	m.publishData(inst, value)

	return true
}

// Suspend freezes an edge. Only established edges (connected or ready)
// can be paused; the frozen edge ignores publishes entirely until Resume.
func (m *Manager) Suspend(instanceID string) bool {
	inst, exists := m.registry.GetDependency(instanceID)
	if !exists {
		m.logger.Debug(context.Background(), "suspend of unknown dependency", "dependency_id", instanceID)
		return false
	}
	if inst.Status != types.StatusConnected && inst.Status != types.StatusReady {
		m.logger.Debug(context.Background(), "suspend rejected",
			"dependency_id", instanceID, "status", inst.Status.String())
		return false
	}

	return m.registry.UpdateDependencyStatus(instanceID, types.StatusSuspended)
}

// Resume unfreezes a suspended edge back to connecting.
func (m *Manager) Resume(instanceID string) bool {
	inst, exists := m.registry.GetDependency(instanceID)
	if !exists || inst.Status != types.StatusSuspended {
		m.logger.Debug(context.Background(), "resume rejected", "dependency_id", instanceID)
		return false
	}

	return m.registry.UpdateDependencyStatus(instanceID, types.StatusConnecting)
}

// Retry moves a failed edge back to connecting. The error status is never
// left implicitly; this is the explicit recovery signal.
func (m *Manager) Retry(instanceID string) bool {
	inst, exists := m.registry.GetDependency(instanceID)
	if !exists || inst.Status != types.StatusError {
		m.logger.Debug(context.Background(), "retry rejected", "dependency_id", instanceID)
		return false
	}

	return m.registry.UpdateDependencyStatus(instanceID, types.StatusConnecting)
}

// Fail surfaces an adapter-level failure (e.g. a referenced component no
// longer exists) by moving the edge to the error status with a free-text
// message.
func (m *Manager) Fail(instanceID, message string) bool {
	if _, exists := m.registry.GetDependency(instanceID); !exists {
		m.logger.Debug(context.Background(), "fail of unknown dependency", "dependency_id", instanceID)
		return false
	}

	return m.registry.SetDependencyError(instanceID, message)
}

// OnDataUpdated registers a callback for data events. The callback is an
// internal bus subscription, so direct callbacks and bridge listeners
// share one dispatch path. The returned id feeds RemoveCallback.
func (m *Manager) OnDataUpdated(cb func(types.DataUpdatedPayload)) string {
	return m.bus.Subscribe(types.EventDependencyDataUpdated, func(event *types.Event) bool {
		if payload, ok := event.Payload.(types.DataUpdatedPayload); ok {
			cb(payload)
		}
		return true
	}, bus.SubscribeOptions{})
}

// OnStatusChanged registers a callback for status events.
func (m *Manager) OnStatusChanged(cb func(types.StatusChangedPayload)) string {
	return m.bus.Subscribe(types.EventDependencyStatusChanged, func(event *types.Event) bool {
		if payload, ok := event.Payload.(types.StatusChangedPayload); ok {
			cb(payload)
		}
		return true
	}, bus.SubscribeOptions{})
}

// RemoveCallback drops a callback registered through OnDataUpdated or
// OnStatusChanged.
func (m *Manager) RemoveCallback(id string) bool {
	return m.bus.Unsubscribe(id)
}

// HasDependents reports whether any consumer hangs off the component for
// the data type. An empty data type matches every edge.
func (m *Manager) HasDependents(componentID, dataType string) bool {
	return len(m.GetDependents(componentID, dataType)) > 0
}

// GetDependents returns the consumer component ids fed by the component,
// filtered by data type.
func (m *Manager) GetDependents(componentID, dataType string) []string {
	var result []string
	seen := make(map[string]bool)
	for _, inst := range m.registry.GetDependenciesByProvider(componentID) {
		if dataType != "" && inst.DataType != dataType {
			continue
		}
		if !seen[inst.ConsumerID] {
			seen[inst.ConsumerID] = true
			result = append(result, inst.ConsumerID)
		}
	}
	return result
}

// HasProviders reports whether any provider feeds the component for the
// data type.
func (m *Manager) HasProviders(componentID, dataType string) bool {
	return len(m.GetProviders(componentID, dataType)) > 0
}

// GetProviders returns the provider component ids feeding the component,
// filtered by data type.
func (m *Manager) GetProviders(componentID, dataType string) []string {
	var result []string
	seen := make(map[string]bool)
	for _, inst := range m.registry.GetDependenciesByConsumer(componentID) {
		if dataType != "" && inst.DataType != dataType {
			continue
		}
		if !seen[inst.ProviderID] {
			seen[inst.ProviderID] = true
			result = append(result, inst.ProviderID)
		}
	}
	return result
}

// LastValue reads the provider's last-value cache.
func (m *Manager) LastValue(providerID, dataType string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.lastValues[lastValueKey{providerID: providerID, dataType: dataType}]
	return value, exists
}

// matchingInstances resolves the live edges for a publishing provider.
func (m *Manager) matchingInstances(providerID, dataType string) []*types.DependencyInstance {
	var result []*types.DependencyInstance
	for _, inst := range m.registry.GetDependenciesByProvider(providerID) {
		if inst.DataType == dataType {
			result = append(result, inst)
		}
	}
	return result
}

func (m *Manager) findInstance(providerID, consumerID, dataType string) (*types.DependencyInstance, bool) {
	for _, inst := range m.registry.GetDependenciesByProvider(providerID) {
		if inst.ConsumerID == consumerID && inst.DataType == dataType {
			return inst, true
		}
	}
	return nil, false
}

// applyHooks runs the validate/transform hooks of every definition the
// instance references, provider side first. A hook failure is returned as
// an error instead of escaping, so the caller can route the edge to the
// error status.
func (m *Manager) applyHooks(inst *types.DependencyInstance, payload interface{}) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("hook panic: %v", r)
		}
	}()

	value = payload
	for _, defID := range inst.DefinitionIDs {
		def, exists := m.registry.GetDefinition(defID)
		if !exists {
			continue
		}
		if def.Validate != nil {
			if vErr := def.Validate(value); vErr != nil {
				return nil, fmt.Errorf("validate hook: %w", vErr)
			}
		}
		if def.Transform != nil {
			transformed, tErr := def.Transform(value)
			if tErr != nil {
				return nil, fmt.Errorf("transform hook: %w", tErr)
			}
			value = transformed
		}
	}

	return value, nil
}

func (m *Manager) publishData(inst *types.DependencyInstance, value interface{}) {
	m.bus.Publish(types.EventDependencyDataUpdated, types.DataUpdatedPayload{
		DependencyID: inst.ID,
		ProviderID:   inst.ProviderID,
		ConsumerID:   inst.ConsumerID,
		DataType:     inst.DataType,
		Data:         value,
	}, bus.PublishOptions{Source: "manager"})
}
