// Package registry implements the definition catalog and the live
// instance graph of the FlowMail dependency core. It is the source of
// truth for declared provider/consumer capabilities and for the
// adjacency of concrete dependency edges; the manager drives data and
// status through it but never bypasses its index maintenance.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowmail/flowmail/internal/bus"
	"github.com/flowmail/flowmail/internal/logging"
	"github.com/flowmail/flowmail/internal/types"
)

// Registry manages dependency definitions and live instances with
// secondary indices for O(1) lookup and cascading removal.
type Registry struct {
	mu sync.RWMutex

	definitions map[string]*types.DependencyDefinition
	instances   map[string]*types.DependencyInstance

	defsByComponent map[string]map[string]*types.DependencyDefinition
	defsByDataType  map[string]map[string]*types.DependencyDefinition

	instByProvider map[string]map[string]*types.DependencyInstance
	instByConsumer map[string]map[string]*types.DependencyInstance
	instByDataType map[string]map[string]*types.DependencyInstance

	bus    *bus.EventBus
	logger logging.Logger
}

// NewRegistry creates a new registry publishing lifecycle events on the
// given bus.
func NewRegistry(eventBus *bus.EventBus, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Registry{
		definitions:     make(map[string]*types.DependencyDefinition),
		instances:       make(map[string]*types.DependencyInstance),
		defsByComponent: make(map[string]map[string]*types.DependencyDefinition),
		defsByDataType:  make(map[string]map[string]*types.DependencyDefinition),
		instByProvider:  make(map[string]map[string]*types.DependencyInstance),
		instByConsumer:  make(map[string]map[string]*types.DependencyInstance),
		instByDataType:  make(map[string]map[string]*types.DependencyInstance),
		bus:             eventBus,
		logger:          logger.WithComponent("registry"),
	}
}

// RegisterDefinition adds a definition to the catalog and returns its id.
// A missing id is generated. Re-registering an existing id overwrites the
// previous definition silently; registration is not an error path.
func (r *Registry) RegisterDefinition(def *types.DependencyDefinition) string {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}

	r.mu.Lock()
	if existing, exists := r.definitions[def.ID]; exists {
		r.logger.Warn(context.Background(), nil, "definition overwritten",
			"definition_id", def.ID, "component_id", existing.ComponentID)
		r.unindexDefinitionLocked(existing)
	}
	r.definitions[def.ID] = def
	r.indexDefinitionLocked(def)
	r.mu.Unlock()

	r.publish(types.EventDefinitionRegistered, types.DefinitionPayload{
		DefinitionID: def.ID,
		ComponentID:  def.ComponentID,
		DataType:     def.DataType,
		Role:         def.Role,
	})

	return def.ID
}

// RemoveDefinition deletes a definition and cascades removal of every
// instance whose provider- or consumer-side definition was this one.
func (r *Registry) RemoveDefinition(id string) {
	r.mu.Lock()
	def, exists := r.definitions[id]
	if !exists {
		r.mu.Unlock()
		r.logger.Debug(context.Background(), "remove of unknown definition", "definition_id", id)
		return
	}

	delete(r.definitions, id)
	r.unindexDefinitionLocked(def)

	var cascaded []*types.DependencyInstance
	for _, inst := range r.instances {
		if inst.DependsOn(id) {
			cascaded = append(cascaded, inst)
		}
	}
	for _, inst := range cascaded {
		r.removeInstanceLocked(inst)
	}
	r.mu.Unlock()

	r.publish(types.EventDefinitionRemoved, types.DefinitionPayload{
		DefinitionID: def.ID,
		ComponentID:  def.ComponentID,
		DataType:     def.DataType,
		Role:         def.Role,
	})
	for _, inst := range cascaded {
		r.publishRemoved(inst)
	}
}

// GetDefinition retrieves a definition by id.
func (r *Registry) GetDefinition(id string) (*types.DependencyDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.definitions[id]
	return def, exists
}

// GetDefinitionsByComponent returns all definitions owned by a component.
func (r *Registry) GetDefinitionsByComponent(componentID string) []*types.DependencyDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return collectDefs(r.defsByComponent[componentID])
}

// GetDefinitionsByDataType returns all definitions for a data type.
func (r *Registry) GetDefinitionsByDataType(dataType string) []*types.DependencyDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return collectDefs(r.defsByDataType[dataType])
}

// GetProviderDefinitions returns the provider-role definitions for a data type.
func (r *Registry) GetProviderDefinitions(dataType string) []*types.DependencyDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*types.DependencyDefinition
	for _, def := range r.defsByDataType[dataType] {
		if def.Role.CanProvide() {
			result = append(result, def)
		}
	}
	return result
}

// GetConsumerDefinitions returns the consumer-role definitions for a data type.
func (r *Registry) GetConsumerDefinitions(dataType string) []*types.DependencyDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*types.DependencyDefinition
	for _, def := range r.defsByDataType[dataType] {
		if def.Role.CanConsume() {
			result = append(result, def)
		}
	}
	return result
}

// FindCompatibleProviders returns the provider-role definitions that could
// link to the given consumer definition, matching by data type only. It
// answers "could a link exist" without inspecting live components.
func (r *Registry) FindCompatibleProviders(consumerDefinitionID string) []*types.DependencyDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	consumer, exists := r.definitions[consumerDefinitionID]
	if !exists || !consumer.Role.CanConsume() {
		return nil
	}

	var result []*types.DependencyDefinition
	for _, def := range r.defsByDataType[consumer.DataType] {
		if def.ID != consumer.ID && def.Role.CanProvide() {
			result = append(result, def)
		}
	}
	return result
}

// FindCompatibleConsumers returns the consumer-role definitions that could
// link to the given provider definition, matching by data type only.
func (r *Registry) FindCompatibleConsumers(providerDefinitionID string) []*types.DependencyDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.definitions[providerDefinitionID]
	if !exists || !provider.Role.CanProvide() {
		return nil
	}

	var result []*types.DependencyDefinition
	for _, def := range r.defsByDataType[provider.DataType] {
		if def.ID != provider.ID && def.Role.CanConsume() {
			result = append(result, def)
		}
	}
	return result
}

// CreateDependency links a provider component to a consumer component for
// a data type. It requires a provider-role definition owned by providerID
// and a consumer-role definition owned by consumerID, both matching
// dataType; a miss returns nil, which is a normal outcome callers must
// check for, not an exception. The call is idempotent: at most one
// instance exists per (provider, consumer, dataType) triple.
//
// An edge that would close a provider-to-consumer cycle is still created
// so callers can observe it, but is pinned to the terminal cycle_detected
// status and never carries data.
func (r *Registry) CreateDependency(providerID, consumerID, dataType string) *types.DependencyInstance {
	r.mu.Lock()

	if existing := r.findInstanceLocked(providerID, consumerID, dataType); existing != nil {
		r.mu.Unlock()
		return existing
	}

	providerDef := r.findRoleDefLocked(providerID, dataType, types.Role.CanProvide)
	consumerDef := r.findRoleDefLocked(consumerID, dataType, types.Role.CanConsume)
	if providerDef == nil || consumerDef == nil {
		r.mu.Unlock()
		r.logger.Warn(context.Background(), nil, "no matching definitions for link request",
			"provider_id", providerID, "consumer_id", consumerID, "data_type", dataType)
		return nil
	}

	inst := &types.DependencyInstance{
		ID:            uuid.NewString(),
		DefinitionIDs: []string{providerDef.ID, consumerDef.ID},
		ProviderID:    providerID,
		ConsumerID:    consumerID,
		DataType:      dataType,
		Status:        types.StatusDisconnected,
		Config: types.InstanceConfig{
			AutoUpdate:     true,
			NotifyOnChange: true,
		},
	}

	cycle := r.wouldCycleLocked(providerID, consumerID)
	if cycle {
		inst.Status = types.StatusCycleDetected
		inst.Error = "edge would close a provider/consumer cycle"
	}

	r.instances[inst.ID] = inst
	r.indexInstanceLocked(inst)
	r.mu.Unlock()

	r.publish(types.EventDependencyCreated, types.DependencyPayload{
		DependencyID: inst.ID,
		ProviderID:   inst.ProviderID,
		ConsumerID:   inst.ConsumerID,
		DataType:     inst.DataType,
		Status:       inst.Status,
	})
	if cycle {
		r.logger.Warn(context.Background(), nil, "cycle detected on link request",
			"provider_id", providerID, "consumer_id", consumerID, "data_type", dataType)
		r.publish(types.EventDependencyStatusChanged, types.StatusChangedPayload{
			DependencyID: inst.ID,
			Previous:     types.StatusDisconnected,
			Status:       types.StatusCycleDetected,
			Error:        inst.Error,
		})
	}

	return inst
}

// RemoveDependency deletes an instance and all its index entries.
func (r *Registry) RemoveDependency(id string) {
	r.mu.Lock()
	inst, exists := r.instances[id]
	if !exists {
		r.mu.Unlock()
		r.logger.Debug(context.Background(), "remove of unknown dependency", "dependency_id", id)
		return
	}
	r.removeInstanceLocked(inst)
	r.mu.Unlock()

	r.publishRemoved(inst)
}

// GetDependency retrieves an instance by id.
func (r *Registry) GetDependency(id string) (*types.DependencyInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, exists := r.instances[id]
	return inst, exists
}

// GetDependenciesByProvider returns all instances with the given provider.
func (r *Registry) GetDependenciesByProvider(providerID string) []*types.DependencyInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return collectInsts(r.instByProvider[providerID])
}

// GetDependenciesByConsumer returns all instances with the given consumer.
func (r *Registry) GetDependenciesByConsumer(consumerID string) []*types.DependencyInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return collectInsts(r.instByConsumer[consumerID])
}

// GetDependenciesByDataType returns all instances carrying the data type.
func (r *Registry) GetDependenciesByDataType(dataType string) []*types.DependencyInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return collectInsts(r.instByDataType[dataType])
}

// UpdateDependencyStatus sets an instance status and publishes a status
// event. LastUpdated is stamped exactly when the new status is ready;
// other transitions leave the timestamp untouched. Returns false for an
// unknown instance or an undefined status.
func (r *Registry) UpdateDependencyStatus(id string, status types.Status) bool {
	if !status.Valid() {
		r.logger.Warn(context.Background(), nil, "undefined status rejected",
			"dependency_id", id, "status", string(status))
		return false
	}

	r.mu.Lock()
	inst, exists := r.instances[id]
	if !exists {
		r.mu.Unlock()
		r.logger.Debug(context.Background(), "status update for unknown dependency", "dependency_id", id)
		return false
	}

	previous := inst.Status
	inst.Status = status
	if status != types.StatusError {
		inst.Error = ""
	}
	if status == types.StatusReady {
		inst.LastUpdated = time.Now()
	}
	errMsg := inst.Error
	r.mu.Unlock()

	r.publish(types.EventDependencyStatusChanged, types.StatusChangedPayload{
		DependencyID: id,
		Previous:     previous,
		Status:       status,
		Error:        errMsg,
	})

	return true
}

// SetDependencyError moves an instance to the error status with a
// free-text message. This is the only structured error channel the core
// exposes upward.
func (r *Registry) SetDependencyError(id, message string) bool {
	r.mu.Lock()
	inst, exists := r.instances[id]
	if !exists {
		r.mu.Unlock()
		r.logger.Debug(context.Background(), "error set for unknown dependency", "dependency_id", id)
		return false
	}

	previous := inst.Status
	inst.Status = types.StatusError
	inst.Error = message
	r.mu.Unlock()

	r.publish(types.EventDependencyStatusChanged, types.StatusChangedPayload{
		DependencyID: id,
		Previous:     previous,
		Status:       types.StatusError,
		Error:        message,
	})

	return true
}

// SetDependencyData writes a payload into an instance cache. Only the
// manager's update path calls this; external code must publish through
// the manager instead.
func (r *Registry) SetDependencyData(id string, data interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, exists := r.instances[id]
	if !exists {
		return false
	}
	inst.Data = data
	return true
}

// Definitions returns every registered definition.
func (r *Registry) Definitions() []*types.DependencyDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return collectDefs(r.definitions)
}

// Dependencies returns every live instance.
func (r *Registry) Dependencies() []*types.DependencyInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return collectInsts(r.instances)
}

// DefinitionCount returns the number of registered definitions.
func (r *Registry) DefinitionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.definitions)
}

// DependencyCount returns the number of live instances.
func (r *Registry) DependencyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.instances)
}

// index maintenance

func (r *Registry) indexDefinitionLocked(def *types.DependencyDefinition) {
	if r.defsByComponent[def.ComponentID] == nil {
		r.defsByComponent[def.ComponentID] = make(map[string]*types.DependencyDefinition)
	}
	r.defsByComponent[def.ComponentID][def.ID] = def

	if r.defsByDataType[def.DataType] == nil {
		r.defsByDataType[def.DataType] = make(map[string]*types.DependencyDefinition)
	}
	r.defsByDataType[def.DataType][def.ID] = def
}

func (r *Registry) unindexDefinitionLocked(def *types.DependencyDefinition) {
	delete(r.defsByComponent[def.ComponentID], def.ID)
	if len(r.defsByComponent[def.ComponentID]) == 0 {
		delete(r.defsByComponent, def.ComponentID)
	}
	delete(r.defsByDataType[def.DataType], def.ID)
	if len(r.defsByDataType[def.DataType]) == 0 {
		delete(r.defsByDataType, def.DataType)
	}
}

func (r *Registry) indexInstanceLocked(inst *types.DependencyInstance) {
	if r.instByProvider[inst.ProviderID] == nil {
		r.instByProvider[inst.ProviderID] = make(map[string]*types.DependencyInstance)
	}
	r.instByProvider[inst.ProviderID][inst.ID] = inst

	if r.instByConsumer[inst.ConsumerID] == nil {
		r.instByConsumer[inst.ConsumerID] = make(map[string]*types.DependencyInstance)
	}
	r.instByConsumer[inst.ConsumerID][inst.ID] = inst

	if r.instByDataType[inst.DataType] == nil {
		r.instByDataType[inst.DataType] = make(map[string]*types.DependencyInstance)
	}
	r.instByDataType[inst.DataType][inst.ID] = inst
}

func (r *Registry) removeInstanceLocked(inst *types.DependencyInstance) {
	delete(r.instances, inst.ID)

	delete(r.instByProvider[inst.ProviderID], inst.ID)
	if len(r.instByProvider[inst.ProviderID]) == 0 {
		delete(r.instByProvider, inst.ProviderID)
	}
	delete(r.instByConsumer[inst.ConsumerID], inst.ID)
	if len(r.instByConsumer[inst.ConsumerID]) == 0 {
		delete(r.instByConsumer, inst.ConsumerID)
	}
	delete(r.instByDataType[inst.DataType], inst.ID)
	if len(r.instByDataType[inst.DataType]) == 0 {
		delete(r.instByDataType, inst.DataType)
	}
}

func (r *Registry) findInstanceLocked(providerID, consumerID, dataType string) *types.DependencyInstance {
	for _, inst := range r.instByProvider[providerID] {
		if inst.ConsumerID == consumerID && inst.DataType == dataType {
			return inst
		}
	}
	return nil
}

func (r *Registry) findRoleDefLocked(componentID, dataType string, hasRole func(types.Role) bool) *types.DependencyDefinition {
	for _, def := range r.defsByComponent[componentID] {
		if def.DataType == dataType && hasRole(def.Role) {
			return def
		}
	}
	return nil
}

func (r *Registry) publish(eventType string, payload interface{}) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventType, payload, bus.PublishOptions{Source: "registry"})
}

func (r *Registry) publishRemoved(inst *types.DependencyInstance) {
	r.publish(types.EventDependencyRemoved, types.DependencyPayload{
		DependencyID: inst.ID,
		ProviderID:   inst.ProviderID,
		ConsumerID:   inst.ConsumerID,
		DataType:     inst.DataType,
		Status:       inst.Status,
	})
}

func collectDefs(m map[string]*types.DependencyDefinition) []*types.DependencyDefinition {
	if len(m) == 0 {
		return nil
	}
	result := make([]*types.DependencyDefinition, 0, len(m))
	for _, def := range m {
		result = append(result, def)
	}
	return result
}

func collectInsts(m map[string]*types.DependencyInstance) []*types.DependencyInstance {
	if len(m) == 0 {
		return nil
	}
	result := make([]*types.DependencyInstance, 0, len(m))
	for _, inst := range m {
		result = append(result, inst)
	}
	return result
}
