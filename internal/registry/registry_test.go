package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmail/flowmail/internal/bus"
	"github.com/flowmail/flowmail/internal/logging"
	"github.com/flowmail/flowmail/internal/types"
)

func newTestRegistry() (*Registry, *bus.EventBus) {
	eventBus := bus.NewEventBus(logging.NewNopLogger())
	return NewRegistry(eventBus, logging.NewNopLogger()), eventBus
}

func registerPair(r *Registry, providerID, consumerID, dataType string) (string, string) {
	providerDef := r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: providerID,
		DataType:    dataType,
		Role:        types.RoleProvider,
	})
	consumerDef := r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: consumerID,
		DataType:    dataType,
		Role:        types.RoleConsumer,
	})
	return providerDef, consumerDef
}

func TestRegisterDefinition_GeneratesIDAndTimestamp(t *testing.T) {
	r, _ := newTestRegistry()

	id := r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "list-1",
		DataType:    "email",
		Role:        types.RoleProvider,
	})

	require.NotEmpty(t, id)
	def, exists := r.GetDefinition(id)
	require.True(t, exists)
	assert.Equal(t, "list-1", def.ComponentID)
	assert.False(t, def.CreatedAt.IsZero())
	assert.Equal(t, 1, r.DefinitionCount())
}

func TestRegisterDefinition_OverwriteIsSilent(t *testing.T) {
	r, _ := newTestRegistry()

	r.RegisterDefinition(&types.DependencyDefinition{
		ID:          "def-1",
		ComponentID: "list-1",
		DataType:    "email",
		Role:        types.RoleProvider,
	})
	r.RegisterDefinition(&types.DependencyDefinition{
		ID:          "def-1",
		ComponentID: "list-1",
		DataType:    "folder",
		Role:        types.RoleProvider,
	})

	assert.Equal(t, 1, r.DefinitionCount())
	def, exists := r.GetDefinition("def-1")
	require.True(t, exists)
	assert.Equal(t, "folder", def.DataType)

	// The old data-type index entry must be gone.
	assert.Empty(t, r.GetDefinitionsByDataType("email"))
	assert.Len(t, r.GetDefinitionsByDataType("folder"), 1)
}

func TestDefinitionIndices(t *testing.T) {
	r, _ := newTestRegistry()

	r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "list-1", DataType: "email", Role: types.RoleProvider,
	})
	r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "list-1", DataType: "folder", Role: types.RoleConsumer,
	})
	r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "detail-1", DataType: "email", Role: types.RoleBoth,
	})

	assert.Len(t, r.GetDefinitionsByComponent("list-1"), 2)
	assert.Len(t, r.GetDefinitionsByComponent("detail-1"), 1)
	assert.Empty(t, r.GetDefinitionsByComponent("ghost"))

	assert.Len(t, r.GetDefinitionsByDataType("email"), 2)
	assert.Len(t, r.GetDefinitionsByDataType("folder"), 1)

	// Both-role definitions show up on both sides.
	assert.Len(t, r.GetProviderDefinitions("email"), 2)
	assert.Len(t, r.GetConsumerDefinitions("email"), 1)
}

func TestCreateDependency(t *testing.T) {
	r, _ := newTestRegistry()
	registerPair(r, "list-1", "detail-1", "email")

	inst := r.CreateDependency("list-1", "detail-1", "email")

	require.NotNil(t, inst)
	assert.NotEmpty(t, inst.ID)
	assert.Equal(t, "list-1", inst.ProviderID)
	assert.Equal(t, "detail-1", inst.ConsumerID)
	assert.Equal(t, "email", inst.DataType)
	assert.Equal(t, types.StatusDisconnected, inst.Status)
	assert.Len(t, inst.DefinitionIDs, 2)
	assert.True(t, inst.Config.AutoUpdate)
	assert.True(t, inst.Config.NotifyOnChange)

	assert.Len(t, r.GetDependenciesByProvider("list-1"), 1)
	assert.Len(t, r.GetDependenciesByConsumer("detail-1"), 1)
	assert.Len(t, r.GetDependenciesByDataType("email"), 1)
}

func TestCreateDependency_Idempotent(t *testing.T) {
	r, _ := newTestRegistry()
	registerPair(r, "list-1", "detail-1", "email")

	first := r.CreateDependency("list-1", "detail-1", "email")
	second := r.CreateDependency("list-1", "detail-1", "email")

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, r.GetDependenciesByProvider("list-1"), 1)
}

func TestCreateDependency_MissingDefinitionsReturnsNil(t *testing.T) {
	r, _ := newTestRegistry()

	assert.Nil(t, r.CreateDependency("list-1", "detail-1", "email"))

	// Provider present but no consumer-role match.
	r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "list-1", DataType: "email", Role: types.RoleProvider,
	})
	assert.Nil(t, r.CreateDependency("list-1", "detail-1", "email"))

	// Role mismatch: both sides only provide.
	r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "detail-1", DataType: "email", Role: types.RoleProvider,
	})
	assert.Nil(t, r.CreateDependency("list-1", "detail-1", "email"))

	// Data type mismatch.
	r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "detail-1", DataType: "folder", Role: types.RoleConsumer,
	})
	assert.Nil(t, r.CreateDependency("list-1", "detail-1", "email"))

	assert.Equal(t, 0, r.DependencyCount())
}

func TestCreateDependency_PublishesEvent(t *testing.T) {
	r, eventBus := newTestRegistry()
	registerPair(r, "list-1", "detail-1", "email")

	var payload types.DependencyPayload
	eventBus.Subscribe(types.EventDependencyCreated, func(event *types.Event) bool {
		payload = event.Payload.(types.DependencyPayload)
		return true
	}, bus.SubscribeOptions{})

	inst := r.CreateDependency("list-1", "detail-1", "email")

	require.NotNil(t, inst)
	assert.Equal(t, inst.ID, payload.DependencyID)
	assert.Equal(t, types.StatusDisconnected, payload.Status)
}

func TestRemoveDefinition_CascadesInstances(t *testing.T) {
	r, _ := newTestRegistry()

	providerDef, _ := registerPair(r, "list-1", "detail-1", "email")
	r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "preview-1", DataType: "email", Role: types.RoleConsumer,
	})
	registerPair(r, "folders-1", "sidebar-1", "folder")

	require.NotNil(t, r.CreateDependency("list-1", "detail-1", "email"))
	require.NotNil(t, r.CreateDependency("list-1", "preview-1", "email"))
	unrelated := r.CreateDependency("folders-1", "sidebar-1", "folder")
	require.NotNil(t, unrelated)
	require.Equal(t, 3, r.DependencyCount())

	r.RemoveDefinition(providerDef)

	// Exactly the two instances built on the removed provider definition
	// are gone; the unrelated edge is untouched.
	assert.Equal(t, 1, r.DependencyCount())
	_, stillThere := r.GetDependency(unrelated.ID)
	assert.True(t, stillThere)
	assert.Empty(t, r.GetDependenciesByProvider("list-1"))
	assert.Empty(t, r.GetDependenciesByConsumer("detail-1"))
}

func TestRemoveDependency(t *testing.T) {
	r, eventBus := newTestRegistry()
	registerPair(r, "list-1", "detail-1", "email")
	inst := r.CreateDependency("list-1", "detail-1", "email")
	require.NotNil(t, inst)

	removed := false
	eventBus.Subscribe(types.EventDependencyRemoved, func(event *types.Event) bool {
		removed = true
		return true
	}, bus.SubscribeOptions{})

	r.RemoveDependency(inst.ID)

	assert.True(t, removed)
	assert.Equal(t, 0, r.DependencyCount())
	assert.Empty(t, r.GetDependenciesByProvider("list-1"))
	assert.Empty(t, r.GetDependenciesByConsumer("detail-1"))
	assert.Empty(t, r.GetDependenciesByDataType("email"))

	// Removing again is a quiet no-op.
	r.RemoveDependency(inst.ID)
}

func TestUpdateDependencyStatus_WriteReadConsistency(t *testing.T) {
	r, _ := newTestRegistry()
	registerPair(r, "list-1", "detail-1", "email")
	inst := r.CreateDependency("list-1", "detail-1", "email")
	require.NotNil(t, inst)

	statuses := []types.Status{
		types.StatusConnecting,
		types.StatusConnected,
		types.StatusReady,
		types.StatusSuspended,
		types.StatusError,
		types.StatusCycleDetected,
		types.StatusDisconnected,
	}
	for _, status := range statuses {
		require.True(t, r.UpdateDependencyStatus(inst.ID, status))
		got, exists := r.GetDependency(inst.ID)
		require.True(t, exists)
		assert.Equal(t, status, got.Status)
	}
}

func TestUpdateDependencyStatus_StampsLastUpdatedOnlyOnReady(t *testing.T) {
	r, _ := newTestRegistry()
	registerPair(r, "list-1", "detail-1", "email")
	inst := r.CreateDependency("list-1", "detail-1", "email")
	require.NotNil(t, inst)
	require.True(t, inst.LastUpdated.IsZero())

	r.UpdateDependencyStatus(inst.ID, types.StatusConnecting)
	assert.True(t, inst.LastUpdated.IsZero())

	r.UpdateDependencyStatus(inst.ID, types.StatusConnected)
	assert.True(t, inst.LastUpdated.IsZero())

	before := time.Now()
	r.UpdateDependencyStatus(inst.ID, types.StatusReady)
	assert.False(t, inst.LastUpdated.IsZero())
	assert.False(t, inst.LastUpdated.Before(before))

	stamped := inst.LastUpdated
	r.UpdateDependencyStatus(inst.ID, types.StatusConnected)
	assert.Equal(t, stamped, inst.LastUpdated, "non-ready transition keeps the stamp")
}

func TestUpdateDependencyStatus_RejectsUndefinedStatus(t *testing.T) {
	r, _ := newTestRegistry()
	registerPair(r, "list-1", "detail-1", "email")
	inst := r.CreateDependency("list-1", "detail-1", "email")
	require.NotNil(t, inst)

	assert.False(t, r.UpdateDependencyStatus(inst.ID, types.Status("sideways")))
	assert.Equal(t, types.StatusDisconnected, inst.Status)
}

func TestUpdateDependencyStatus_UnknownInstance(t *testing.T) {
	r, _ := newTestRegistry()

	assert.False(t, r.UpdateDependencyStatus("missing", types.StatusReady))
}

func TestSetDependencyError(t *testing.T) {
	r, eventBus := newTestRegistry()
	registerPair(r, "list-1", "detail-1", "email")
	inst := r.CreateDependency("list-1", "detail-1", "email")
	require.NotNil(t, inst)

	var payload types.StatusChangedPayload
	eventBus.Subscribe(types.EventDependencyStatusChanged, func(event *types.Event) bool {
		payload = event.Payload.(types.StatusChangedPayload)
		return true
	}, bus.SubscribeOptions{})

	require.True(t, r.SetDependencyError(inst.ID, "detail pane was closed"))

	assert.Equal(t, types.StatusError, inst.Status)
	assert.Equal(t, "detail pane was closed", inst.Error)
	assert.Equal(t, types.StatusError, payload.Status)
	assert.Equal(t, "detail pane was closed", payload.Error)

	// Leaving the error status clears the message.
	r.UpdateDependencyStatus(inst.ID, types.StatusConnecting)
	assert.Empty(t, inst.Error)
}

func TestFindCompatibleProvidersAndConsumers(t *testing.T) {
	r, _ := newTestRegistry()

	providerDef := r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "list-1", DataType: "email", Role: types.RoleProvider,
	})
	consumerDef := r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "detail-1", DataType: "email", Role: types.RoleConsumer,
	})
	r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "archive-1", DataType: "email", Role: types.RoleBoth,
	})
	r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "sidebar-1", DataType: "folder", Role: types.RoleProvider,
	})

	providers := r.FindCompatibleProviders(consumerDef)
	assert.Len(t, providers, 2, "provider and both roles match by data type")

	consumers := r.FindCompatibleConsumers(providerDef)
	assert.Len(t, consumers, 2, "consumer and both roles match by data type")

	// Compatibility queries on the wrong role come back empty.
	assert.Empty(t, r.FindCompatibleProviders(providerDef))
	assert.Empty(t, r.FindCompatibleConsumers(consumerDef))
	assert.Empty(t, r.FindCompatibleProviders("missing"))
}

func TestCreateDependency_CycleDetection(t *testing.T) {
	r, _ := newTestRegistry()

	// a -> b -> c established, then c -> a would close the loop.
	r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "a", DataType: "email", Role: types.RoleBoth,
	})
	r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "b", DataType: "email", Role: types.RoleBoth,
	})
	r.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: "c", DataType: "email", Role: types.RoleBoth,
	})

	require.Equal(t, types.StatusDisconnected, r.CreateDependency("a", "b", "email").Status)
	require.Equal(t, types.StatusDisconnected, r.CreateDependency("b", "c", "email").Status)

	closing := r.CreateDependency("c", "a", "email")
	require.NotNil(t, closing)
	assert.Equal(t, types.StatusCycleDetected, closing.Status)
	assert.NotEmpty(t, closing.Error)

	// Self-loops are cycles too.
	self := r.CreateDependency("a", "a", "email")
	require.NotNil(t, self)
	assert.Equal(t, types.StatusCycleDetected, self.Status)
}

func TestDependencyGraph(t *testing.T) {
	r, _ := newTestRegistry()
	registerPair(r, "list-1", "detail-1", "email")
	registerPair(r, "list-1", "preview-1", "email")
	require.NotNil(t, r.CreateDependency("list-1", "detail-1", "email"))
	require.NotNil(t, r.CreateDependency("list-1", "preview-1", "email"))

	graph := r.DependencyGraph()

	require.Contains(t, graph, "list-1")
	assert.ElementsMatch(t, []string{"detail-1", "preview-1"}, graph["list-1"])
}
