package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmail/flowmail/internal/bus"
	"github.com/flowmail/flowmail/internal/core"
	"github.com/flowmail/flowmail/internal/types"
)

func newTestServer(t *testing.T) (*Server, *core.Core) {
	t.Helper()

	c := core.New(nil)
	s := NewServer(c, nil, nil)
	s.Start()
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	return s, c
}

func registerPair(c *core.Core, providerID, consumerID, dataType string) {
	c.Registry.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: providerID, DataType: dataType, Role: types.RoleProvider,
	})
	c.Registry.RegisterDefinition(&types.DependencyDefinition{
		ComponentID: consumerID, DataType: dataType, Role: types.RoleConsumer,
	})
}

func TestHandleCommand_Link(t *testing.T) {
	s, c := newTestServer(t)
	registerPair(c, "list-1", "detail-1", "email")

	ack := s.HandleCommand(context.Background(), &CommandFrame{
		Action: "link", Provider: "list-1", Consumer: "detail-1", DataType: "email",
	})

	require.NotNil(t, ack)
	assert.True(t, ack.OK)
	assert.NotEmpty(t, ack.DependencyID)

	payload, ok := ack.Payload.(types.DependencyPayload)
	require.True(t, ok)
	assert.Equal(t, "list-1", payload.ProviderID)
	assert.Equal(t, "detail-1", payload.ConsumerID)
	assert.Equal(t, 1, c.Registry.DependencyCount())
}

func TestHandleCommand_LinkWithoutDefinitions(t *testing.T) {
	s, _ := newTestServer(t)

	ack := s.HandleCommand(context.Background(), &CommandFrame{
		Action: "link", Provider: "list-1", Consumer: "detail-1", DataType: "email",
	})

	assert.False(t, ack.OK)
	assert.Equal(t, "no matching definitions", ack.Error)
}

func TestHandleCommand_PublishAndUnlink(t *testing.T) {
	s, c := newTestServer(t)
	registerPair(c, "list-1", "detail-1", "email")
	inst := c.Registry.CreateDependency("list-1", "detail-1", "email")
	require.NotNil(t, inst)

	ack := s.HandleCommand(context.Background(), &CommandFrame{
		Action: "publish", Provider: "list-1", DataType: "email",
		Data: json.RawMessage(`{"id": "msg-1"}`),
	})
	require.True(t, ack.OK)
	assert.Equal(t, types.StatusConnected, inst.Status)

	ack = s.HandleCommand(context.Background(), &CommandFrame{
		Action: "unlink", DependencyID: inst.ID,
	})
	assert.True(t, ack.OK)
	assert.Equal(t, 0, c.Registry.DependencyCount())
}

func TestHandleCommand_PublishMalformedData(t *testing.T) {
	s, _ := newTestServer(t)

	ack := s.HandleCommand(context.Background(), &CommandFrame{
		Action: "publish", Provider: "list-1", DataType: "email",
		Data: json.RawMessage(`{broken`),
	})

	assert.False(t, ack.OK)
	assert.Equal(t, "malformed data payload", ack.Error)
}

func TestHandleCommand_Lifecycle(t *testing.T) {
	s, c := newTestServer(t)
	registerPair(c, "list-1", "detail-1", "email")
	inst := c.Registry.CreateDependency("list-1", "detail-1", "email")
	require.NotNil(t, inst)
	c.Manager.UpdateData("list-1", "email", "payload")
	require.Equal(t, types.StatusConnected, inst.Status)

	ctx := context.Background()

	ack := s.HandleCommand(ctx, &CommandFrame{Action: "suspend", DependencyID: inst.ID})
	assert.True(t, ack.OK)
	assert.Equal(t, types.StatusSuspended, inst.Status)

	ack = s.HandleCommand(ctx, &CommandFrame{Action: "resume", DependencyID: inst.ID})
	assert.True(t, ack.OK)
	assert.Equal(t, types.StatusConnecting, inst.Status)

	ack = s.HandleCommand(ctx, &CommandFrame{Action: "retry", DependencyID: inst.ID})
	assert.False(t, ack.OK, "retry only applies to failed edges")
	assert.Equal(t, "operation rejected", ack.Error)

	ack = s.HandleCommand(ctx, &CommandFrame{Action: "forceUpdate", DependencyID: inst.ID})
	assert.True(t, ack.OK)
	assert.Equal(t, types.StatusConnected, inst.Status)
}

func TestHandleCommand_UnknownAction(t *testing.T) {
	s, _ := newTestServer(t)

	ack := s.HandleCommand(context.Background(), &CommandFrame{Action: "reboot"})

	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "unknown action")
}

func TestHandleCommand_SuspendUnknownDependency(t *testing.T) {
	s, _ := newTestServer(t)

	ack := s.HandleCommand(context.Background(), &CommandFrame{
		Action: "suspend", DependencyID: "missing",
	})

	assert.False(t, ack.OK)
	assert.Equal(t, "operation rejected", ack.Error)
}

func TestStartIsIdempotent(t *testing.T) {
	s, _ := newTestServer(t)

	before := len(s.subIDs)
	s.Start()

	assert.Equal(t, before, len(s.subIDs), "second Start must not double-subscribe")
}

func TestEventFrameJSONShape(t *testing.T) {
	_, c := newTestServer(t)
	registerPair(c, "list-1", "detail-1", "email")
	inst := c.Registry.CreateDependency("list-1", "detail-1", "email")
	require.NotNil(t, inst)

	var raw []byte
	c.Bus.Subscribe(types.EventDependencyDataUpdated, func(event *types.Event) bool {
		frame := EventFrame{
			Event:     event.Type,
			ID:        event.ID,
			Timestamp: event.Timestamp,
			OK:        true,
			Payload:   event.Payload,
		}
		data, err := json.Marshal(frame)
		require.NoError(t, err)
		raw = data
		return true
	}, bus.SubscribeOptions{})

	c.Manager.UpdateData("list-1", "email", map[string]interface{}{"id": "msg-1"})

	require.NotEmpty(t, raw)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "dependencyDataUpdated", decoded["event"])
	assert.Equal(t, true, decoded["ok"])
	assert.NotNil(t, decoded["payload"])
}
