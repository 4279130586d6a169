// Package bridge provides the reference bridge adapter between the
// dependency core and the browser front end. It subscribes to the core's
// dependency events on the bus and fans them out as JSON frames over
// WebSocket connections, and it translates inbound client frames into
// registry and manager calls. The core itself knows nothing about
// panels, tabs, or WebSockets; everything here runs on the public
// operation surface.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/flowmail/flowmail/internal/bus"
	"github.com/flowmail/flowmail/internal/core"
	"github.com/flowmail/flowmail/internal/logging"
	"github.com/flowmail/flowmail/internal/types"
)

// forwardedEvents are the core event types re-published to browsers.
var forwardedEvents = []string{
	types.EventDependencyCreated,
	types.EventDependencyRemoved,
	types.EventDependencyDataUpdated,
	types.EventDependencyStatusChanged,
}

// CommandFrame is an inbound client request.
type CommandFrame struct {
	Action       string          `json:"action"`
	Provider     string          `json:"provider,omitempty"`
	Consumer     string          `json:"consumer,omitempty"`
	DataType     string          `json:"dataType,omitempty"`
	DependencyID string          `json:"dependencyId,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// EventFrame is an outbound message to clients.
type EventFrame struct {
	Event        string      `json:"event"`
	ID           string      `json:"id,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	DependencyID string      `json:"dependencyId,omitempty"`
	OK           bool        `json:"ok"`
	Error        string      `json:"error,omitempty"`
	Payload      interface{} `json:"payload,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server fans core events out to WebSocket clients.
type Server struct {
	core           *core.Core
	logger         logging.Logger
	allowedOrigins []string

	mu      sync.RWMutex
	clients map[*client]struct{}
	subIDs  []string
}

// NewServer creates a bridge server over the given core. allowedOrigins
// follows coder/websocket origin patterns; empty means same-origin only.
func NewServer(c *core.Core, logger logging.Logger, allowedOrigins []string) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{
		core:           c,
		logger:         logger.WithComponent("bridge"),
		allowedOrigins: allowedOrigins,
		clients:        make(map[*client]struct{}),
	}
}

// Start subscribes the bridge to the core's dependency events.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subIDs) > 0 {
		return
	}

	for _, eventType := range forwardedEvents {
		id := s.core.Bus.Subscribe(eventType, func(event *types.Event) bool {
			s.broadcast(event)
			return true
		}, bus.SubscribeOptions{})
		s.subIDs = append(s.subIDs, id)
	}
}

// Shutdown unsubscribes from the bus and closes every client connection.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	for _, id := range s.subIDs {
		s.core.Bus.Unsubscribe(id)
	}
	s.subIDs = nil

	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}

	s.logger.Info(ctx, "bridge shut down", "clients_closed", len(clients))
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.clients)
}

// ServeWS upgrades an HTTP request and runs the connection until it
// closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket accept failed", "remote", r.RemoteAddr)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.writeLoop(ctx, c)
	s.readLoop(ctx, c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var frame CommandFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.reply(c, &EventFrame{
				Event:     "error",
				Timestamp: time.Now(),
				OK:        false,
				Error:     "malformed frame",
			})
			continue
		}

		s.reply(c, s.HandleCommand(ctx, &frame))
	}
}

func (s *Server) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// HandleCommand translates a client frame into core operations. It never
// returns nil: misses come back as ok=false acks, mirroring the core's
// "return empty + log" policy.
func (s *Server) HandleCommand(ctx context.Context, frame *CommandFrame) *EventFrame {
	ack := &EventFrame{
		Event:     "ack",
		Timestamp: time.Now(),
		OK:        true,
	}

	switch frame.Action {
	case "link":
		inst := s.core.Manager.RequestData(frame.Consumer, frame.Provider, frame.DataType)
		if inst == nil {
			ack.OK = false
			ack.Error = "no matching definitions"
			break
		}
		ack.DependencyID = inst.ID
		ack.Payload = types.DependencyPayload{
			DependencyID: inst.ID,
			ProviderID:   inst.ProviderID,
			ConsumerID:   inst.ConsumerID,
			DataType:     inst.DataType,
			Status:       inst.Status,
		}

	case "unlink":
		s.core.Registry.RemoveDependency(frame.DependencyID)
		ack.DependencyID = frame.DependencyID

	case "publish":
		var payload interface{}
		if len(frame.Data) > 0 {
			if err := json.Unmarshal(frame.Data, &payload); err != nil {
				ack.OK = false
				ack.Error = "malformed data payload"
				break
			}
		}
		s.core.Manager.UpdateData(frame.Provider, frame.DataType, payload)

	case "suspend":
		ack.OK = s.core.Manager.Suspend(frame.DependencyID)
		ack.DependencyID = frame.DependencyID

	case "resume":
		ack.OK = s.core.Manager.Resume(frame.DependencyID)
		ack.DependencyID = frame.DependencyID

	case "retry":
		ack.OK = s.core.Manager.Retry(frame.DependencyID)
		ack.DependencyID = frame.DependencyID

	case "forceUpdate":
		ack.OK = s.core.Manager.ForceTriggerUpdate(frame.DependencyID)
		ack.DependencyID = frame.DependencyID

	default:
		ack.OK = false
		ack.Error = fmt.Sprintf("unknown action %q", frame.Action)
	}

	if !ack.OK && ack.Error == "" {
		ack.Error = "operation rejected"
	}

	return ack
}

// broadcast serializes a core event and queues it on every client. Slow
// clients drop frames instead of stalling dispatch.
func (s *Server) broadcast(event *types.Event) {
	frame := EventFrame{
		Event:     event.Type,
		ID:        event.ID,
		Timestamp: event.Timestamp,
		OK:        true,
		Payload:   event.Payload,
	}

	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Warn(context.Background(), err, "event frame marshal failed", "event_type", event.Type)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Skip if the client's queue is full
		}
	}
}

func (s *Server) reply(c *client, frame *EventFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
