package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/satriahrh/backbone/domain"
	"github.com/satriahrh/backbone/utils/log"
	"go.uber.org/zap"
)

const (
	SnapshotMessage = "snapshot"
	DraftMessage    = "draft"
	SubmitMessage   = "submit"
	ErrorMessage    = "error"
)

type Server struct {
	upgrader      websocket.Upgrader
	session       domain.Conversation
	messageBroker domain.MessageBroker
	hub           *Hub
}

func NewServer(session domain.Conversation, messageBroker domain.MessageBroker) *Server {
	return &Server{
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		session:       session,
		messageBroker: messageBroker,
		hub:           NewHub(),
	}
}

// Run starts the hub and the session event listener. Both stop with ctx.
func (s *Server) Run(ctx context.Context) error {
	events, err := s.messageBroker.Subscribe(ctx, domain.SessionEventsTopic, s.session.ID())
	if err != nil {
		return err
	}

	s.hub.Run(ctx)
	go s.listen(ctx, events)
	return nil
}

func (s *Server) GetHub() *Hub {
	return s.hub
}

// listen relays session events to every connected renderer.
func (s *Server) listen(ctx context.Context, events <-chan domain.Message) {
	ctx = context.WithValue(ctx, log.SessionIDKey, s.session.ID())
	log.WithCtx(ctx).Info("🎧 WebSocket server listening to session events")

	for {
		select {
		case msg, ok := <-events:
			if !ok {
				log.WithCtx(ctx).Info("🔒 Session event stream closed")
				return
			}

			var event domain.SessionEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.WithCtx(ctx).Error("❌ Failed to unmarshal session event", zap.Error(err))
				continue
			}

			data, err := json.Marshal(eventMessage(event))
			if err != nil {
				log.WithCtx(ctx).Error("❌ Failed to marshal WebSocket message", zap.Error(err))
				continue
			}

			s.hub.Broadcast(data)
			log.WithCtx(ctx).Debug("📤 Broadcasted session event",
				zap.String("type", string(event.Type)),
				zap.Int("clients", s.hub.ClientCount()))

		case <-ctx.Done():
			log.WithCtx(ctx).Info("🔒 Session event listener stopped")
			return
		}
	}
}

func eventMessage(event domain.SessionEvent) Message {
	data := map[string]interface{}{
		"session_id": event.SessionID,
		"pending":    event.Pending,
	}
	if event.Turn != nil {
		data["index"] = event.Index
		data["turn"] = event.Turn
	}
	return Message{
		Type:      string(event.Type),
		Timestamp: event.Timestamp,
		Data:      data,
	}
}

// sendSnapshot queues the full session state. Events for turns the snapshot
// already holds may still follow; renderers skip them by index.
func (s *Server) sendSnapshot(c *Client) {
	c.SendJSON(snapshotMessage(s.session.State()))
}

func snapshotMessage(state domain.SessionState) Message {
	return Message{
		Type:      SnapshotMessage,
		Timestamp: time.Now().UTC(),
		Data:      map[string]interface{}{"state": state},
	}
}

// handleClientMessage applies renderer commands to the session. Submits run
// in the background so the read loop keeps serving the connection.
func (s *Server) handleClientMessage(c *Client, msg Message) {
	text, hasText := msg.Data["text"].(string)

	switch msg.Type {
	case DraftMessage:
		s.session.SetDraft(text)

	case SubmitMessage:
		ctx := context.WithoutCancel(c.Context())
		go func() {
			if hasText {
				s.session.Submit(ctx, text)
				return
			}
			s.session.SubmitDraft(ctx)
		}()

	case SnapshotMessage:
		s.sendSnapshot(c)

	default:
		log.WithCtx(c.Context()).Warn("Unknown message type", zap.String("type", msg.Type))
		c.SendJSON(errorMessage("unknown message type: " + msg.Type))
	}
}
