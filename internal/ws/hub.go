package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub keeps client sets per topic, e.g. "game" for every connected UI
// client or "auction:<id>" for one auction room.
type Hub struct {
	rooms sync.Map // topic -> *room
}

const TopicGame = "game"

func NewHub() *Hub { return &Hub{} }

// Broadcast is called by the event bridge.
func (h *Hub) Broadcast(topic string, msg []byte) {
	if v, ok := h.rooms.Load(topic); ok {
		v.(*room).broadcast(msg)
	}
}

// BroadcastJSON marshals an envelope and broadcasts it to the topic.
func (h *Hub) BroadcastJSON(topic, event string, body any) {
	raw, err := json.Marshal(map[string]any{"event": event, "body": body})
	if err != nil {
		zap.L().Warn("ws_marshal", zap.String("event", event), zap.Error(err))
		return
	}
	h.Broadcast(topic, raw)
}

func (h *Hub) Join(topic string, c *clientConn) {
	r, _ := h.rooms.LoadOrStore(topic, newRoom())
	r.(*room).add(c)
}

func (h *Hub) Leave(topic string, c *clientConn) {
	if v, ok := h.rooms.Load(topic); ok {
		v.(*room).remove(c)
	}
}
