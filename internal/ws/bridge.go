package ws

import (
	"log/slog"

	"energysense/internal/model"
	"energysense/internal/twin"
)

// Bridge satisfies the pipeline's result callback and broadcasts each
// event to the WebSocket hub. Alerts, actions and twin traces go out as
// they land in the store; the full dashboard payload is pushed on a
// timer.
type Bridge struct {
	hub *Hub
	log *slog.Logger
}

func NewBridge(hub *Hub, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{hub: hub, log: log}
}

func (b *Bridge) OnAlert(alert model.Alert) {
	b.send(TypeAlertNew, alert)
}

func (b *Bridge) OnAction(action model.Action) {
	b.send(TypeActionUpdate, action)
}

func (b *Bridge) OnTrace(trace twin.TraceInfo) {
	b.send(TypeTwinTrace, trace)
}

// DashboardUpdate pushes a full dashboard payload to every client.
func (b *Bridge) DashboardUpdate(payload any) {
	b.send(TypeDashboardUpdate, payload)
}

func (b *Bridge) send(msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		b.log.Warn("dropping websocket message", "type", msgType, "error", err)
		return
	}
	b.hub.Broadcast(msg)
}
