package ws

import "encoding/json"

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Server -> client message types. The dashboard stream is push only;
// frames from clients are read and discarded.
const (
	TypeDashboardUpdate = "dashboard:update"
	TypeAlertNew        = "alert:new"
	TypeActionUpdate    = "action:update"
	TypeTwinTrace       = "twin:trace"
)

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
