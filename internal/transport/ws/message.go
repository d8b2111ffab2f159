package ws

import "encoding/json"

// Envelope is the wire format for every message in either direction: an
// event name (see the command table in internal/router) plus an opaque
// payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutEnvelope mirrors Envelope but carries a payload ready to marshal,
// used when writing (Payload is `any`, not yet serialized `RawMessage`).
type OutEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}
