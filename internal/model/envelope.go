package model

import "encoding/json"

// Event types carried on the live feed.
const (
	EventPrediction = "prediction"
	EventAlert      = "alert"
)

// Envelope is the tagged wire message delivered over the stream and the
// broker feed: {"type": "...", "data": {...}}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a raw feed message. A nil error does not imply the
// type is recognized; dispatch decides that.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
