package ws

import (
	"encoding/json"

	"whisper/domain/event"
)

// Envelope is the wire frame of the live channel: a named event and its
// payload, both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func newEnvelope(e event.DomainEvent) (Envelope, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: e.EventName(), Data: data}, nil
}

// Inbound payloads. Ids travel as strings and are parsed at the edge so
// services only ever see uuids.

type sendMessagePayload struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	TempID     string `json:"tempId"`
}

type markReadPayload struct {
	MessageIDs []string `json:"messageIds"`
}

type historyPayload struct {
	PartnerID string  `json:"partnerId"`
	Limit     int     `json:"limit"`
	Before    *string `json:"before,omitempty"`
}

type typingPayload struct {
	ReceiverID string `json:"receiverId"`
}

type editMessagePayload struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type deleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

type userStatusPayload struct {
	UserID string `json:"userId"`
}
