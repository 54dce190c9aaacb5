package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKind    = errors.New("invalid message kind")
	ErrContentTooLong = errors.New("message content too long")
)

// Message is the application message exchanged between partners.
type Message struct {
	Kind       Kind
	Content    string
	SenderID   string
	SenderRole Role
}

func NewPing(senderID string, role Role) Message {
	return Message{Kind: KindPing, SenderID: senderID, SenderRole: role}
}

func NewPong(senderID string, role Role) Message {
	return Message{Kind: KindPong, SenderID: senderID, SenderRole: role}
}

func NewRateUpdate(senderID string, role Role, content string) Message {
	return Message{Kind: KindRateUpdate, Content: content, SenderID: senderID, SenderRole: role}
}

func (m Message) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, string(m.Kind))
	}
	if len(m.Content) > MaxContentSize {
		return ErrContentTooLong
	}
	return nil
}

// Envelope is one JSON frame exchanged with the broker.
type Envelope struct {
	Type    EnvelopeType `json:"type"`
	Src     string       `json:"src,omitempty"`
	Dst     string       `json:"dst,omitempty"`
	Payload *Payload     `json:"payload,omitempty"`
}

// Payload carries signaling data for one channel. Data is an SDP for
// OFFER/ANSWER and a JSON ICE candidate for CANDIDATE; for ERROR it is the
// reason.
type Payload struct {
	ConnectionID string `json:"connectionId,omitempty"`
	Data         string `json:"data,omitempty"`
}

func (e Envelope) ConnectionID() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.ConnectionID
}
