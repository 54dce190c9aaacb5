package protocol

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	fieldContent    = "content"
	fieldKind       = "kind"
	fieldSenderID   = "senderId"
	fieldSenderRole = "senderRole"
)

// Codec converts application messages to and from the data channel wire
// format, a protobuf encoded google.protobuf.Struct.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) EncodeToBytes(msg Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldKind:       structpb.NewStringValue(string(msg.Kind)),
		fieldContent:    structpb.NewStringValue(msg.Content),
		fieldSenderID:   structpb.NewStringValue(msg.SenderID),
		fieldSenderRole: structpb.NewStringValue(string(msg.SenderRole)),
	}}

	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return data, nil
}

func (c *Codec) DecodeFromBytes(data []byte) (Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Message{}, fmt.Errorf("unmarshal message: %w", err)
	}

	msg := Message{
		Kind:       Kind(s.GetFields()[fieldKind].GetStringValue()),
		Content:    s.GetFields()[fieldContent].GetStringValue(),
		SenderID:   s.GetFields()[fieldSenderID].GetStringValue(),
		SenderRole: Role(s.GetFields()[fieldSenderRole].GetStringValue()),
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}
