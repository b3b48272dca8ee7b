package transport

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/ent0n29/avaass/internal/protocol"
)

// Kind tags an inbound message.
type Kind string

const (
	KindBinary Kind = "binary"
	// KindClosed reports that the current socket went away. Err holds the read error.
	KindClosed Kind = "closed"
	KindEnd    Kind = "end"
	KindError  Kind = "error"
	KindJSON   Kind = "json"
	KindText   Kind = "text"
)

// Message is the tagged envelope delivered to subscribers.
type Message struct {
	Kind Kind
	Data []byte
	Text string
	Err  error
}

// Classify converts a raw websocket frame into a Message.
func Classify(binary bool, data []byte) Message {
	if binary {
		return Message{Kind: KindBinary, Data: data}
	}
	text := string(data)
	if text == protocol.StreamEnd {
		return Message{Kind: KindEnd, Text: text}
	}
	if msg, ok := protocol.ParseStreamError(text); ok {
		return Message{Kind: KindError, Text: msg, Err: errors.New(msg)}
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return Message{Kind: KindJSON, Data: data, Text: text}
	}
	return Message{Kind: KindText, Text: text}
}
