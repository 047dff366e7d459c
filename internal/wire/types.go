package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrEmptyEvent = errors.New("envelope has no event name")
	ErrNoData     = errors.New("envelope has no data")
)

// Event names sent by the client.
const (
	EventJoinChat    = "join_chat"
	EventLeaveChat   = "leave_chat"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
)

// Event names sent by the server.
const (
	EventConnection     = "connection"
	EventJoinedChat     = "joined_chat"
	EventLeftChat       = "left_chat"
	EventNewMessage     = "new_message"
	EventMessageSent    = "message_sent"
	EventMessageDeleted = "message_deleted"
	EventUserStatus     = "user_status"
	EventNotification   = "notification"
	EventError          = "error"
)

// Envelope is the JSON frame exchanged over the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a wire frame for the given event and payload.
func Encode(event string, data interface{}) ([]byte, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}

	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Decode parses a raw frame into an envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrEmptyEvent
	}
	return env, nil
}

// DecodeData unmarshals the envelope payload into v.
func (e Envelope) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return ErrNoData
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("parse %s payload: %w", e.Event, err)
	}
	return nil
}

// JoinChat asks the server to add this socket to a chat room.
type JoinChat struct {
	ChatID string `json:"chatId"`
}

// LeaveChat asks the server to remove this socket from a chat room.
type LeaveChat struct {
	ChatID string `json:"chatId"`
}

// SendMessage carries an outbound chat message. ClientRef is a
// client-generated id the server echoes back in message_sent.
type SendMessage struct {
	ChatID    string `json:"chatId"`
	Content   string `json:"content"`
	ClientRef string `json:"clientRef,omitempty"`
}

// Typing carries a typing indicator in either direction. UserID is only
// set on inbound frames.
type Typing struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// ConnectionAck is the server's answer to the connect handshake. The
// server accepts the socket either way and reports authentication
// status in the payload rather than closing.
type ConnectionAck struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
	SID           string `json:"sid"`
	UserID        string `json:"userId,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Notification is a server push about activity outside the open chat.
type Notification struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
	SenderID  string `json:"senderId,omitempty"`
	Preview   string `json:"preview,omitempty"`
}

// Message is a chat message as delivered by the server.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	RoomID    string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
	ReplyTo   string    `json:"replyTo,omitempty"`
	IsDeleted bool      `json:"isDeleted,omitempty"`
}

// NewMessage wraps a delivered message with its room.
type NewMessage struct {
	ChatID  string  `json:"chatId"`
	Message Message `json:"message"`
}

// MessageSent confirms delivery of a send_message to its sender.
type MessageSent struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	ClientRef string `json:"clientRef,omitempty"`
}

// MessageDeleted announces a soft-deleted message to room members.
type MessageDeleted struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

// UserStatus reports a chat participant going online or offline.
type UserStatus struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// ServerError is the server's error event payload.
type ServerError struct {
	Message string `json:"message"`
}
