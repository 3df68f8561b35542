package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SenderType identifies who produced a message.
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAgent    SenderType = "agent"
	SenderBot      SenderType = "bot"
)

// MessageKind identifies the payload shape of a message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindDocument MessageKind = "document"
	KindPreset   MessageKind = "preset"
)

// OptimisticIDPrefix marks locally generated, not-yet-confirmed message ids.
// The realtime echo of the same content replaces the optimistic record.
const OptimisticIDPrefix = "optimistic_"

// Attachment is the closed payload variant for image and document messages.
// Images carry only a URL; documents also carry a name and size. Text and
// preset messages have no attachment.
type Attachment struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Message is one utterance in a chat. Messages are append-only; the only
// field ever mutated after creation is the read flag.
type Message struct {
	ID         string      `json:"id"`
	ChatID     string      `json:"chat_id"`
	SenderType SenderType  `json:"sender_type"`
	SenderID   string      `json:"sender_id,omitempty"`
	Content    string      `json:"content,omitempty"`
	Kind       MessageKind `json:"message_type"`
	Attachment *Attachment `json:"attachment,omitempty"`
	IsRead     bool        `json:"is_read"`
	CreatedAt  time.Time   `json:"created_at"`
}

// IsOptimistic reports whether the message is a local echo awaiting its
// authoritative counterpart from the realtime channel.
func (m Message) IsOptimistic() bool {
	return strings.HasPrefix(m.ID, OptimisticIDPrefix)
}

// NewTextMessage builds an unpersisted text message.
func NewTextMessage(chatID string, sender SenderType, content string) Message {
	return Message{
		ID:         uuid.Must(uuid.NewV7()).String(),
		ChatID:     chatID,
		SenderType: sender,
		Content:    content,
		Kind:       KindText,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewPresetEcho builds the customer-side echo of a preset button press.
func NewPresetEcho(chatID, label string) Message {
	m := NewTextMessage(chatID, SenderCustomer, label)
	m.Kind = KindPreset
	return m
}

// NewAttachmentMessage builds an image or document message.
func NewAttachmentMessage(chatID string, sender SenderType, kind MessageKind, att Attachment) Message {
	m := NewTextMessage(chatID, sender, att.FileName)
	m.Kind = kind
	m.Attachment = &att
	return m
}

// Optimistic returns a copy of the message with a locally generated
// temporary id, distinguishable from persisted ids.
func (m Message) Optimistic() Message {
	m.ID = OptimisticIDPrefix + uuid.NewString()
	return m
}

// SendMessageRequest is the request to send a message: free text, or an
// already-uploaded attachment.
type SendMessageRequest struct {
	Content    string      `json:"content"`
	Kind       MessageKind `json:"message_type,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// ListMessagesResponse is the response for listing chat messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}
