package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/helplane/support-widget/internal/model"
)

// ValidateMessageContent validates free-text message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 8192 {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateAttachment validates an attachment payload. Uploads happen
// out-of-band; messages only carry the resulting URL.
func ValidateAttachment(kind model.MessageKind, att *model.Attachment) error {
	if att == nil {
		return errors.New("attachment is required")
	}
	if kind != model.KindImage && kind != model.KindDocument {
		return errors.New("message_type must be image or document")
	}
	if att.FileURL == "" {
		return errors.New("attachment file_url cannot be empty")
	}
	if kind == model.KindDocument && att.FileName == "" {
		return errors.New("document attachments require a file_name")
	}
	return nil
}

// ValidateChatID validates a chat id.
func ValidateChatID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid chat ID format")
	}
	return nil
}

// ValidatePresetID validates a preset node id.
func ValidatePresetID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid preset ID format")
	}
	return nil
}

// ValidateSessionID validates the visitor session id minted by the widget
// loader.
func ValidateSessionID(id string) error {
	if len(id) == 0 {
		return errors.New("missing session ID")
	}
	if len(id) > 128 {
		return errors.New("session ID exceeds maximum length")
	}
	return nil
}
