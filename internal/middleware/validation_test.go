package middleware

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidateChatID(t *testing.T) {
	assert.NoError(t, ValidateChatID(uuid.New().String()))
	assert.Error(t, ValidateChatID(""))
	assert.Error(t, ValidateChatID("not-a-uuid"))
	assert.Error(t, ValidateChatID("optimistic_abc"))
}

func TestValidatePresetID(t *testing.T) {
	assert.NoError(t, ValidatePresetID(uuid.New().String()))
	assert.Error(t, ValidatePresetID("../../etc/passwd"))
}

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("hello"))
	assert.NoError(t, ValidateMessageContent("héllo 👋"))
	assert.Error(t, ValidateMessageContent(""))
	assert.Error(t, ValidateMessageContent(strings.Repeat("a", 8193)))
	assert.Error(t, ValidateMessageContent("bad\xff\xfe"))
}

func TestValidateSessionID(t *testing.T) {
	assert.NoError(t, ValidateSessionID("visitor-abc123"))
	assert.Error(t, ValidateSessionID(""))
	assert.Error(t, ValidateSessionID(strings.Repeat("x", 129)))
}
