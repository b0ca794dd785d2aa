package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("conversationId", "bad/id", "contains invalid characters")

	assert.Equal(t, ErrCodeValidationFailed, err.Code)
	assert.Equal(t, "conversationId", err.Context["field"])
	assert.Equal(t, "bad/id", err.Context["value"])
	assert.Contains(t, err.UserMessage, "conversationId")
	assert.False(t, err.Retryable)
}

func TestNewLogSourceErrorRetryability(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{500, true},
		{503, true},
		{429, true},
		{408, true},
		{404, false},
		{400, false},
		{403, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			err := NewLogSourceError("/conversations/conv1", tt.status, fmt.Errorf("http failure"))
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.Context["status_code"])
		})
	}
}

func TestNewUploadErrorAlwaysRetryable(t *testing.T) {
	err := NewUploadError("photo.jpg", fmt.Errorf("connection reset"))

	assert.True(t, err.Retryable)
	assert.Equal(t, ErrCodeUploadFailed, err.Code)
	assert.Equal(t, "photo.jpg", err.Context["filename"])
}

func TestNewPermissionError(t *testing.T) {
	err := NewPermissionError("deleteForEveryone", "window expired")

	assert.True(t, IsPermissionDenied(err))
	assert.Contains(t, err.Message, "deleteForEveryone")
	assert.Contains(t, err.Message, "window expired")
}

func TestNewStaleConversationError(t *testing.T) {
	err := NewStaleConversationError("conv1", "conv2")

	require.True(t, IsStaleConversation(err))
	assert.Equal(t, "conv1", err.Context["requested"])
	assert.Equal(t, "conv2", err.Context["current"])
	assert.False(t, IsStaleConversation(fmt.Errorf("plain error")))
}

func TestNewDatabaseError(t *testing.T) {
	cause := fmt.Errorf("database is locked")
	err := NewDatabaseError("save record", cause)

	assert.Equal(t, ErrCodeDatabaseQuery, err.Code)
	assert.Equal(t, cause, err.Unwrap())
	assert.Equal(t, "save record", err.Context["operation"])
}
