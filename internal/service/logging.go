package service

import (
	"context"
	"fmt"
	"strings"

	"chatsync/internal/constants"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeUserID masks user identifiers for privacy
func SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}

	// For privacy, show only the last N characters
	if len(userID) > constants.DefaultUserIDMaskLength {
		return "***" + userID[len(userID)-constants.DefaultUserIDMaskLength:]
	}
	return "***"
}

// SanitizeKey shortens message keys for log output
func SanitizeKey(key string) string {
	if key == "" {
		return ""
	}

	// Show only first N characters
	if len(key) > constants.DefaultKeyLogLength {
		return key[:constants.DefaultKeyLogLength] + "..."
	}
	return key
}

// SanitizeContent completely hides message content for privacy
func SanitizeContent(content string) string {
	if content == "" {
		return ""
	}
	return "[hidden]"
}

// LogWithContext creates a logger entry with optional sensitive information
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("verbose", IsVerboseLogging(ctx))
}

// ValidateMessageKey performs basic message key validation
func ValidateMessageKey(key string) error {
	if key == "" {
		return fmt.Errorf("message key cannot be empty")
	}

	if len(key) > constants.MaxMessageKeyLength {
		return fmt.Errorf("message key too long (max %d characters)", constants.MaxMessageKeyLength)
	}

	// Keys are path segments in the log source; reject separators outright
	if strings.ContainsAny(key, "/\\.#$[]\x00\n\r\t") {
		return fmt.Errorf("message key contains invalid characters")
	}

	return nil
}

// ValidateConversationID performs conversation ID validation
func ValidateConversationID(conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation ID cannot be empty")
	}

	if len(conversationID) > constants.MaxConversationIDLength {
		return fmt.Errorf("conversation ID too long (max %d characters)", constants.MaxConversationIDLength)
	}

	// Allow only alphanumeric characters, hyphens, and underscores
	for _, char := range conversationID {
		if (char < 'a' || char > 'z') &&
			(char < 'A' || char > 'Z') &&
			(char < '0' || char > '9') &&
			char != '-' && char != '_' {
			return fmt.Errorf("conversation ID must contain only alphanumeric characters, hyphens, and underscores")
		}
	}

	return nil
}

// LogMutation logs a write against the log source with privacy controls
func LogMutation(ctx context.Context, logger *logrus.Logger, op, conversationID, key, sender, content string) {
	if IsVerboseLogging(ctx) {
		logger.WithFields(logrus.Fields{
			"op":             op,
			"conversationID": conversationID,
			"key":            key,
			"sender":         sender,
			"content":        content,
		}).Info("Applying mutation")
	} else {
		logger.WithFields(logrus.Fields{
			"op":             op,
			"conversationID": conversationID,
			"key":            SanitizeKey(key),
			"sender":         SanitizeUserID(sender),
		}).Info("Applying mutation")
	}
}
