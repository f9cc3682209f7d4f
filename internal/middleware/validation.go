package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateQuery validates an inbound query.
func ValidateQuery(query string) error {
	if len(query) > 100000 { // ~100KB limit
		return errors.New("query exceeds maximum length")
	}
	if !utf8.ValidString(query) {
		return errors.New("query must be valid UTF-8")
	}
	return nil
}

// ValidateAgentID validates an agent ID.
func ValidateAgentID(id string) error {
	if id == "" {
		return errors.New("agent ID is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid agent ID format")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateExternalID validates a channel-side identifier.
func ValidateExternalID(id string) error {
	if len(id) > 256 {
		return errors.New("external ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("external ID must be valid UTF-8")
	}
	return nil
}
