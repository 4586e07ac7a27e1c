package providers

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// IsStructured reports whether contentType carries data we may parse. An event
// stream only counts when the payload asked for streaming.
func IsStructured(contentType string, stream bool) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	switch {
	case mediaType == "application/json":
		return true
	case strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json"):
		return true
	case mediaType == "text/event-stream":
		return stream
	default:
		return false
	}
}

// IsEventStream reports whether contentType is a server-sent event stream.
func IsEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/event-stream"
}

// decodeJSON unmarshals body into v, repairing almost-JSON once before giving up.
func decodeJSON(body []byte, v interface{}) error {
	err := json.Unmarshal(body, v)
	if err == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(string(body))
	if repairErr != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("failed to decode repaired response body: %w", err)
	}
	return nil
}

// ErrorMessage extracts a human-readable message from a non-success response,
// falling back to one synthesized from the status code.
func ErrorMessage(status int, contentType string, body []byte) string {
	if IsStructured(contentType, false) {
		if msg := messageFromBody(body); msg != "" {
			return msg
		}
	}
	return StatusMessage(status)
}

// StatusMessage synthesizes an error message from an HTTP status code.
func StatusMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("HTTP %d: %s", status, text)
	}
	return fmt.Sprintf("HTTP %d", status)
}

// Covers {"error":{"message":..}}, {"error":"..."} and {"message":"..."}.
func messageFromBody(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}

	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if err := json.Unmarshal(envelope.Error, &plain); err == nil && plain != "" {
			return plain
		}
	}
	return envelope.Message
}
