package httpclient

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// HTTPError represents a non-2xx answer
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
	// ServerMessage is the body's "error" or "message" field, empty when the body carried neither
	ServerMessage string
	Body          []byte
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// NewHTTPErrorFromBody builds an HTTPError, reading the server message from a JSON body when present
func NewHTTPErrorFromBody(statusCode int, url string, body []byte) *HTTPError {
	server := ServerMessage(body)
	message := server
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return &HTTPError{
		StatusCode:    statusCode,
		URL:           url,
		Message:       message,
		ServerMessage: server,
		Body:          body,
	}
}

// ServerMessage extracts the "error" field, then the "message" field, from a JSON object body
func ServerMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return ""
	}
	for _, key := range []string{"error", "message"} {
		v := parsed.Get(key)
		if v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return strings.TrimSpace(v.Str)
		}
	}
	return ""
}
