package httpclient_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stacklok/backoffice-console/internal/httpclient"
)

func TestHTTPError(t *testing.T) {
	t.Parallel()

	err := httpclient.NewHTTPError(404, "http://example.com/api/menus", "Not Found")
	assert.Equal(t, "HTTP 404 for URL http://example.com/api/menus: Not Found", err.Error())
}

func TestServerMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "error field", body: `{"error":"tax code exists"}`, want: "tax code exists"},
		{name: "message field", body: `{"message":"not allowed"}`, want: "not allowed"},
		{name: "error wins over message", body: `{"error":"a","message":"b"}`, want: "a"},
		{name: "blank error falls through to message", body: `{"error":"  ","message":"b"}`, want: "b"},
		{name: "non string error", body: `{"error":{"code":3}}`, want: ""},
		{name: "array body", body: `["x"]`, want: ""},
		{name: "plain text", body: `Bad Gateway`, want: ""},
		{name: "empty", body: ``, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, httpclient.ServerMessage([]byte(tt.body)))
		})
	}
}

func TestNewHTTPErrorFromBody(t *testing.T) {
	t.Parallel()

	withServer := httpclient.NewHTTPErrorFromBody(422, "u", []byte(`{"message":"name is required"}`))
	assert.Equal(t, "name is required", withServer.Message)
	assert.Equal(t, "name is required", withServer.ServerMessage)

	without := httpclient.NewHTTPErrorFromBody(503, "u", nil)
	assert.Equal(t, "Service Unavailable", without.Message)
	assert.Empty(t, without.ServerMessage)
}
