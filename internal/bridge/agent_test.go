package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForward(t *testing.T) {
	t.Run("relays method, path and body", func(t *testing.T) {
		var gotMethod, gotPath string
		var gotBody map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod, gotPath = r.Method, r.URL.Path
			raw, _ := io.ReadAll(r.Body)
			json.Unmarshal(raw, &gotBody)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"d1"}`))
		}))
		defer srv.Close()

		agent := NewAgent("ws://relay.invalid/agent", srv.URL, "panel-1")
		body, status := agent.forward(context.Background(), relayRequest{
			Type:   "request",
			ReqID:  "r1",
			Method: http.MethodPost,
			Path:   "/homes/h1/devices",
			Body:   map[string]any{"room": "kitchen", "name": "light"},
		})

		assert.Equal(t, http.StatusCreated, status)
		assert.Equal(t, http.MethodPost, gotMethod)
		assert.Equal(t, "/homes/h1/devices", gotPath)
		assert.Equal(t, "kitchen", gotBody["room"])

		parsed, ok := body.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "d1", parsed["id"])
	})

	t.Run("non-JSON response passed through as text", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("pong"))
		}))
		defer srv.Close()

		agent := NewAgent("ws://relay.invalid/agent", srv.URL, "panel-1")
		body, status := agent.forward(context.Background(), relayRequest{Method: http.MethodGet, Path: "/ping"})

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "pong", body)
	})

	t.Run("unreachable local server reports 500", func(t *testing.T) {
		agent := NewAgent("ws://relay.invalid/agent", "http://127.0.0.1:1", "panel-1")
		_, status := agent.forward(context.Background(), relayRequest{Method: http.MethodGet, Path: "/"})
		assert.Equal(t, http.StatusInternalServerError, status)
	})
}
