package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Agent connects the panel to a public relay so it can be reached from
// outside the home network. It dials the relay, registers under its agent ID
// and replays incoming requests against the local HTTP API.
type Agent struct {
	relayURL string
	localURL string
	agentID  string
	retry    time.Duration
	client   *http.Client
}

func NewAgent(relayURL, localURL, agentID string) *Agent {
	return &Agent{
		relayURL: relayURL,
		localURL: localURL,
		agentID:  agentID,
		retry:    2 * time.Second,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type relayRequest struct {
	Type   string `json:"type"`
	ReqID  string `json:"reqId"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   any    `json:"body"`
}

type relayResponse struct {
	Type   string `json:"type"`
	ReqID  string `json:"reqId"`
	Status int    `json:"status"`
	Body   any    `json:"body"`
}

// Run keeps a relay session alive until ctx is cancelled, reconnecting with
// a fixed delay after any drop.
func (a *Agent) Run(ctx context.Context) {
	for {
		a.session(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.retry):
		}
		log.Println("BRIDGE: reconnecting to relay")
	}
}

func (a *Agent) session(ctx context.Context) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, a.relayURL, nil)
	if err != nil {
		log.Printf("BRIDGE: relay dial failed: %v", err)
		return
	}
	defer ws.Close()

	if err := ws.WriteJSON(map[string]any{"type": "register", "id": a.agentID}); err != nil {
		log.Printf("BRIDGE: register failed: %v", err)
		return
	}
	log.Printf("BRIDGE: registered with relay as %s", a.agentID)

	// Close the socket when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var req relayRequest
		if err := json.Unmarshal(msg, &req); err != nil || req.Type != "request" {
			continue
		}

		body, status := a.forward(ctx, req)
		if err := ws.WriteJSON(relayResponse{
			Type:   "response",
			ReqID:  req.ReqID,
			Status: status,
			Body:   body,
		}); err != nil {
			return
		}
	}
}

// forward replays a relayed request against the local API and returns the
// decoded response body and status.
func (a *Agent) forward(ctx context.Context, req relayRequest) (any, int) {
	bodyBytes, _ := json.Marshal(req.Body)

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, a.localURL+req.Path, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return "bad relayed request", http.StatusBadRequest
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		log.Printf("BRIDGE: local request %s %s failed: %v", req.Method, req.Path, err)
		return "local request failed", http.StatusInternalServerError
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}
	return parsed, resp.StatusCode
}
