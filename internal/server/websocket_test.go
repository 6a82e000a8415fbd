package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/collabforge/backend/internal/realtime"
	"github.com/gorilla/websocket"
)

func dialSocket(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendEvent(t *testing.T, ws *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	if err := ws.WriteJSON(realtime.Envelope{Event: event, Data: data}); err != nil {
		t.Fatalf("failed to send %s: %v", event, err)
	}
}

// awaitEvent reads frames until the wanted event arrives, skipping
// interleaved presence updates.
func awaitEvent(t *testing.T, ws *websocket.Conn, event string) realtime.Envelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if err := ws.SetReadDeadline(deadline); err != nil {
			t.Fatalf("failed to set deadline: %v", err)
		}
		var envelope realtime.Envelope
		if err := ws.ReadJSON(&envelope); err != nil {
			t.Fatalf("did not receive %s: %v", event, err)
		}
		if envelope.Event == event {
			return envelope
		}
	}
}

func TestWebsocketRejectsUnauthenticatedHandshake(t *testing.T) {
	f := newAPIFixture(t)
	server := httptest.NewServer(f.handler)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if _, response, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("expected handshake rejection without a token")
	} else if response == nil || response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", response)
	}

	url += "?token=not-a-jwt"
	if _, response, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("expected handshake rejection with a bad token")
	} else if response == nil || response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", response)
	}
}

func TestWebsocketEditRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	server := httptest.NewServer(f.handler)
	defer server.Close()

	ownerToken := f.registerUser(t, "owner@example.com", "Owner")
	editorToken := f.registerUser(t, "editor@example.com", "Editor")
	projectID := f.createProject(t, ownerToken, "Demo")

	if code := f.do(t, http.MethodPost, "/api/projects/"+projectID+"/invite", ownerToken, map[string]string{
		"email": "editor@example.com", "role": "editor",
	}).Code; code != http.StatusOK {
		t.Fatalf("invite failed: %d", code)
	}

	recorder := f.do(t, http.MethodPost, "/api/projects/"+projectID+"/files", ownerToken, map[string]string{
		"name": "main.js", "type": "file", "content": "hello",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create file failed: %d", recorder.Code)
	}
	var node struct {
		ID string `json:"ID"`
	}
	decodeBody(t, recorder, &node)

	ownerSocket := dialSocket(t, server, ownerToken)
	editorSocket := dialSocket(t, server, editorToken)

	sendEvent(t, ownerSocket, realtime.EventJoinProject, map[string]string{"projectId": projectID})
	awaitEvent(t, ownerSocket, realtime.EventProjectPresence)

	sendEvent(t, editorSocket, realtime.EventJoinProject, map[string]string{"projectId": projectID})
	envelope := awaitEvent(t, editorSocket, realtime.EventProjectPresence)

	var presence []realtime.ProjectPresenceEntry
	if err := json.Unmarshal(envelope.Data, &presence); err != nil {
		t.Fatalf("failed to decode presence: %v", err)
	}
	if len(presence) != 2 {
		t.Fatalf("expected both members present, got %+v", presence)
	}

	sendEvent(t, editorSocket, realtime.EventFileEdit, map[string]string{
		"fileId": node.ID, "content": "hello world",
	})

	envelope = awaitEvent(t, ownerSocket, realtime.EventFileUpdated)
	var updated struct {
		ID      string `json:"ID"`
		Content string `json:"Content"`
	}
	if err := json.Unmarshal(envelope.Data, &updated); err != nil {
		t.Fatalf("failed to decode update: %v", err)
	}
	if updated.ID != node.ID || updated.Content != "hello world" {
		t.Fatalf("unexpected broadcast %+v", updated)
	}

	// The edit persisted through the realtime path; the REST view agrees.
	getRecorder := f.do(t, http.MethodGet, "/api/files/"+node.ID, ownerToken, nil)
	if getRecorder.Code != http.StatusOK {
		t.Fatalf("file get failed: %d", getRecorder.Code)
	}
	var fetched struct {
		Content string `json:"Content"`
	}
	decodeBody(t, getRecorder, &fetched)
	if fetched.Content != "hello world" {
		t.Fatalf("expected persisted realtime edit, got %q", fetched.Content)
	}
}
