package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/internal/logger"
	"github.com/abrezinsky/votedesk/internal/models"
	"github.com/abrezinsky/votedesk/internal/services"
	"github.com/abrezinsky/votedesk/internal/voteflow"
	"github.com/abrezinsky/votedesk/pkg/votingapi"
)

// fakeViews implements ViewSource over the mock backend's default polls
type fakeViews struct {
	mu       sync.Mutex
	acquired map[string]int
	released map[string]int
}

func newFakeViews() *fakeViews {
	return &fakeViews{acquired: map[string]int{}, released: map[string]int{}}
}

func (f *fakeViews) AcquireView(ctx context.Context, pollID string) (*voteflow.View, error) {
	for _, p := range votingapi.DefaultMockPolls() {
		if p.ID == pollID {
			f.mu.Lock()
			f.acquired[pollID]++
			f.mu.Unlock()
			return voteflow.NewView(p, votingapi.DefaultMockCandidates()[pollID]), nil
		}
	}
	return nil, errors.NotFound("Poll not found")
}

func (f *fakeViews) ReleaseView(pollID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released[pollID]++
}

func (f *fakeViews) counts(pollID string) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired[pollID], f.released[pollID]
}

func newTestHub(t *testing.T, tick time.Duration) (*Hub, *fakeViews, *httptest.Server) {
	t.Helper()
	views := newFakeViews()
	hub := New(logger.Discard(), views, tick)
	hub.Start()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(server.Close)
	return hub, views, server
}

func dial(t *testing.T, server *httptest.Server, pollID string) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[4:] + "/?poll=" + pollID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, ws *websocket.Conn) wireMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNew_DefaultsTick(t *testing.T) {
	hub := New(logger.Discard(), newFakeViews(), 0)
	if hub.tick != time.Second {
		t.Errorf("expected 1s default tick, got %v", hub.tick)
	}
	if hub.clients == nil || hub.broadcast == nil || hub.register == nil || hub.unregister == nil {
		t.Error("expected hub channels and client map to be initialized")
	}
}

func TestHub_ImplementsBroadcaster(t *testing.T) {
	var _ services.Broadcaster = (*Hub)(nil)
}

func TestHub_BroadcastPoll_NoClientsDoesNotBlock(t *testing.T) {
	hub := New(logger.Discard(), newFakeViews(), time.Hour)
	hub.Start()

	done := make(chan bool)
	go func() {
		hub.BroadcastPoll("poll-active", "test", map[string]string{"key": "value"})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("BroadcastPoll blocked with no clients")
	}
}

func TestServeWs_InitialCandidatesAndStatus(t *testing.T) {
	_, _, server := newTestHub(t, time.Hour)
	ws := dial(t, server, "poll-active")

	first := readMessage(t, ws)
	if first.Type != services.MsgCandidates {
		t.Fatalf("expected candidates first, got %s", first.Type)
	}
	var update services.CandidatesUpdate
	json.Unmarshal(first.Payload, &update)
	if update.PollID != "poll-active" || update.TotalVotes != 30 || len(update.Candidates) != 3 {
		t.Errorf("unexpected candidates payload: %+v", update)
	}
	if update.Candidates[0].Name != "John Smith" {
		t.Errorf("expected leader first, got %s", update.Candidates[0].Name)
	}

	second := readMessage(t, ws)
	if second.Type != services.MsgPollStatus {
		t.Fatalf("expected poll_status, got %s", second.Type)
	}
	var status map[string]interface{}
	json.Unmarshal(second.Payload, &status)
	if status["pollId"] != "poll-active" || status["status"] != "active" {
		t.Errorf("unexpected status payload: %v", status)
	}
}

func TestServeWs_StatusTicks(t *testing.T) {
	_, _, server := newTestHub(t, 20*time.Millisecond)
	ws := dial(t, server, "poll-upcoming")

	readMessage(t, ws) // candidates
	for i := 0; i < 3; i++ {
		if msg := readMessage(t, ws); msg.Type != services.MsgPollStatus {
			t.Fatalf("expected status tick %d, got %s", i, msg.Type)
		}
	}
}

func TestServeWs_BroadcastReachesOnlySubscribers(t *testing.T) {
	hub, _, server := newTestHub(t, time.Hour)
	active := dial(t, server, "poll-active")
	ended := dial(t, server, "poll-ended")

	readMessage(t, active)
	readMessage(t, active)
	readMessage(t, ended)
	readMessage(t, ended)

	waitFor(t, func() bool { return hub.Subscribers("poll-active") == 1 && hub.Subscribers("poll-ended") == 1 })

	hub.BroadcastPoll("poll-active", services.MsgCandidates, map[string]string{"key": "value"})

	msg := readMessage(t, active)
	if msg.Type != services.MsgCandidates || string(msg.Payload) != `{"key":"value"}` {
		t.Errorf("unexpected broadcast: %s %s", msg.Type, msg.Payload)
	}

	ended.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := ended.ReadMessage(); err == nil {
		t.Error("subscriber of another poll should not receive the broadcast")
	}
}

func TestServeWs_DisconnectReleasesView(t *testing.T) {
	hub, views, server := newTestHub(t, time.Hour)
	ws := dial(t, server, "poll-active")
	readMessage(t, ws)

	waitFor(t, func() bool { return hub.Subscribers("poll-active") == 1 })
	ws.Close()

	waitFor(t, func() bool {
		_, released := views.counts("poll-active")
		return released == 1
	})
	waitFor(t, func() bool { return hub.Subscribers("poll-active") == 0 })

	acquired, _ := views.counts("poll-active")
	if acquired != 1 {
		t.Errorf("expected one acquire, got %d", acquired)
	}
}

func TestServeWs_MissingPoll(t *testing.T) {
	hub := New(logger.Discard(), newFakeViews(), time.Hour)
	w := httptest.NewRecorder()
	hub.ServeWs(w, httptest.NewRequest("GET", "/ws", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestServeWs_UnknownPoll(t *testing.T) {
	hub := New(logger.Discard(), newFakeViews(), time.Hour)
	w := httptest.NewRecorder()
	hub.ServeWs(w, httptest.NewRequest("GET", "/ws?poll=missing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestServeWs_UpgradeErrorReleasesView(t *testing.T) {
	views := newFakeViews()
	hub := New(logger.Discard(), views, time.Hour)
	w := httptest.NewRecorder()

	// Plain HTTP request, not a websocket handshake
	hub.ServeWs(w, httptest.NewRequest("GET", "/ws?poll=poll-active", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected upgrade failure, got %d", w.Code)
	}
	if acquired, released := views.counts("poll-active"); acquired != 1 || released != 1 {
		t.Errorf("expected view acquired and released once, got %d/%d", acquired, released)
	}
}

func TestHub_DeliverAfterCloseIsDropped(t *testing.T) {
	hub := New(logger.Discard(), newFakeViews(), time.Hour)
	c := &Client{hub: hub, pollID: "poll-active", send: make(chan models.WSMessage, 1)}
	c.close()

	// Must not panic on a closed channel
	hub.deliver(c, models.WSMessage{Type: "late"})
	c.close()
}

func TestHub_ClientUnregistration(t *testing.T) {
	hub := New(logger.Discard(), newFakeViews(), time.Hour)
	hub.Start()

	client := &Client{hub: hub, pollID: "poll-active", send: make(chan models.WSMessage, 256)}
	hub.register <- client
	waitFor(t, func() bool { return hub.Subscribers("poll-active") == 1 })

	hub.unregister <- client
	waitFor(t, func() bool { return hub.Subscribers("poll-active") == 0 })

	if _, ok := <-client.send; ok {
		t.Error("expected send channel to be closed")
	}
}
