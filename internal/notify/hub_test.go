package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mining-economy/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, srv *httptest.Server, playerID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?player_id=" + playerID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readType reads until a message of type typ arrives and returns it with the types skipped on the way.
func readType(t *testing.T, conn *websocket.Conn, typ string) (received, []string) {
	t.Helper()
	var skipped []string
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg received
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg, skipped
		}
		skipped = append(skipped, msg.Type)
	}
}

func TestHubRoutesNotificationsToPlayer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")

	// registration is asynchronous: ping until both sockets have seen one
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.Broadcast(ctx, Event{Type: "ping"})
			}
		}
	}()
	readType(t, alice, "ping")
	readType(t, bob, "ping")
	close(stop)

	require.NoError(t, hub.Notify(ctx, domain.Notification{UserID: "alice", Message: "craft ready", Severity: domain.SeveritySuccess}))
	require.NoError(t, hub.Broadcast(ctx, Event{Type: "marker", Payload: []int{1}}))

	msg, _ := readType(t, alice, "notification")
	var n domain.Notification
	require.NoError(t, json.Unmarshal(msg.Payload, &n))
	assert.Equal(t, "craft ready", n.Message)
	assert.Equal(t, domain.SeveritySuccess, n.Severity)

	_, skipped := readType(t, bob, "marker")
	assert.NotContains(t, skipped, "notification")
}

type recorder struct {
	ch chan domain.Notification
}

func (r *recorder) Notify(_ context.Context, n domain.Notification) error {
	r.ch <- n
	return nil
}

type failing struct{}

func (failing) Notify(context.Context, domain.Notification) error {
	return assert.AnError
}

func TestMultiFansOut(t *testing.T) {
	a := &recorder{ch: make(chan domain.Notification, 1)}
	b := &recorder{ch: make(chan domain.Notification, 1)}
	m := NewMulti(zerolog.Nop(), a, failing{}, b)

	n := domain.Notification{UserID: "alice", Message: "hi", Severity: domain.SeverityInfo}
	require.NoError(t, m.Notify(context.Background(), n))
	m.Wait(time.Second)

	assert.Equal(t, n, <-a.ch)
	assert.Equal(t, n, <-b.ch)
}
