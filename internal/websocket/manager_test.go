package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer upgrades incoming connections and registers them under the
// user id carried in the query string.
func testServer(t *testing.T, m *Manager) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := m.GetUpgrader().Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		userID := r.URL.Query().Get("user")
		if err := m.RegisterClient(uuid.New().String(), userID, conn); err != nil {
			t.Errorf("register failed: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestManager_SendDeliversToUser(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Start())
	defer m.Stop()

	srv := testServer(t, m)
	conn := dial(t, srv, "user-1")

	require.Eventually(t, func() bool {
		return m.ConnectedUsers() == 1
	}, 2*time.Second, 10*time.Millisecond)

	err := m.Send("user-1", "alert.created", map[string]string{"alertId": "abc"})
	require.NoError(t, err)

	msg := readMessage(t, conn)
	assert.Equal(t, "alert.created", msg.Event)
	assert.False(t, msg.Timestamp.IsZero())

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "abc", data["alertId"])
}

func TestManager_SendWithoutConnections(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Start())
	defer m.Stop()

	err := m.Send("nobody", "alert.created", nil)
	assert.ErrorIs(t, err, ErrNoConnections)
}

func TestManager_MultipleConnectionsSameUser(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Start())
	defer m.Stop()

	srv := testServer(t, m)
	conn1 := dial(t, srv, "user-1")
	conn2 := dial(t, srv, "user-1")

	require.Eventually(t, func() bool {
		return m.ConnectedUsers() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Send("user-1", "alert.accepted", nil))

	assert.Equal(t, "alert.accepted", readMessage(t, conn1).Event)
	assert.Equal(t, "alert.accepted", readMessage(t, conn2).Event)
}

func TestManager_SendIsScopedToUser(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Start())
	defer m.Stop()

	srv := testServer(t, m)
	target := dial(t, srv, "user-1")
	bystander := dial(t, srv, "user-2")

	require.Eventually(t, func() bool {
		return m.ConnectedUsers() == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Send("user-1", "alert.status_changed", nil))

	assert.Equal(t, "alert.status_changed", readMessage(t, target).Event)

	bystander.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := bystander.ReadMessage()
	assert.Error(t, err, "bystander should receive nothing")
}

func TestManager_ClientDisconnectCleansUp(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Start())
	defer m.Stop()

	srv := testServer(t, m)
	conn := dial(t, srv, "user-1")

	require.Eventually(t, func() bool {
		return m.ConnectedUsers() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return m.ConnectedUsers() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, m.Send("user-1", "alert.created", nil), ErrNoConnections)
}
