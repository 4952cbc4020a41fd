package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// startHub 启动一个测试服务器，通过查询参数指定连接身份
func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.URL.Query().Get("user"), r.URL.Query().Get("staff") == "1", conn)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitOnline(t *testing.T, hub *Hub, userID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Online(userID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("等待 %s 在线连接数=%d 超时，实际=%d", userID, n, hub.Online(userID))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_SendToUser(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "user=u1")
	waitOnline(t, hub, "u1", 1)

	if err := hub.SendToUser("u1", "notification.created", map[string]string{"title": "hi"}); err != nil {
		t.Fatalf("SendToUser 应成功: %v", err)
	}

	var env Envelope
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("读取推送失败: %v", err)
	}
	if env.Event != "notification.created" {
		t.Errorf("期望 event=notification.created，实际=%s", env.Event)
	}
}

func TestHub_SendToUser_Offline(t *testing.T) {
	hub := NewHub(zap.NewNop())
	err := hub.SendToUser("nobody", "notification.created", nil)
	if !errors.Is(err, ErrNoConnection) {
		t.Errorf("期望 ErrNoConnection，实际: %v", err)
	}
}

func TestHub_SendToStaff_SkipsMembers(t *testing.T) {
	hub, srv := startHub(t)
	staff := dial(t, srv, "user=s1&staff=1")
	member := dial(t, srv, "user=m1")
	waitOnline(t, hub, "s1", 1)
	waitOnline(t, hub, "m1", 1)

	if err := hub.SendToStaff("notification.broadcast", "summary"); err != nil {
		t.Fatalf("SendToStaff 应成功: %v", err)
	}

	var env Envelope
	_ = staff.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := staff.ReadJSON(&env); err != nil {
		t.Fatalf("员工应收到广播: %v", err)
	}

	_ = member.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if err := member.ReadJSON(&env); err == nil {
		t.Error("会员不应收到员工广播")
	}
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "user=u2")
	waitOnline(t, hub, "u2", 1)

	conn.Close()
	waitOnline(t, hub, "u2", 0)
}
