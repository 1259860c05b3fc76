package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/ports/inbound"
)

func dialStream(t *testing.T, svc *mockDashboard, interval time.Duration) *websocket.Conn {
	t.Helper()
	s := NewServer(ServerConfig{Addr: ":0", StreamInterval: interval}, svc, &mockHealthChecker{ready: true, healthy: true}, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

func TestStream_InitialSnapshot(t *testing.T) {
	svc := newMockDashboard()
	svc.setSnapshot(inbound.SnapshotView{Ready: true, Sequence: inbound.SequenceView{Step: "idle"}})
	svc.notices = []entity.Notice{{ID: "n1", Kind: entity.NoticeInfo, Message: "hello"}}

	conn := dialStream(t, svc, time.Minute)

	msg := readMessage(t, conn)
	if msg.Type != "snapshot" {
		t.Errorf("expected type snapshot, got %q", msg.Type)
	}
	if !msg.Snapshot.Ready {
		t.Error("expected ready snapshot")
	}
	if len(msg.Notices) != 1 || msg.Notices[0].ID != "n1" {
		t.Errorf("unexpected notices %+v", msg.Notices)
	}
}

func TestStream_PushesOnChange(t *testing.T) {
	svc := newMockDashboard()
	svc.setSnapshot(inbound.SnapshotView{Account: "0x01"})

	conn := dialStream(t, svc, time.Minute)
	first := readMessage(t, conn)
	if first.Snapshot.Account != "0x01" {
		t.Fatalf("unexpected first snapshot %+v", first.Snapshot)
	}

	svc.setSnapshot(inbound.SnapshotView{Account: "0x02"})
	svc.notify()

	second := readMessage(t, conn)
	if second.Snapshot.Account != "0x02" {
		t.Errorf("expected updated account, got %q", second.Snapshot.Account)
	}
}

func TestStream_PushesOnInterval(t *testing.T) {
	svc := newMockDashboard()

	conn := dialStream(t, svc, 20*time.Millisecond)
	readMessage(t, conn)
	readMessage(t, conn)

	svc.mu.Lock()
	calls := svc.snapshotCalls
	svc.mu.Unlock()
	if calls < 2 {
		t.Errorf("expected at least 2 snapshot reads, got %d", calls)
	}
}

func TestStream_RejectsForeignOrigin(t *testing.T) {
	svc := newMockDashboard()
	s := NewServer(ServerConfig{Addr: ":0"}, svc, &mockHealthChecker{}, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected dial to fail for a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %v", resp)
	}
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(ServerConfig{AllowedOrigins: []string{"http://localhost:5173"}}, newMockDashboard(), &mockHealthChecker{}, nil)

	tests := []struct {
		name   string
		host   string
		origin string
		want   bool
	}{
		{"no origin", "dash.local", "", true},
		{"same host", "dash.local", "https://dash.local", true},
		{"allowed", "dash.local", "http://localhost:5173", true},
		{"foreign", "dash.local", "https://other.local", false},
		{"garbage", "dash.local", "://", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/stream", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := s.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}
