package relay

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, h *Hub) *Server {
	t.Helper()
	s := NewServer(h, "127.0.0.1:0")
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func dialPeer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerRequestTabsOverWebsocket(t *testing.T) {
	h := startHub(t, 2*time.Second)
	s := startServer(t, h)
	conn := dialPeer(t, s)

	require.Eventually(t, h.Connected, time.Second, 5*time.Millisecond)

	// Minimal extension: answer get-tabs with a fixed list.
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := Decode(raw)
			if err != nil || env.Type != TypeGetTabs {
				continue
			}
			reply, _ := Encode(TypeTabsList, TabsListPayload{Tabs: []Tab{tabGitHub}})
			conn.WriteMessage(websocket.TextMessage, reply)
		}
	}()

	tabs := h.RequestTabs(context.Background())
	assert.Equal(t, []Tab{tabGitHub}, tabs)
}

func TestServerActivateTabReachesPeer(t *testing.T) {
	h := startHub(t, time.Second)
	s := startServer(t, h)
	conn := dialPeer(t, s)

	require.Eventually(t, h.Connected, time.Second, 5*time.Millisecond)
	require.True(t, h.Send(TypeActivateTab, ActivateTabPayload{TabID: 7, WindowID: 3}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeActivateTab, env.Type)

	p, err := DecodeActivation(env)
	require.NoError(t, err)
	assert.Equal(t, ActivateTabPayload{TabID: 7, WindowID: 3}, p)
}

func TestServerDisconnectClearsPeer(t *testing.T) {
	h := startHub(t, time.Second)
	s := startServer(t, h)
	conn := dialPeer(t, s)

	require.Eventually(t, h.Connected, time.Second, 5*time.Millisecond)
	conn.Close()

	require.Eventually(t, func() bool { return !h.Connected() }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, h.Send(TypeGetTabs, nil))
}

func TestServerRejectsForeignOrigin(t *testing.T) {
	h := startHub(t, time.Second)
	s := startServer(t, h)

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServerPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := NewServer(NewHub(Options{}), ln.Addr().String())
	err = s.Start()
	assert.ErrorIs(t, err, ErrPortInUse)
}

func TestServerListensOnIPv6Loopback(t *testing.T) {
	ln, err := net.Listen("tcp", "[::1]:0")
	if err != nil {
		t.Skip("IPv6 loopback unavailable")
	}
	ln.Close()

	h := startHub(t, time.Second)
	s := startServer(t, h)

	addrs := s.Addrs()
	require.Len(t, addrs, 2)
	_, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	assert.Equal(t, net.JoinHostPort("::1", port), addrs[1])

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addrs[1]+"/", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, h.Connected, time.Second, 5*time.Millisecond)
}

func TestIPv6LoopbackAddr(t *testing.T) {
	bound := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9876}

	tests := []struct {
		addr   string
		want   string
		wantOK bool
	}{
		{"127.0.0.1:9876", "[::1]:9876", true},
		{"localhost:9876", "[::1]:9876", true},
		{"127.0.0.1:0", "[::1]:9876", true},
		{"0.0.0.0:9876", "", false},
		{"[::1]:9876", "", false},
		{"garbage", "", false},
	}
	for _, tt := range tests {
		got, ok := ipv6LoopbackAddr(tt.addr, bound)
		assert.Equal(t, tt.wantOK, ok, tt.addr)
		assert.Equal(t, tt.want, got, tt.addr)
	}
}

func TestIsLoopback(t *testing.T) {
	assert.True(t, isLoopback("127.0.0.1:4000"))
	assert.True(t, isLoopback("[::1]:4000"))
	assert.True(t, isLoopback("localhost:80"))
	assert.False(t, isLoopback("192.168.1.10:4000"))
	assert.False(t, isLoopback("garbage"))
}

func TestAllowExtensionOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"chrome-extension://abcdef", true},
		{"moz-extension://1234", true},
		{"https://example.com", false},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, allowExtensionOrigin(r), "origin %q", tt.origin)
	}
}
