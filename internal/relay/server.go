package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// DefaultPort is the loopback port the browser extension dials
const DefaultPort = 9876

// ErrPortInUse is returned by Start when another process holds the relay port
var ErrPortInUse = errors.New("relay port already in use")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 20
	sendQueueSize  = 32
)

// Server accepts the browser extension's websocket connection and feeds it
// to a Hub.
type Server struct {
	hub        *Hub
	addr       string
	router     *mux.Router
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu        sync.Mutex
	listeners []net.Listener
}

// NewServer creates a relay server for addr (host:port).
func NewServer(hub *Hub, addr string) *Server {
	s := &Server{
		hub:    hub,
		addr:   addr,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     allowExtensionOrigin,
		},
	}

	s.router.HandleFunc("/", s.handlePeer)
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// allowExtensionOrigin accepts browser extension origins and direct
// (origin-less) connections.
func allowExtensionOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, prefix := range []string{"chrome-extension://", "moz-extension://", "safari-web-extension://"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// Start binds the listener and serves in the background. A port conflict is
// reported as ErrPortInUse; the caller is expected to carry on without the
// relay. An IPv4 loopback address is also served on [::1] when the host has
// IPv6 loopback, since extensions may resolve localhost to either.
func (s *Server) Start() error {
	log := logger.WithComponent("relay-server")

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			log.Error().
				Str("addr", s.addr).
				Msg("Relay port is already in use. Another instance may be running; close it and restart to enable browser tab switching.")
			return fmt.Errorf("%w: %s", ErrPortInUse, s.addr)
		}
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	listeners := []net.Listener{ln}

	if addr, ok := ipv6LoopbackAddr(s.addr, ln.Addr()); ok {
		ln6, err := net.Listen("tcp", addr)
		if err != nil {
			log.Debug().Err(err).Str("addr", addr).Msg("IPv6 loopback unavailable for relay")
		} else {
			listeners = append(listeners, ln6)
		}
	}

	s.mu.Lock()
	s.listeners = listeners
	s.mu.Unlock()

	for _, l := range listeners {
		log.Info().Str("addr", l.Addr().String()).Msg("Relay listening for browser extension")
		go func(l net.Listener) {
			if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", l.Addr().String()).Msg("Relay server error")
			}
		}(l)
	}

	return nil
}

// ipv6LoopbackAddr returns [::1] on the bound port when addr names the IPv4
// loopback.
func ipv6LoopbackAddr(addr string, bound net.Addr) (string, bool) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || (host != "127.0.0.1" && host != "localhost") {
		return "", false
	}
	tcp, ok := bound.(*net.TCPAddr)
	if !ok {
		return "", false
	}
	return net.JoinHostPort("::1", strconv.Itoa(tcp.Port)), true
}

// Addr returns the first bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) > 0 {
		return s.listeners[0].Addr().String()
	}
	return s.addr
}

// Addrs returns every bound address
func (s *Server) Addrs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]string, 0, len(s.listeners))
	for _, l := range s.listeners {
		addrs = append(addrs, l.Addr().String())
	}
	return addrs
}

// Shutdown stops accepting connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handlePeer(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("relay-server")

	if !isLoopback(r.RemoteAddr) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("Rejected non-loopback relay connection")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Relay websocket upgrade failed")
		return
	}

	p := &wsPeer{
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		remote: r.RemoteAddr,
	}

	s.hub.Connect(p)
	go p.writePump()
	p.readPump(s.hub)
}

func isLoopback(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// wsPeer adapts a websocket connection to the Peer interface
type wsPeer struct {
	conn   *websocket.Conn
	send   chan []byte
	remote string

	mu     sync.Mutex
	closed bool
}

func (p *wsPeer) Enqueue(raw []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	select {
	case p.send <- raw:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which sends a close frame and closes the
// connection.
func (p *wsPeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		p.closed = true
		close(p.send)
	}
	return nil
}

func (p *wsPeer) RemoteAddr() string {
	return p.remote
}

func (p *wsPeer) readPump(hub *Hub) {
	defer func() {
		hub.Disconnect(p)
		p.Close()
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithComponent("relay-server").Warn().Err(err).Msg("Relay connection error")
			}
			return
		}
		hub.Deliver(p, message)
	}
}

func (p *wsPeer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.WithComponent("relay-server").Debug().Err(err).Msg("Relay write failed")
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
