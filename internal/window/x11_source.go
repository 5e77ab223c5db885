package window

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
)

// X11Client is a top-level X11 window
type X11Client struct {
	ID    uint32
	Class string
	Title string
}

// X11Source lists client windows from an X server. It also raises them, so
// the activation chain shares its connection.
type X11Source struct {
	conn *xgb.Conn
	root xproto.Window

	mu    sync.Mutex
	atoms map[string]xproto.Atom
}

// NewX11Source connects to the X server named by $DISPLAY
func NewX11Source() (*X11Source, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", errors.Join(ErrSourceUnavailable, err))
	}

	setup := xproto.Setup(conn)
	return &X11Source{
		conn:  conn,
		root:  setup.DefaultScreen(conn).Root,
		atoms: make(map[string]xproto.Atom),
	}, nil
}

// Close closes the X connection
func (s *X11Source) Close() error {
	s.conn.Close()
	return nil
}

// Name returns "x11"
func (s *X11Source) Name() string {
	return "x11"
}

// ListWindows returns class and title of every client window
func (s *X11Source) ListWindows(ctx context.Context) ([]RawWindow, error) {
	clients, err := s.Clients()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	windows := make([]RawWindow, 0, len(clients))
	for _, c := range clients {
		windows = append(windows, RawWindow{App: c.Class, Title: c.Title})
	}
	return windows, nil
}

// Clients lists windows via EWMH _NET_CLIENT_LIST, falling back to the root
// window's children when the window manager does not publish one.
func (s *X11Source) Clients() ([]X11Client, error) {
	return listClients(s.clientsEWMH, s.clientsQueryTree)
}

// listClients uses the EWMH list when it names at least one client and the
// window tree otherwise.
func listClients(ewmh, tree func() ([]X11Client, error)) ([]X11Client, error) {
	clients, err := ewmh()
	if err == nil && len(clients) > 0 {
		return clients, nil
	}
	if err != nil {
		logger.WithComponent("window-source").Debug().Err(err).Msg("EWMH client list unavailable, falling back to QueryTree")
	}

	clients, err = tree()
	if err != nil {
		return nil, fmt.Errorf("failed to query window tree: %w", err)
	}
	return clients, nil
}

// Activate asks the window manager to focus and raise id
func (s *X11Source) Activate(id uint32) error {
	activeAtom, err := s.atom("_NET_ACTIVE_WINDOW")
	if err != nil {
		return err
	}

	// Source indication 2: request from a pager, which window managers honor
	// without focus-stealing checks.
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: xproto.Window(id),
		Type:   activeAtom,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{2, xproto.TimeCurrentTime, 0, 0, 0}),
	}

	const mask = xproto.EventMaskSubstructureRedirect | xproto.EventMaskSubstructureNotify
	if err := xproto.SendEventChecked(s.conn, false, s.root, mask, string(ev.Bytes())).Check(); err != nil {
		return fmt.Errorf("failed to send _NET_ACTIVE_WINDOW: %w", err)
	}
	if err := xproto.ConfigureWindowChecked(s.conn, xproto.Window(id),
		xproto.ConfigWindowStackMode, []uint32{xproto.StackModeAbove}).Check(); err != nil {
		logger.WithComponent("window-source").Debug().Err(err).Uint32("window", id).Msg("Failed to restack window")
	}
	return nil
}

func (s *X11Source) clientsEWMH() ([]X11Client, error) {
	clientListAtom, err := s.atom("_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}

	reply, err := xproto.GetProperty(s.conn, false, s.root, clientListAtom,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST property: %w", err)
	}
	if reply.ValueLen == 0 {
		return nil, fmt.Errorf("_NET_CLIENT_LIST is empty")
	}

	ids := windowIDs(reply.Value)
	clients := make([]X11Client, 0, len(ids))
	for _, win := range ids {
		if c, ok := s.client(win); ok {
			clients = append(clients, c)
		}
	}
	return clients, nil
}

// windowIDs decodes a 32-bit WINDOW list property. A trailing partial value
// is ignored.
func windowIDs(value []byte) []xproto.Window {
	ids := make([]xproto.Window, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		ids = append(ids, xproto.Window(binary.LittleEndian.Uint32(value[i:])))
	}
	return ids
}

func (s *X11Source) clientsQueryTree() ([]X11Client, error) {
	tree, err := xproto.QueryTree(s.conn, s.root).Reply()
	if err != nil {
		return nil, err
	}

	clients := make([]X11Client, 0)
	for _, child := range tree.Children {
		if c, ok := s.client(child); ok {
			clients = append(clients, c)
		}
	}
	return clients, nil
}

// client reads title and class of win. Windows without either are not user
// windows.
func (s *X11Source) client(win xproto.Window) (X11Client, bool) {
	c := X11Client{ID: uint32(win)}

	for _, name := range []string{"_NET_WM_NAME", "WM_NAME"} {
		if title, err := s.stringProperty(win, name); err == nil && title != "" {
			c.Title = title
			break
		}
	}

	if raw, err := s.stringProperty(win, "WM_CLASS"); err == nil {
		c.Class = parseWMClass(raw)
	}

	return c, c.Title != "" || c.Class != ""
}

// parseWMClass returns the class half of WM_CLASS ("instance\0class\0"),
// or the instance when the class is empty.
func parseWMClass(raw string) string {
	parts := strings.Split(raw, "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return parts[0]
}

func (s *X11Source) atom(name string) (xproto.Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(s.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to intern %s: %w", name, err)
	}
	s.atoms[name] = reply.Atom
	return reply.Atom, nil
}

func (s *X11Source) stringProperty(win xproto.Window, name string) (string, error) {
	a, err := s.atom(name)
	if err != nil {
		return "", err
	}
	reply, err := xproto.GetProperty(s.conn, false, win, a,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property %s", name)
	}
	return string(reply.Value), nil
}
