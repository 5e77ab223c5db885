package window

import (
	"errors"
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListClients(t *testing.T) {
	ewmhClients := []X11Client{{ID: 1, Class: "Firefox", Title: "Inbox"}}
	treeClients := []X11Client{{ID: 7, Class: "xterm", Title: "~"}}

	tests := []struct {
		name     string
		ewmh     []X11Client
		ewmhErr  error
		treeErr  error
		want     []X11Client
		wantTree bool
		wantErr  bool
	}{
		{name: "ewmh list", ewmh: ewmhClients, want: ewmhClients},
		{name: "ewmh unsupported", ewmhErr: errors.New("_NET_CLIENT_LIST is empty"), want: treeClients, wantTree: true},
		{name: "ewmh without user windows", ewmh: []X11Client{}, want: treeClients, wantTree: true},
		{name: "both fail", ewmhErr: errors.New("no atom"), treeErr: errors.New("bad window"), wantTree: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			treeCalled := false
			ewmh := func() ([]X11Client, error) { return tt.ewmh, tt.ewmhErr }
			tree := func() ([]X11Client, error) {
				treeCalled = true
				if tt.treeErr != nil {
					return nil, tt.treeErr
				}
				return treeClients, nil
			}

			got, err := listClients(ewmh, tree)
			assert.Equal(t, tt.wantTree, treeCalled)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.treeErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindowIDs(t *testing.T) {
	value := []byte{0x01, 0x00, 0x40, 0x00, 0x2a, 0x00, 0x00, 0x00, 0xff}
	assert.Equal(t, []xproto.Window{0x400001, 42}, windowIDs(value))
	assert.Empty(t, windowIDs(nil))
}

func TestRequireKWin(t *testing.T) {
	assert.NoError(t, requireKWin([]string{"org.freedesktop.DBus", "org.kde.KWin", ":1.42"}))

	err := requireKWin([]string{"org.freedesktop.DBus", "org.gnome.Shell"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	assert.ErrorIs(t, requireKWin(nil), ErrSourceUnavailable)
}
