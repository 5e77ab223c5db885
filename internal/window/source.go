// Package window enumerates native application windows and keeps a short
// lived cache of windows that the enumeration sources stop reporting, so that
// windows on other virtual desktops stay selectable.
package window

import (
	"context"
	"errors"
)

// ErrSourceUnavailable is returned by a source that cannot run on this host
var ErrSourceUnavailable = errors.New("window source unavailable")

// Descriptor is one window as presented to callers. SyntheticID is assigned
// per ListWindows pass and must not be stored.
type Descriptor struct {
	OwnerAppName string `json:"app_name"`
	Title        string `json:"title"`
	SyntheticID  int    `json:"synthetic_id"`
}

// Key returns the identity used for deduplication and caching.
func (d Descriptor) Key() Key {
	return Key{App: d.OwnerAppName, Title: d.Title}
}

// Key identifies a window by owning application and title
type Key struct {
	App   string
	Title string
}

// RawWindow is a window as reported by a source, before filtering
type RawWindow struct {
	App   string
	Title string
}

// Source is one way of enumerating windows on the host
type Source interface {
	// Name returns a short identifier used in logs and metrics
	Name() string

	// ListWindows returns the windows the source can currently see
	ListWindows(ctx context.Context) ([]RawWindow, error)
}
