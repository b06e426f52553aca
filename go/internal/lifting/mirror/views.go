package mirror

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ViewType names a kind of display that can be mirrored.
type ViewType string

const (
	ViewLiftingTable ViewType = "lifting-table"
	ViewAthletePanel ViewType = "athlete-panel"
)

// MirrorParam is the query parameter marking a view as a mirror.
const MirrorParam = "mirror"

// Channel and window names. Each view owns its own pair.
const (
	LiftingTableChannel = "lifting-table-sync"
	LiftingTableWindow  = "lifting-table-mirror"
	AthletePanelChannel = "athlete-panel-sync"
	AthletePanelWindow  = "athlete-panel-mirror"
)

// Geometry is the size and position of a mirror window in pixels.
type Geometry struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
}

// ViewConfig binds a view type to its channel, window and route.
type ViewConfig struct {
	Type        ViewType `json:"type" yaml:"type"`
	ChannelName string   `json:"channel_name" yaml:"channel_name"`
	WindowName  string   `json:"window_name" yaml:"window_name"`
	Route       string   `json:"route" yaml:"route"`
	Geometry    Geometry `json:"geometry" yaml:"geometry"`
}

// DefaultViews returns the built-in mirrorable views.
func DefaultViews() map[ViewType]ViewConfig {
	return map[ViewType]ViewConfig{
		ViewLiftingTable: {
			Type:        ViewLiftingTable,
			ChannelName: LiftingTableChannel,
			WindowName:  LiftingTableWindow,
			Route:       "/lifting/table",
			Geometry:    Geometry{Width: 1280, Height: 800},
		},
		ViewAthletePanel: {
			Type:        ViewAthletePanel,
			ChannelName: AthletePanelChannel,
			WindowName:  AthletePanelWindow,
			Route:       "/lifting/athlete",
			Geometry:    Geometry{Width: 960, Height: 540, Left: 1280},
		},
	}
}

// ParseViewType accepts one of the known view names.
func ParseViewType(s string) (ViewType, error) {
	switch ViewType(s) {
	case ViewLiftingTable, ViewAthletePanel:
		return ViewType(s), nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// MirrorURL is the address a mirror window is opened at.
func (v ViewConfig) MirrorURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + v.Route
	q := u.Query()
	q.Set(MirrorParam, "1")
	q.Set("view", string(v.Type))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Role is the part a view plays in synchronization.
type Role int

const (
	RolePrimary Role = iota
	RoleMirror
)

func (r Role) String() string {
	if r == RoleMirror {
		return "mirror"
	}
	return "primary"
}

// RoleFromURL reads the mirror marker from a view address.
func RoleFromURL(u *url.URL) Role {
	if u == nil {
		return RolePrimary
	}
	switch strings.ToLower(u.Query().Get(MirrorParam)) {
	case "1", "true", "yes":
		return RoleMirror
	}
	return RolePrimary
}

// RoleFromRequest reads the mirror marker from the request that opened a view.
func RoleFromRequest(r *http.Request) Role {
	if r == nil {
		return RolePrimary
	}
	return RoleFromURL(r.URL)
}
