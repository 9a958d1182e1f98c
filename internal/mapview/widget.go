package mapview

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
)

// LayerKind is the type of a map overlay.
type LayerKind string

const (
	KindMarker     LayerKind = "marker"
	KindPolyline   LayerKind = "polyline"
	KindInfoWindow LayerKind = "info_window"
)

// Layer is one overlay drawn on the map. Layers are identified by pointer:
// removing a layer removes exactly the value that was added.
type Layer struct {
	ID       string         `json:"id"`
	Kind     LayerKind      `json:"kind"`
	Label    string         `json:"label,omitempty"`
	Position *geo.GeoPoint  `json:"position,omitempty"`
	Path     []geo.GeoPoint `json:"path,omitempty"`
	Content  string         `json:"content,omitempty"`
}

// NewMarker creates a marker layer at p.
func NewMarker(label string, p geo.GeoPoint) *Layer {
	return &Layer{ID: uuid.NewString(), Kind: KindMarker, Label: label, Position: &p}
}

// NewPolyline creates a line through path.
func NewPolyline(path []geo.GeoPoint) *Layer {
	return &Layer{ID: uuid.NewString(), Kind: KindPolyline, Path: append([]geo.GeoPoint(nil), path...)}
}

// NewInfoWindow creates an info window anchored at p.
func NewInfoWindow(content string, p geo.GeoPoint) *Layer {
	return &Layer{ID: uuid.NewString(), Kind: KindInfoWindow, Position: &p, Content: content}
}

// Warning is a message shown to the user.
type Warning struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// View is what the browser renders.
type View struct {
	Center   geo.GeoPoint `json:"center"`
	Zoom     int          `json:"zoom"`
	Viewport *geo.Bounds  `json:"viewport,omitempty"`
	Layers   []Layer      `json:"layers"`
	Warnings []Warning    `json:"warnings,omitempty"`
}

// Widget is the map capability a session drives.
type Widget interface {
	AddLayer(l *Layer)
	// RemoveLayer removes l if it is on the map and reports whether it was.
	RemoveLayer(l *Layer) bool
	FitBounds(b geo.Bounds)
	Warn(message string)
	View() View
}

const maxWarnings = 10

// Canvas is an in-memory Widget. The browser polls its View.
type Canvas struct {
	mu       sync.RWMutex
	center   geo.GeoPoint
	zoom     int
	viewport *geo.Bounds
	layers   []*Layer
	warnings []Warning
}

// NewCanvas creates an empty map centered on center.
func NewCanvas(center geo.GeoPoint, zoom int) *Canvas {
	return &Canvas{center: center, zoom: zoom}
}

// AddLayer draws l. Adding the same layer twice is a no-op.
func (c *Canvas) AddLayer(l *Layer) {
	if l == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.layers {
		if existing == l {
			return
		}
	}
	c.layers = append(c.layers, l)
}

// RemoveLayer removes l by reference.
func (c *Canvas) RemoveLayer(l *Layer) bool {
	if l == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.layers {
		if existing == l {
			c.layers = append(c.layers[:i], c.layers[i+1:]...)
			return true
		}
	}
	return false
}

// FitBounds moves the viewport to b.
func (c *Canvas) FitBounds(b geo.Bounds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = &b
	c.center = b.Center()
}

// Warn records a user-visible warning, keeping the most recent ones.
func (c *Canvas) Warn(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, Warning{Message: message, At: time.Now().UTC()})
	if len(c.warnings) > maxWarnings {
		c.warnings = c.warnings[len(c.warnings)-maxWarnings:]
	}
}

// View returns a copy of the current map.
func (c *Canvas) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v := View{
		Center:   c.center,
		Zoom:     c.zoom,
		Layers:   make([]Layer, 0, len(c.layers)),
		Warnings: append([]Warning(nil), c.warnings...),
	}
	if c.viewport != nil {
		vp := *c.viewport
		v.Viewport = &vp
	}
	for _, l := range c.layers {
		cp := *l
		cp.Path = append([]geo.GeoPoint(nil), l.Path...)
		if l.Position != nil {
			pos := *l.Position
			cp.Position = &pos
		}
		v.Layers = append(v.Layers, cp)
	}
	return v
}
