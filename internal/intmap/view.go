// ABOUTME: View binds a flight area to display pixels with margins.
// ABOUTME: Pure, stateless transforms between meter and pixel frames.

package intmap

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Per-side margin fractions the map display reserves around the area.
const (
	MarginCenter = 0.05
	MarginCorner = 0.02
)

// View maps the flight area onto a pixel canvas. The drawable region
// is the canvas minus a margin fraction on each side; pixel y grows
// downward while physical y grows upward.
type View struct {
	Area    FlightArea
	PixelW  float64
	PixelH  float64
	MarginX float64
	MarginY float64
}

// NewView builds a view with explicit per-side margin fractions.
func NewView(area FlightArea, pixelW, pixelH, marginX, marginY float64) (View, error) {
	if pixelW <= 0 || pixelH <= 0 {
		return View{}, fmt.Errorf("%w: %g x %g px canvas", ErrBadArea, pixelW, pixelH)
	}
	if marginX < 0 || marginX >= 0.5 || marginY < 0 || marginY >= 0.5 {
		return View{}, fmt.Errorf("%w: margins %g, %g", ErrBadArea, marginX, marginY)
	}
	return View{Area: area, PixelW: pixelW, PixelH: pixelH, MarginX: marginX, MarginY: marginY}, nil
}

// NewDefaultView builds a view with the margin convention of the map
// display: wider margins for a centered area, narrow ones otherwise.
func NewDefaultView(area FlightArea, pixelW, pixelH float64) (View, error) {
	if area.Origin == OriginCenter {
		return NewView(area, pixelW, pixelH, MarginCenter, MarginCenter)
	}
	return NewView(area, pixelW, pixelH, MarginCorner, MarginCorner)
}

// usable returns the drawable pixel extent and its top-left offset.
func (v View) usable() (w, h, offX, offY float64) {
	w = v.PixelW * (1 - 2*v.MarginX)
	h = v.PixelH * (1 - 2*v.MarginY)
	offX = v.PixelW * v.MarginX
	offY = v.PixelH * v.MarginY
	return w, h, offX, offY
}

// MetersToPixel transforms a physical point to pixel coordinates.
// Points outside the area are clamped to it first.
func (v View) MetersToPixel(p orb.Point) orb.Point {
	p = v.Area.Clamp(p)
	min, _ := v.Area.Bounds()
	u := (p.X() - min.X()) / v.Area.Width
	w := (p.Y() - min.Y()) / v.Area.Depth

	uw, uh, offX, offY := v.usable()
	return orb.Point{
		offX + u*uw,
		offY + (1-w)*uh,
	}
}

// PixelToMeters transforms a pixel coordinate, typically a click, to a
// physical point. Pixels outside the drawn area clamp to its boundary.
func (v View) PixelToMeters(p orb.Point) orb.Point {
	uw, uh, offX, offY := v.usable()
	u := (p.X() - offX) / uw
	w := 1 - (p.Y()-offY)/uh

	min, _ := v.Area.Bounds()
	return v.Area.Clamp(orb.Point{
		min.X() + u*v.Area.Width,
		min.Y() + w*v.Area.Depth,
	})
}
