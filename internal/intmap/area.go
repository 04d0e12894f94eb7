// ABOUTME: Flight area geometry: physical extent and origin convention.
// ABOUTME: All values are meters; x grows rightward, y grows upward.

package intmap

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ErrBadArea indicates a flight area with a non-positive extent.
var ErrBadArea = errors.New("invalid flight area")

// Origin selects where the physical (0, 0) sits inside the area.
type Origin int

const (
	// OriginCorner puts (0, 0) at the bottom-left corner.
	OriginCorner Origin = iota
	// OriginCenter puts (0, 0) at the center of the area.
	OriginCenter
)

func (o Origin) String() string {
	switch o {
	case OriginCorner:
		return "corner"
	case OriginCenter:
		return "center"
	default:
		return "unknown"
	}
}

// FlightArea is the rectangular physical space agents operate in.
// Width is the x extent and Depth the y extent, both in meters.
type FlightArea struct {
	Width  float64
	Depth  float64
	Origin Origin
}

// NewFlightArea validates the extents and builds an area.
func NewFlightArea(width, depth float64, origin Origin) (FlightArea, error) {
	if width <= 0 || depth <= 0 {
		return FlightArea{}, fmt.Errorf("%w: %g x %g m", ErrBadArea, width, depth)
	}
	return FlightArea{Width: width, Depth: depth, Origin: origin}, nil
}

// Bounds returns the physical min and max corners.
func (a FlightArea) Bounds() (min, max orb.Point) {
	switch a.Origin {
	case OriginCenter:
		return orb.Point{-a.Width / 2, -a.Depth / 2}, orb.Point{a.Width / 2, a.Depth / 2}
	default:
		return orb.Point{0, 0}, orb.Point{a.Width, a.Depth}
	}
}

// Contains reports whether p lies inside the area, boundary included.
func (a FlightArea) Contains(p orb.Point) bool {
	min, max := a.Bounds()
	return p.X() >= min.X() && p.X() <= max.X() && p.Y() >= min.Y() && p.Y() <= max.Y()
}

// Clamp projects p onto the nearest point inside the area.
func (a FlightArea) Clamp(p orb.Point) orb.Point {
	min, max := a.Bounds()
	return orb.Point{
		clamp(p.X(), min.X(), max.X()),
		clamp(p.Y(), min.Y(), max.Y()),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
