// Package intmap models the shared 2D coordinate frame of the
// interactive map.
//
// Physical space is described by a FlightArea in meters with one of
// two origin conventions. A View binds an area to display pixel
// dimensions and provides pure bidirectional transforms between the
// two frames. Pixel coordinates follow the usual display convention
// with y growing downward; physical coordinates always have x growing
// rightward and y growing upward.
//
// Clicks outside the physical area are clamped to its boundary rather
// than rejected, so every pixel maps to a reachable goal.
package intmap
