// ABOUTME: Trail keeps the recent path of one agent for map rendering.
// ABOUTME: Fixed-size ring buffer, oldest points fall off the tail.

package intmap

import "github.com/paulmach/orb"

// TrailLength is how many recent positions a trail retains.
const TrailLength = 50

// Trail is a bounded history of one agent's 2D positions. Not safe
// for concurrent use; callers serialize through the router's per-agent
// dispatch.
type Trail struct {
	buf   [TrailLength]orb.Point
	start int
	n     int
}

// Push appends a position, dropping the oldest when full.
func (t *Trail) Push(p orb.Point) {
	if t.n < TrailLength {
		t.buf[(t.start+t.n)%TrailLength] = p
		t.n++
		return
	}
	t.buf[t.start] = p
	t.start = (t.start + 1) % TrailLength
}

// Len returns the number of retained positions.
func (t *Trail) Len() int { return t.n }

// Points returns the retained positions, oldest first.
func (t *Trail) Points() []orb.Point {
	out := make([]orb.Point, t.n)
	for i := 0; i < t.n; i++ {
		out[i] = t.buf[(t.start+i)%TrailLength]
	}
	return out
}

// Reset drops all retained positions.
func (t *Trail) Reset() {
	t.start, t.n = 0, 0
}
