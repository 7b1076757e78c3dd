package controller

// dragPhase tracks a single drag/resize gesture:
// idle → dragging (overlay-only updates) → committed (persisted) → idle.
type dragPhase int

const (
	dragIdle dragPhase = iota
	dragActive
	dragCommitted
)

// overlay is the local-only visual state of an in-flight gesture. Position
// and size are independent: a move gesture carries hasPos, a resize gesture
// hasSize. The overlay is the source of truth for rendering until the
// gesture commits; the persisted box is untouched in between.
type overlay struct {
	phase   dragPhase
	x, y    float64
	hasPos  bool
	w, h    float64
	hasSize bool
}
