package controller

import "github.com/meikuraledutech/canvasql"

// Command is a tagged request emitted by node renderers and tool handlers.
// The controller is driven exclusively through Dispatch(Command); renderers
// never hold capability closures.
type Command interface {
	isCommand()
}

// CreateBox places a new box at pointer-projected canvas coordinates.
type CreateBox struct {
	Kind canvasql.BoxKind
	X, Y float64
}

// MoveBox is one drag frame: the position is applied to the local overlay
// only, nothing is persisted until CommitMove.
type MoveBox struct {
	BoxID string
	X, Y  float64
}

// CommitMove ends a drag gesture and persists the last overlay position.
// Safe to dispatch after a lost pointer: whatever position the overlay last
// held is committed.
type CommitMove struct {
	BoxID string
}

// ResizeBox is one resize frame, overlay-only like MoveBox.
type ResizeBox struct {
	BoxID string
	W, H  float64
}

// CommitResize ends a resize gesture and persists the overlay size.
type CommitResize struct {
	BoxID string
}

// ConnectBoxes creates a directed edge source→target after self-loop and
// cycle validation.
type ConnectBoxes struct {
	SourceID, TargetID string
}

// DisconnectBoxes removes the edge for an ordered pair.
type DisconnectBoxes struct {
	SourceID, TargetID string
}

// DeleteBox removes a box and its edges.
type DeleteBox struct {
	BoxID string
}

// SetContent updates a box's content (SQL text or chart config) and marks it
// edited.
type SetContent struct {
	BoxID   string
	Content string
}

// SetTitle assigns the box's queryable table name.
type SetTitle struct {
	BoxID string
	Title string
}

// ExecuteBox runs a full execution pass for a query box. Concurrent
// dispatches for the same box while one is in flight are conflated into
// that run, not queued.
type ExecuteBox struct {
	BoxID string
}

// Pan shifts the viewport by a screen-space delta.
type Pan struct {
	DX, DY float64
}

// Zoom scales the viewport around a screen-space anchor point.
type Zoom struct {
	Factor float64
	CX, CY float64
}

func (CreateBox) isCommand()       {}
func (MoveBox) isCommand()         {}
func (CommitMove) isCommand()      {}
func (ResizeBox) isCommand()       {}
func (CommitResize) isCommand()    {}
func (ConnectBoxes) isCommand()    {}
func (DisconnectBoxes) isCommand() {}
func (DeleteBox) isCommand()       {}
func (SetContent) isCommand()      {}
func (SetTitle) isCommand()        {}
func (ExecuteBox) isCommand()      {}
func (Pan) isCommand()             {}
func (Zoom) isCommand()            {}
