// Package controller reconciles a dashboard's persisted graph with the
// interactive canvas: tool placement, drag and resize with commit-on-end,
// pan/zoom with viewport culling, connection validation, and query
// execution passes. All mutations arrive as dispatched commands.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meikuraledutech/canvasql"
	"github.com/meikuraledutech/canvasql/engine"
	"github.com/meikuraledutech/canvasql/graph"
)

// Executor runs one execution pass against the embedded engine.
// *engine.Session satisfies it; tests substitute a fake.
type Executor interface {
	RunPass(ctx context.Context, query string, datasets []engine.RemoteTable, named []engine.NamedResult) (*canvasql.Result, error)
}

// Controller drives one dashboard's canvas. All state behind mu is the
// authoritative store snapshot plus local-only gesture overlays; remote
// updates arriving via Refresh overwrite the snapshot but never an active
// overlay.
type Controller struct {
	dashboardID string
	store       canvasql.Store
	objects     canvasql.ObjectStore
	exec        Executor
	log         *slog.Logger

	mu       sync.Mutex
	boxes    map[string]canvasql.Box
	edges    []canvasql.Edge
	overlays map[string]*overlay
	busy     map[string]bool
	viewport Viewport
}

// Option configures a Controller.
type Option func(*Controller)

// WithObjectStore wires the presigned-URL provider used to resolve dataset
// download URLs. Without it, remote datasets are skipped during execution.
func WithObjectStore(os canvasql.ObjectStore) Option {
	return func(c *Controller) { c.objects = os }
}

// WithLogger substitutes the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New creates a controller for one dashboard. Call Refresh to load the
// persisted graph before dispatching.
func New(dashboardID string, store canvasql.Store, exec Executor, opts ...Option) *Controller {
	c := &Controller{
		dashboardID: dashboardID,
		store:       store,
		exec:        exec,
		log:         slog.Default(),
		boxes:       map[string]canvasql.Box{},
		edges:       []canvasql.Edge{},
		overlays:    map[string]*overlay{},
		busy:        map[string]bool{},
		viewport:    Viewport{W: 1920, H: 1080, Zoom: 1},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh replaces the local snapshot with the authoritative store state.
// Local optimism is overwritten; overlays of active gestures survive because
// they live beside the snapshot, not in it.
func (c *Controller) Refresh(ctx context.Context) error {
	boxes, err := c.store.ListBoxes(ctx, c.dashboardID)
	if err != nil {
		return err
	}
	edges, err := c.store.ListEdges(ctx, c.dashboardID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.boxes = make(map[string]canvasql.Box, len(boxes))
	for _, b := range boxes {
		c.boxes[b.ID] = b
	}
	c.edges = edges
	return nil
}

// Dispatch applies a command. Validation failures (self-connection, cycle)
// are returned synchronously with nothing persisted.
func (c *Controller) Dispatch(ctx context.Context, cmd Command) error {
	switch cmd := cmd.(type) {
	case CreateBox:
		return c.createBox(ctx, cmd)
	case MoveBox:
		return c.moveBox(cmd)
	case CommitMove:
		return c.commitGesture(ctx, cmd.BoxID)
	case ResizeBox:
		return c.resizeBox(cmd)
	case CommitResize:
		return c.commitGesture(ctx, cmd.BoxID)
	case ConnectBoxes:
		return c.connectBoxes(ctx, cmd)
	case DisconnectBoxes:
		return c.disconnectBoxes(ctx, cmd)
	case DeleteBox:
		return c.deleteBox(ctx, cmd)
	case SetContent:
		return c.setContent(ctx, cmd)
	case SetTitle:
		return c.setTitle(ctx, cmd)
	case ExecuteBox:
		return c.executeBox(ctx, cmd)
	case Pan:
		c.mu.Lock()
		c.viewport = c.viewport.pan(cmd.DX, cmd.DY)
		c.mu.Unlock()
		return nil
	case Zoom:
		c.mu.Lock()
		c.viewport = c.viewport.zoom(cmd.Factor, cmd.CX, cmd.CY)
		c.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("canvasql: unknown command %T", cmd)
	}
}

// Viewport returns the current viewport.
func (c *Controller) Viewport() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

// VisibleBoxes returns the boxes intersecting the viewport expanded by
// CullPadding, with active gesture overlays applied, ready for rendering.
func (c *Controller) VisibleBoxes() []canvasql.Box {
	c.mu.Lock()
	defer c.mu.Unlock()

	visible := []canvasql.Box{}
	for _, b := range c.boxes {
		b = c.applyOverlay(b)
		if c.viewport.visible(b.X, b.Y, b.W, b.H) {
			visible = append(visible, b)
		}
	}
	return visible
}

// Box returns the box with overlay applied, if it exists.
func (c *Controller) Box(boxID string) (canvasql.Box, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.boxes[boxID]
	if !ok {
		return canvasql.Box{}, false
	}
	return c.applyOverlay(b), true
}

// Busy reports whether an execution pass for the box is in flight.
func (c *Controller) Busy(boxID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy[boxID]
}

// applyOverlay merges an active gesture's local position/size into the box.
// Caller holds mu.
func (c *Controller) applyOverlay(b canvasql.Box) canvasql.Box {
	if ov, ok := c.overlays[b.ID]; ok && ov.phase == dragActive {
		if ov.hasPos {
			b.X, b.Y = ov.x, ov.y
		}
		if ov.hasSize {
			b.W, b.H = ov.w, ov.h
		}
	}
	return b
}

func (c *Controller) createBox(ctx context.Context, cmd CreateBox) error {
	id, err := c.store.CreateBox(ctx, c.dashboardID, cmd.Kind, cmd.X, cmd.Y)
	if err != nil {
		return err
	}
	b, err := c.store.GetBox(ctx, id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.boxes[id] = *b
	c.mu.Unlock()
	return nil
}

func (c *Controller) moveBox(cmd MoveBox) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.boxes[cmd.BoxID]; !ok {
		return canvasql.ErrBoxNotFound
	}
	ov := c.overlays[cmd.BoxID]
	if ov == nil {
		ov = &overlay{}
		c.overlays[cmd.BoxID] = ov
	}
	ov.phase = dragActive
	ov.x, ov.y = cmd.X, cmd.Y
	ov.hasPos = true
	return nil
}

func (c *Controller) resizeBox(cmd ResizeBox) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.boxes[cmd.BoxID]; !ok {
		return canvasql.ErrBoxNotFound
	}
	ov := c.overlays[cmd.BoxID]
	if ov == nil {
		ov = &overlay{}
		c.overlays[cmd.BoxID] = ov
	}
	ov.phase = dragActive
	ov.w, ov.h = cmd.W, cmd.H
	ov.hasSize = true
	return nil
}

// commitGesture persists whatever the overlay last held and returns the box
// to idle. Dispatching a commit with no active overlay is a no-op, so a
// pointer-up that raced a lost pointer cannot leave the box displaced.
func (c *Controller) commitGesture(ctx context.Context, boxID string) error {
	c.mu.Lock()
	ov, ok := c.overlays[boxID]
	if !ok || ov.phase != dragActive {
		c.mu.Unlock()
		return nil
	}
	ov.phase = dragCommitted
	b, exists := c.boxes[boxID]
	if !exists {
		delete(c.overlays, boxID)
		c.mu.Unlock()
		return canvasql.ErrBoxNotFound
	}
	x, y := b.X, b.Y
	if ov.hasPos {
		x, y = ov.x, ov.y
	}
	var w, h *float64
	if ov.hasSize {
		w, h = &ov.w, &ov.h
	}
	c.mu.Unlock()

	if err := c.store.UpdateBoxPosition(ctx, boxID, x, y, w, h); err != nil {
		return err
	}

	c.mu.Lock()
	if b, ok := c.boxes[boxID]; ok {
		b.X, b.Y = x, y
		if w != nil {
			b.W = *w
		}
		if h != nil {
			b.H = *h
		}
		c.boxes[boxID] = b
	}
	delete(c.overlays, boxID)
	c.mu.Unlock()
	return nil
}

func (c *Controller) connectBoxes(ctx context.Context, cmd ConnectBoxes) error {
	c.mu.Lock()
	edges := make([]canvasql.Edge, len(c.edges))
	copy(edges, c.edges)
	c.mu.Unlock()

	// Pre-commit validation; nothing is persisted on rejection and the two
	// reasons stay distinguishable for the user.
	if err := graph.ValidateConnection(edges, cmd.SourceID, cmd.TargetID); err != nil {
		return err
	}

	id, err := c.store.CreateEdge(ctx, c.dashboardID, cmd.SourceID, cmd.TargetID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.edges {
		if e.ID == id {
			return nil // idempotent create returned an existing edge
		}
	}
	c.edges = append(c.edges, canvasql.Edge{
		ID:          id,
		DashboardID: c.dashboardID,
		SourceBoxID: cmd.SourceID,
		TargetBoxID: cmd.TargetID,
	})
	return nil
}

func (c *Controller) disconnectBoxes(ctx context.Context, cmd DisconnectBoxes) error {
	if err := c.store.DeleteEdge(ctx, cmd.SourceID, cmd.TargetID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.edges {
		if e.SourceBoxID == cmd.SourceID && e.TargetBoxID == cmd.TargetID {
			c.edges = append(c.edges[:i], c.edges[i+1:]...)
			break
		}
	}
	return nil
}

func (c *Controller) deleteBox(ctx context.Context, cmd DeleteBox) error {
	if err := c.store.DeleteBox(ctx, cmd.BoxID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.boxes, cmd.BoxID)
	delete(c.overlays, cmd.BoxID)
	edges := c.edges[:0]
	for _, e := range c.edges {
		if e.SourceBoxID != cmd.BoxID && e.TargetBoxID != cmd.BoxID {
			edges = append(edges, e)
		}
	}
	c.edges = edges
	return nil
}

func (c *Controller) setContent(ctx context.Context, cmd SetContent) error {
	now := time.Now()
	upd := canvasql.BoxUpdate{Content: &cmd.Content, EditedAt: &now}
	if err := c.store.UpdateBoxContent(ctx, cmd.BoxID, upd); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.boxes[cmd.BoxID]; ok {
		b.Content = cmd.Content
		b.EditedAt = &now
		c.boxes[cmd.BoxID] = b
	}
	return nil
}

func (c *Controller) setTitle(ctx context.Context, cmd SetTitle) error {
	upd := canvasql.BoxUpdate{Title: &cmd.Title}
	if err := c.store.UpdateBoxContent(ctx, cmd.BoxID, upd); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.boxes[cmd.BoxID]; ok {
		b.Title = cmd.Title
		c.boxes[cmd.BoxID] = b
	}
	return nil
}

// executeBox runs one execution pass for a query box. A second dispatch for
// the same box while a pass is in flight is conflated into it (no-op, not
// queued); different boxes may run concurrently and are serialized by the
// engine itself.
func (c *Controller) executeBox(ctx context.Context, cmd ExecuteBox) error {
	c.mu.Lock()
	box, ok := c.boxes[cmd.BoxID]
	if !ok {
		c.mu.Unlock()
		return canvasql.ErrBoxNotFound
	}
	if c.busy[cmd.BoxID] {
		c.mu.Unlock()
		return nil
	}
	c.busy[cmd.BoxID] = true
	boxes := make([]canvasql.Box, 0, len(c.boxes))
	for _, b := range c.boxes {
		boxes = append(boxes, b)
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.busy, cmd.BoxID)
		c.mu.Unlock()
	}()

	datasets, err := c.remoteTables(ctx)
	if err != nil {
		// Dataset listing failures are isolated like load failures.
		c.log.Warn("dataset listing failed, executing without datasets",
			"box", cmd.BoxID, "error", err)
		datasets = nil
	}
	named := engine.NamedResultsOf(boxes, cmd.BoxID)

	res, err := c.exec.RunPass(ctx, box.Content, datasets, named)
	if err != nil {
		// Terminal for this run: persist the error payload so the box
		// visibly shows the failure; the user re-triggers execution.
		res = canvasql.ErrorResult(err.Error())
	}

	payload, merr := res.Marshal()
	if merr != nil {
		return merr
	}

	// The pending call may outlive the box; apply results only if it still
	// exists by the time they arrive.
	if _, gerr := c.store.GetBox(ctx, cmd.BoxID); gerr != nil {
		if errors.Is(gerr, canvasql.ErrBoxNotFound) {
			c.log.Info("box deleted mid-run, discarding results", "box", cmd.BoxID)
			return nil
		}
		return gerr
	}

	now := time.Now()
	upd := canvasql.BoxUpdate{Results: payload, RunAt: &now}
	if uerr := c.store.UpdateBoxContent(ctx, cmd.BoxID, upd); uerr != nil {
		return uerr
	}

	c.mu.Lock()
	if b, ok := c.boxes[cmd.BoxID]; ok {
		b.Results = payload
		b.RunAt = &now
		c.boxes[cmd.BoxID] = b
	}
	c.mu.Unlock()
	return nil
}

// remoteTables resolves the dashboard's datasets to download URLs. Without
// an object store, datasets are skipped.
func (c *Controller) remoteTables(ctx context.Context) ([]engine.RemoteTable, error) {
	if c.objects == nil {
		return nil, nil
	}
	datasets, err := c.store.ListDatasets(ctx, c.dashboardID)
	if err != nil {
		return nil, err
	}
	tables := make([]engine.RemoteTable, 0, len(datasets))
	for _, ds := range datasets {
		url, err := c.objects.GetDownloadURL(ctx, ds.StorageKey)
		if err != nil {
			c.log.Warn("download URL failed, skipping dataset",
				"dataset", ds.Name, "error", err)
			continue
		}
		tables = append(tables, engine.RemoteTable{URL: url, Name: ds.Name})
	}
	return tables, nil
}

// DisplayData resolves what a box should render. Query boxes show their own
// results. Table and chart boxes show the closest upstream result: their own
// if stored, otherwise the first ancestor with results — they never store a
// copy of an ancestor's data.
func (c *Controller) DisplayData(boxID string) (*canvasql.Result, error) {
	c.mu.Lock()
	box, ok := c.boxes[boxID]
	if !ok {
		c.mu.Unlock()
		return nil, canvasql.ErrBoxNotFound
	}
	boxes := make([]canvasql.Box, 0, len(c.boxes))
	for _, b := range c.boxes {
		boxes = append(boxes, b)
	}
	edges := make([]canvasql.Edge, len(c.edges))
	copy(edges, c.edges)
	c.mu.Unlock()

	if box.HasResults() {
		return canvasql.ParseResult(box.Results)
	}
	if box.Kind == canvasql.KindQuery {
		return nil, nil
	}
	src := graph.FindSourceWithResults(boxes, edges, boxID)
	if src == nil {
		return nil, nil
	}
	return canvasql.ParseResult(src.Results)
}
