package controller

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/canvasql"
	"github.com/meikuraledutech/canvasql/engine"
	"github.com/meikuraledutech/canvasql/memstore"
)

// fakeExec records passes and returns a canned result, optionally blocking
// until released so tests can observe in-flight state.
type fakeExec struct {
	mu      sync.Mutex
	calls   int
	queries []string
	named   [][]engine.NamedResult
	result  *canvasql.Result
	err     error
	block   chan struct{}
	onRun   func()
}

func (f *fakeExec) RunPass(ctx context.Context, query string, datasets []engine.RemoteTable, named []engine.NamedResult) (*canvasql.Result, error) {
	f.mu.Lock()
	f.calls++
	f.queries = append(f.queries, query)
	f.named = append(f.named, named)
	onRun := f.onRun
	block := f.block
	f.mu.Unlock()

	if onRun != nil {
		onRun()
	}
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &canvasql.Result{Columns: []string{"n"}, Rows: [][]any{{"1"}}, TotalRows: 1}, nil
}

func (f *fakeExec) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestController(t *testing.T) (*Controller, *memstore.Store, *fakeExec, string) {
	t.Helper()
	store := memstore.New()
	dashID, err := store.CreateDashboard(context.Background(), &canvasql.Dashboard{
		Name:           "test",
		OwnerSessionID: "session",
	})
	require.NoError(t, err)

	exec := &fakeExec{}
	ctrl := New(dashID, store, exec)
	require.NoError(t, ctrl.Refresh(context.Background()))
	return ctrl, store, exec, dashID
}

func createBox(t *testing.T, ctrl *Controller, store *memstore.Store, dashID string, kind canvasql.BoxKind) string {
	t.Helper()
	before, err := store.ListBoxes(context.Background(), dashID)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, b := range before {
		seen[b.ID] = true
	}

	require.NoError(t, ctrl.Dispatch(context.Background(), CreateBox{Kind: kind, X: 10, Y: 10}))

	after, err := store.ListBoxes(context.Background(), dashID)
	require.NoError(t, err)
	for _, b := range after {
		if !seen[b.ID] {
			return b.ID
		}
	}
	t.Fatal("no box created")
	return ""
}

func TestDragCommitOnEnd(t *testing.T) {
	ctrl, store, _, dashID := newTestController(t)
	ctx := context.Background()
	id := createBox(t, ctrl, store, dashID, canvasql.KindQuery)

	// Drag frames update the overlay, not the store.
	require.NoError(t, ctrl.Dispatch(ctx, MoveBox{BoxID: id, X: 200, Y: 50}))
	require.NoError(t, ctrl.Dispatch(ctx, MoveBox{BoxID: id, X: 300, Y: 80}))

	local, ok := ctrl.Box(id)
	require.True(t, ok)
	assert.Equal(t, 300.0, local.X)

	persisted, err := store.GetBox(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10.0, persisted.X)

	// Commit persists the last frame.
	require.NoError(t, ctrl.Dispatch(ctx, CommitMove{BoxID: id}))
	persisted, err = store.GetBox(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 300.0, persisted.X)
	assert.Equal(t, 80.0, persisted.Y)
}

func TestDragCommitWithoutFramesIsNoop(t *testing.T) {
	ctrl, store, _, dashID := newTestController(t)
	ctx := context.Background()
	id := createBox(t, ctrl, store, dashID, canvasql.KindQuery)

	require.NoError(t, ctrl.Dispatch(ctx, CommitMove{BoxID: id}))

	persisted, err := store.GetBox(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10.0, persisted.X)
}

func TestInterruptedDragCommitsLastKnownPosition(t *testing.T) {
	ctrl, store, _, dashID := newTestController(t)
	ctx := context.Background()
	id := createBox(t, ctrl, store, dashID, canvasql.KindQuery)

	// Pointer lost mid-gesture: only one frame arrived, then pointer-up
	// with no final position. The last known overlay position commits.
	require.NoError(t, ctrl.Dispatch(ctx, MoveBox{BoxID: id, X: 150, Y: 60}))
	require.NoError(t, ctrl.Dispatch(ctx, CommitMove{BoxID: id}))

	persisted, err := store.GetBox(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 150.0, persisted.X)
	assert.Equal(t, 60.0, persisted.Y)

	// The overlay is gone; rendering now follows the persisted state.
	local, _ := ctrl.Box(id)
	assert.Equal(t, 150.0, local.X)
}

func TestResizeCommitOnEnd(t *testing.T) {
	ctrl, store, _, dashID := newTestController(t)
	ctx := context.Background()
	id := createBox(t, ctrl, store, dashID, canvasql.KindTable)

	require.NoError(t, ctrl.Dispatch(ctx, ResizeBox{BoxID: id, W: 500, H: 400}))
	persisted, _ := store.GetBox(ctx, id)
	assert.NotEqual(t, 500.0, persisted.W)

	require.NoError(t, ctrl.Dispatch(ctx, CommitResize{BoxID: id}))
	persisted, _ = store.GetBox(ctx, id)
	assert.Equal(t, 500.0, persisted.W)
	assert.Equal(t, 400.0, persisted.H)
}

func TestConnectValidation(t *testing.T) {
	ctrl, store, _, dashID := newTestController(t)
	ctx := context.Background()
	a := createBox(t, ctrl, store, dashID, canvasql.KindQuery)
	b := createBox(t, ctrl, store, dashID, canvasql.KindTable)

	// Self-connection and cycle get distinct, synchronous rejections.
	err := ctrl.Dispatch(ctx, ConnectBoxes{SourceID: a, TargetID: a})
	assert.ErrorIs(t, err, canvasql.ErrSelfLoop)

	require.NoError(t, ctrl.Dispatch(ctx, ConnectBoxes{SourceID: a, TargetID: b}))
	err = ctrl.Dispatch(ctx, ConnectBoxes{SourceID: b, TargetID: a})
	assert.ErrorIs(t, err, canvasql.ErrCycleDetected)

	// Nothing was persisted for the rejected connections.
	edges, err := store.ListEdges(ctx, dashID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestConnectIdempotent(t *testing.T) {
	ctrl, store, _, dashID := newTestController(t)
	ctx := context.Background()
	a := createBox(t, ctrl, store, dashID, canvasql.KindQuery)
	b := createBox(t, ctrl, store, dashID, canvasql.KindTable)

	require.NoError(t, ctrl.Dispatch(ctx, ConnectBoxes{SourceID: a, TargetID: b}))
	require.NoError(t, ctrl.Dispatch(ctx, ConnectBoxes{SourceID: a, TargetID: b}))

	edges, err := store.ListEdges(ctx, dashID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestViewportCulling(t *testing.T) {
	ctrl, store, _, dashID := newTestController(t)
	ctx := context.Background()

	near := createBox(t, ctrl, store, dashID, canvasql.KindQuery)
	far := createBox(t, ctrl, store, dashID, canvasql.KindQuery)
	require.NoError(t, ctrl.Dispatch(ctx, MoveBox{BoxID: far, X: 10000, Y: 10000}))
	require.NoError(t, ctrl.Dispatch(ctx, CommitMove{BoxID: far}))

	ids := func() map[string]bool {
		out := map[string]bool{}
		for _, b := range ctrl.VisibleBoxes() {
			out[b.ID] = true
		}
		return out
	}

	visible := ids()
	assert.True(t, visible[near])
	assert.False(t, visible[far])

	// Pan towards the far box until it enters the padded viewport.
	require.NoError(t, ctrl.Dispatch(ctx, Pan{DX: -9000, DY: -9000}))
	visible = ids()
	assert.True(t, visible[far])
}

func TestViewportProjection(t *testing.T) {
	v := Viewport{X: 100, Y: 200, W: 800, H: 600, Zoom: 2}
	x, y := v.ToCanvas(400, 300)
	assert.Equal(t, 300.0, x)
	assert.Equal(t, 350.0, y)

	// Zoom keeps the canvas point under the anchor fixed.
	z := v.zoom(2, 400, 300)
	zx, zy := z.ToCanvas(400, 300)
	assert.InDelta(t, x, zx, 1e-9)
	assert.InDelta(t, y, zy, 1e-9)
}

func TestExecutePersistsResultsAndRunAt(t *testing.T) {
	ctrl, store, exec, dashID := newTestController(t)
	ctx := context.Background()
	id := createBox(t, ctrl, store, dashID, canvasql.KindQuery)
	require.NoError(t, ctrl.Dispatch(ctx, SetContent{BoxID: id, Content: "SELECT 1"}))

	exec.result = &canvasql.Result{
		Columns:   []string{"region", "amt"},
		Rows:      [][]any{{"east", 10.0}, {"west", 20.0}},
		TotalRows: 2,
	}
	require.NoError(t, ctrl.Dispatch(ctx, ExecuteBox{BoxID: id}))

	b, err := store.GetBox(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, b.RunAt)
	assert.Equal(t, canvasql.StatusInSync, b.Status())

	res, err := canvasql.ParseResult(b.Results)
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "amt"}, res.Columns)
	assert.Equal(t, 1, exec.callCount())
}

func TestExecuteFailureWritesErrorPayload(t *testing.T) {
	ctrl, store, exec, dashID := newTestController(t)
	ctx := context.Background()
	id := createBox(t, ctrl, store, dashID, canvasql.KindQuery)

	exec.err = assert.AnError
	require.NoError(t, ctrl.Dispatch(ctx, ExecuteBox{BoxID: id}))

	b, err := store.GetBox(ctx, id)
	require.NoError(t, err)
	res, err := canvasql.ParseResult(b.Results)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Rows)
}

func TestExecuteBusyConflation(t *testing.T) {
	ctrl, store, exec, dashID := newTestController(t)
	ctx := context.Background()
	id := createBox(t, ctrl, store, dashID, canvasql.KindQuery)

	started := make(chan struct{})
	exec.block = make(chan struct{})
	exec.onRun = func() { close(started) }

	done := make(chan error, 1)
	go func() { done <- ctrl.Dispatch(ctx, ExecuteBox{BoxID: id}) }()
	<-started
	assert.True(t, ctrl.Busy(id))

	// A second click while in flight is conflated: returns immediately,
	// no second pass.
	require.NoError(t, ctrl.Dispatch(ctx, ExecuteBox{BoxID: id}))
	assert.Equal(t, 1, exec.callCount())

	close(exec.block)
	require.NoError(t, <-done)
	assert.False(t, ctrl.Busy(id))
}

func TestExecuteDiscardsResultForDeletedBox(t *testing.T) {
	ctrl, store, exec, dashID := newTestController(t)
	ctx := context.Background()
	id := createBox(t, ctrl, store, dashID, canvasql.KindQuery)

	// The box disappears while the pass is in flight; the resolved result
	// must be discarded, not written.
	exec.onRun = func() {
		require.NoError(t, store.DeleteBox(ctx, id))
	}
	require.NoError(t, ctrl.Dispatch(ctx, ExecuteBox{BoxID: id}))

	_, err := store.GetBox(ctx, id)
	assert.ErrorIs(t, err, canvasql.ErrBoxNotFound)
}

func TestExecutePassesNamedResultsOfTitledBoxes(t *testing.T) {
	ctrl, store, exec, dashID := newTestController(t)
	ctx := context.Background()

	upstream := createBox(t, ctrl, store, dashID, canvasql.KindQuery)
	require.NoError(t, ctrl.Dispatch(ctx, SetTitle{BoxID: upstream, Title: "sales"}))
	payload, _ := (&canvasql.Result{Columns: []string{"amt"}, Rows: [][]any{{10.0}}}).Marshal()
	require.NoError(t, store.UpdateBoxContent(ctx, upstream, canvasql.BoxUpdate{Results: payload}))

	untitled := createBox(t, ctrl, store, dashID, canvasql.KindQuery)
	require.NoError(t, store.UpdateBoxContent(ctx, untitled, canvasql.BoxUpdate{Results: payload}))

	target := createBox(t, ctrl, store, dashID, canvasql.KindQuery)
	require.NoError(t, ctrl.Refresh(ctx))
	require.NoError(t, ctrl.Dispatch(ctx, ExecuteBox{BoxID: target}))

	require.Len(t, exec.named, 1)
	names := []string{}
	for _, nr := range exec.named[0] {
		names = append(names, nr.Name)
	}
	// Only the titled box with results is addressable by name.
	assert.Equal(t, []string{"sales"}, names)
}

func TestSetContentMarksChanged(t *testing.T) {
	ctrl, store, _, dashID := newTestController(t)
	ctx := context.Background()
	id := createBox(t, ctrl, store, dashID, canvasql.KindQuery)

	require.NoError(t, ctrl.Dispatch(ctx, ExecuteBox{BoxID: id}))
	b, _ := store.GetBox(ctx, id)
	assert.Equal(t, canvasql.StatusInSync, b.Status())

	// Editing after the run flips the derived status.
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, ctrl.Dispatch(ctx, SetContent{BoxID: id, Content: "SELECT 2"}))
	b, _ = store.GetBox(ctx, id)
	assert.Equal(t, canvasql.StatusChanged, b.Status())
}

func TestTableDisplaysUpstreamResultWithoutCopy(t *testing.T) {
	ctrl, store, exec, dashID := newTestController(t)
	ctx := context.Background()

	q := createBox(t, ctrl, store, dashID, canvasql.KindQuery)
	tbl := createBox(t, ctrl, store, dashID, canvasql.KindTable)
	require.NoError(t, ctrl.Dispatch(ctx, SetTitle{BoxID: q, Title: "sales"}))
	require.NoError(t, ctrl.Dispatch(ctx, ConnectBoxes{SourceID: q, TargetID: tbl}))

	exec.result = &canvasql.Result{
		Columns:   []string{"region", "amt"},
		Rows:      [][]any{{"east", 10.0}, {"west", 20.0}},
		TotalRows: 2,
	}
	require.NoError(t, ctrl.Dispatch(ctx, ExecuteBox{BoxID: q}))

	// The table shows the query's data...
	res, err := ctrl.DisplayData(tbl)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, [][]any{{"east", 10.0}, {"west", 20.0}}, res.Rows)

	// ...without storing its own copy.
	persisted, err := store.GetBox(ctx, tbl)
	require.NoError(t, err)
	assert.Empty(t, persisted.Results)
}

func TestRefreshAbsorbsRemoteUpdates(t *testing.T) {
	ctrl, store, _, dashID := newTestController(t)
	ctx := context.Background()
	id := createBox(t, ctrl, store, dashID, canvasql.KindQuery)

	// A collaborator moves the box and a drag is active locally.
	require.NoError(t, ctrl.Dispatch(ctx, MoveBox{BoxID: id, X: 111, Y: 222}))
	require.NoError(t, store.UpdateBoxPosition(ctx, id, 500, 600, nil, nil))
	require.NoError(t, ctrl.Refresh(ctx))

	// The authoritative snapshot took the remote position, but the active
	// overlay still drives rendering until the gesture ends.
	local, ok := ctrl.Box(id)
	require.True(t, ok)
	assert.Equal(t, 111.0, local.X)

	require.NoError(t, ctrl.Dispatch(ctx, CommitMove{BoxID: id}))
	local, _ = ctrl.Box(id)
	assert.Equal(t, 111.0, local.X)

	persisted, _ := store.GetBox(ctx, id)
	assert.Equal(t, 111.0, persisted.X)
}

func TestDeleteBoxDropsEdges(t *testing.T) {
	ctrl, store, _, dashID := newTestController(t)
	ctx := context.Background()
	a := createBox(t, ctrl, store, dashID, canvasql.KindQuery)
	b := createBox(t, ctrl, store, dashID, canvasql.KindTable)
	require.NoError(t, ctrl.Dispatch(ctx, ConnectBoxes{SourceID: a, TargetID: b}))

	require.NoError(t, ctrl.Dispatch(ctx, DeleteBox{BoxID: a}))

	edges, err := store.ListEdges(ctx, dashID)
	require.NoError(t, err)
	assert.Empty(t, edges)
	_, ok := ctrl.Box(a)
	assert.False(t, ok)
}

func TestDispatchUnknownCommand(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)

	type bogus struct{ Command }
	err := ctrl.Dispatch(context.Background(), bogus{})
	assert.Error(t, err)
}

func TestExecuteErrorPayloadRoundTrip(t *testing.T) {
	// The persisted failure payload keeps the wire shape other clients
	// expect: error plus empty columns and rows.
	ctrl, store, exec, dashID := newTestController(t)
	ctx := context.Background()
	id := createBox(t, ctrl, store, dashID, canvasql.KindQuery)

	exec.err = assert.AnError
	require.NoError(t, ctrl.Dispatch(ctx, ExecuteBox{BoxID: id}))

	b, _ := store.GetBox(ctx, id)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b.Results, &raw))
	assert.Contains(t, raw, "error")
	assert.Contains(t, raw, "columns")
	assert.Contains(t, raw, "rows")
}
