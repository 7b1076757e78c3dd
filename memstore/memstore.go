// Package memstore is an in-memory canvasql.Store with the same semantics as
// the postgres implementation. It backs package tests, the example, and
// server runs without a database.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/canvasql"
	"github.com/meikuraledutech/canvasql/graph"
)

// Store is a mutex-guarded in-memory implementation of canvasql.Store.
type Store struct {
	mu         sync.Mutex
	dashboards map[string]*canvasql.Dashboard
	boxes      map[string]*canvasql.Box
	// edges and datasets keep insertion order; resolution tie-breaks and
	// listings depend on collection order.
	edges    []canvasql.Edge
	datasets []canvasql.Dataset
}

var _ canvasql.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		dashboards: map[string]*canvasql.Dashboard{},
		boxes:      map[string]*canvasql.Box{},
		edges:      []canvasql.Edge{},
		datasets:   []canvasql.Dataset{},
	}
}

func (s *Store) CreateDashboard(ctx context.Context, d *canvasql.Dashboard) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	cp := *d
	s.dashboards[d.ID] = &cp
	return d.ID, nil
}

func (s *Store) GetDashboard(ctx context.Context, dashboardID string) (*canvasql.Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dashboards[dashboardID]
	if !ok {
		return nil, canvasql.ErrDashboardNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) DeleteDashboard(ctx context.Context, dashboardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dashboards, dashboardID)
	for id, b := range s.boxes {
		if b.DashboardID == dashboardID {
			delete(s.boxes, id)
		}
	}
	edges := s.edges[:0]
	for _, e := range s.edges {
		if e.DashboardID != dashboardID {
			edges = append(edges, e)
		}
	}
	s.edges = edges
	datasets := s.datasets[:0]
	for _, ds := range s.datasets {
		if ds.DashboardID != dashboardID {
			datasets = append(datasets, ds)
		}
	}
	s.datasets = datasets
	return nil
}

func (s *Store) ClaimDashboard(ctx context.Context, dashboardID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dashboards[dashboardID]
	if !ok {
		return canvasql.ErrDashboardNotFound
	}
	if d.OwnerUserID != "" {
		return canvasql.ErrAlreadyClaimed
	}
	d.OwnerUserID = userID
	d.OwnerSessionID = ""
	return nil
}

func (s *Store) CreateBox(ctx context.Context, dashboardID string, kind canvasql.BoxKind, x, y float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dashboards[dashboardID]; !ok {
		return "", canvasql.ErrDashboardNotFound
	}
	b := &canvasql.Box{
		ID:          uuid.NewString(),
		DashboardID: dashboardID,
		Kind:        kind,
		X:           x,
		Y:           y,
		W:           defaultBoxW,
		H:           defaultBoxH,
	}
	s.boxes[b.ID] = b
	return b.ID, nil
}

const (
	defaultBoxW = 360
	defaultBoxH = 240
)

func (s *Store) GetBox(ctx context.Context, boxID string) (*canvasql.Box, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boxes[boxID]
	if !ok {
		return nil, canvasql.ErrBoxNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) ListBoxes(ctx context.Context, dashboardID string) ([]canvasql.Box, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	boxes := []canvasql.Box{}
	for _, b := range s.boxes {
		if b.DashboardID == dashboardID {
			boxes = append(boxes, *b)
		}
	}
	return boxes, nil
}

func (s *Store) UpdateBoxPosition(ctx context.Context, boxID string, x, y float64, w, h *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boxes[boxID]
	if !ok {
		return canvasql.ErrBoxNotFound
	}
	b.X, b.Y = x, y
	if w != nil {
		b.W = *w
	}
	if h != nil {
		b.H = *h
	}
	return nil
}

func (s *Store) UpdateBoxContent(ctx context.Context, boxID string, upd canvasql.BoxUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boxes[boxID]
	if !ok {
		return canvasql.ErrBoxNotFound
	}
	if upd.Content != nil {
		b.Content = *upd.Content
	}
	if upd.Results != nil {
		b.Results = upd.Results
	}
	if upd.Title != nil {
		b.Title = *upd.Title
	}
	if upd.RunAt != nil {
		b.RunAt = upd.RunAt
	}
	if upd.EditedAt != nil {
		b.EditedAt = upd.EditedAt
	}
	return nil
}

func (s *Store) DeleteBox(ctx context.Context, boxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.boxes, boxID)
	edges := s.edges[:0]
	for _, e := range s.edges {
		if e.SourceBoxID != boxID && e.TargetBoxID != boxID {
			edges = append(edges, e)
		}
	}
	s.edges = edges
	return nil
}

func (s *Store) CreateEdge(ctx context.Context, dashboardID, sourceBoxID, targetBoxID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sourceBoxID == targetBoxID {
		return "", canvasql.ErrSelfLoop
	}
	existing := []canvasql.Edge{}
	for _, e := range s.edges {
		if e.DashboardID != dashboardID {
			continue
		}
		if e.SourceBoxID == sourceBoxID && e.TargetBoxID == targetBoxID {
			return e.ID, nil
		}
		existing = append(existing, e)
	}
	if graph.WouldCreateCycle(existing, sourceBoxID, targetBoxID) {
		return "", canvasql.ErrCycleDetected
	}

	e := canvasql.Edge{
		ID:          uuid.NewString(),
		DashboardID: dashboardID,
		SourceBoxID: sourceBoxID,
		TargetBoxID: targetBoxID,
	}
	s.edges = append(s.edges, e)
	return e.ID, nil
}

func (s *Store) ListEdges(ctx context.Context, dashboardID string) ([]canvasql.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	edges := []canvasql.Edge{}
	for _, e := range s.edges {
		if e.DashboardID == dashboardID {
			edges = append(edges, e)
		}
	}
	return edges, nil
}

func (s *Store) DeleteEdge(ctx context.Context, sourceBoxID, targetBoxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.edges {
		if e.SourceBoxID == sourceBoxID && e.TargetBoxID == targetBoxID {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			return nil
		}
	}
	return canvasql.ErrEdgeNotFound
}

func (s *Store) CreateDataset(ctx context.Context, ds *canvasql.Dataset) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	if ds.Visibility == "" {
		ds.Visibility = canvasql.VisibilityPrivate
	}
	s.datasets = append(s.datasets, *ds)
	return ds.ID, nil
}

func (s *Store) ListDatasets(ctx context.Context, dashboardID string) ([]canvasql.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	datasets := []canvasql.Dataset{}
	for _, ds := range s.datasets {
		if ds.DashboardID == dashboardID && !ds.Expired(now) {
			datasets = append(datasets, ds)
		}
	}
	return datasets, nil
}

func (s *Store) DeleteDataset(ctx context.Context, datasetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ds := range s.datasets {
		if ds.ID == datasetID {
			s.datasets = append(s.datasets[:i], s.datasets[i+1:]...)
			return nil
		}
	}
	return canvasql.ErrDatasetNotFound
}
