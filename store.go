package canvasql

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrCycleDetected     = errors.New("canvasql: cycle detected, graph is not acyclic")
	ErrSelfLoop          = errors.New("canvasql: a box cannot connect to itself")
	ErrBoxNotFound       = errors.New("canvasql: box not found")
	ErrEdgeNotFound      = errors.New("canvasql: edge not found")
	ErrDashboardNotFound = errors.New("canvasql: dashboard not found")
	ErrDatasetNotFound   = errors.New("canvasql: dataset not found")
	ErrNotAuthorized     = errors.New("canvasql: not authorized")
	ErrAlreadyClaimed    = errors.New("canvasql: dashboard already owned by a user")
)

// BoxUpdate is a partial content update: nil fields are left untouched so
// concurrent collaborators merge at field granularity (last writer wins per
// field, not per box).
type BoxUpdate struct {
	Content  *string         `json:"content,omitempty"`
	Results  json.RawMessage `json:"results,omitempty"`
	Title    *string         `json:"title,omitempty"`
	RunAt    *time.Time      `json:"run_at,omitempty"`
	EditedAt *time.Time      `json:"edited_at,omitempty"`
}

// Store defines the contract for persisting dashboards, boxes, edges, and
// datasets. Authorization is enforced by the implementation (ownership by
// user or session token); callers only surface the errors they receive.
type Store interface {
	// Dashboards
	CreateDashboard(ctx context.Context, d *Dashboard) (string, error)
	GetDashboard(ctx context.Context, dashboardID string) (*Dashboard, error)
	DeleteDashboard(ctx context.Context, dashboardID string) error
	// ClaimDashboard migrates a session-owned dashboard to a user, once.
	ClaimDashboard(ctx context.Context, dashboardID, userID string) error

	// Boxes
	CreateBox(ctx context.Context, dashboardID string, kind BoxKind, x, y float64) (string, error)
	GetBox(ctx context.Context, boxID string) (*Box, error)
	ListBoxes(ctx context.Context, dashboardID string) ([]Box, error)
	UpdateBoxPosition(ctx context.Context, boxID string, x, y float64, w, h *float64) error
	UpdateBoxContent(ctx context.Context, boxID string, upd BoxUpdate) error
	DeleteBox(ctx context.Context, boxID string) error

	// Edges. CreateEdge is idempotent per ordered pair: creating an edge
	// that already exists returns the existing edge's ID.
	CreateEdge(ctx context.Context, dashboardID, sourceBoxID, targetBoxID string) (string, error)
	ListEdges(ctx context.Context, dashboardID string) ([]Edge, error)
	DeleteEdge(ctx context.Context, sourceBoxID, targetBoxID string) error

	// Datasets. ListDatasets excludes expired entries.
	CreateDataset(ctx context.Context, ds *Dataset) (string, error)
	ListDatasets(ctx context.Context, dashboardID string) ([]Dataset, error)
	DeleteDataset(ctx context.Context, datasetID string) error
}

// ObjectStore hands out time-bounded presigned URLs for dataset bytes. The
// core only consumes the URLs for byte transfer, never credentials.
type ObjectStore interface {
	GetUploadURL(ctx context.Context, key string) (string, error)
	GetDownloadURL(ctx context.Context, key string) (string, error)
}
