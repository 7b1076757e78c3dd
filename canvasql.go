package canvasql

import (
	"encoding/json"
	"time"
)

// BoxKind is the variant tag of a canvas box.
type BoxKind string

const (
	KindQuery BoxKind = "query"
	KindTable BoxKind = "table"
	KindChart BoxKind = "chart"
)

// BoxStatus is the derived execution status of a box.
type BoxStatus string

const (
	StatusNeverRun BoxStatus = "never-run"
	StatusInSync   BoxStatus = "in-sync"
	StatusChanged  BoxStatus = "changed"
)

// Box is a single canvas element: a query, a table view, or a chart.
// Position and size are in canvas space. Content holds SQL text for query
// boxes and a serialized chart.Config for chart boxes. Results holds the
// serialized Result of the last run, if any.
type Box struct {
	ID          string          `json:"id,omitempty"`
	DashboardID string          `json:"dashboard_id,omitempty"`
	Kind        BoxKind         `json:"kind"`
	X           float64         `json:"x"`
	Y           float64         `json:"y"`
	W           float64         `json:"w"`
	H           float64         `json:"h"`
	Title       string          `json:"title,omitempty"`
	Content     string          `json:"content,omitempty"`
	Results     json.RawMessage `json:"results,omitempty"`
	RunAt       *time.Time      `json:"run_at,omitempty"`
	EditedAt    *time.Time      `json:"edited_at,omitempty"`
}

// Status derives the tri-state execution status: never-run until the box has
// executed at least once, in-sync while the content has not been edited since
// the last run, changed once it has.
func (b *Box) Status() BoxStatus {
	if b.RunAt == nil {
		return StatusNeverRun
	}
	if b.EditedAt != nil && b.EditedAt.After(*b.RunAt) {
		return StatusChanged
	}
	return StatusInSync
}

// HasResults reports whether the box carries a non-empty stored result.
func (b *Box) HasResults() bool {
	return len(b.Results) > 0
}

// Addressable reports whether other queries may reference this box's result
// by name: it needs both a user-assigned title and a stored result.
func (b *Box) Addressable() bool {
	return b.Title != "" && b.HasResults()
}

// Edge is a directed data-flow connection between two boxes of one dashboard.
// The edge set over a dashboard's boxes must remain acyclic; this is enforced
// when edges are created, never retroactively.
type Edge struct {
	ID          string `json:"id,omitempty"`
	DashboardID string `json:"dashboard_id,omitempty"`
	SourceBoxID string `json:"source_box_id"`
	TargetBoxID string `json:"target_box_id"`
}

// Visibility of a dataset.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Dataset is a named columnar source registered on a dashboard, backed by an
// object-storage key. ExpiresAt is set for temporary guest uploads.
type Dataset struct {
	ID          string     `json:"id,omitempty"`
	DashboardID string     `json:"dashboard_id,omitempty"`
	Name        string     `json:"name"`
	StorageKey  string     `json:"storage_key"`
	Size        int64      `json:"size"`
	Schema      []Column   `json:"schema,omitempty"`
	Visibility  Visibility `json:"visibility"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the dataset's expiry has passed at time now.
func (d *Dataset) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && !d.ExpiresAt.After(now)
}

// Column is one entry of an inferred dataset schema.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Dashboard owns boxes, edges, and datasets. Exactly one of OwnerUserID and
// OwnerSessionID is set; session-owned dashboards can be claimed once by an
// authenticated user.
type Dashboard struct {
	ID             string    `json:"id,omitempty"`
	Name           string    `json:"name"`
	OwnerUserID    string    `json:"owner_user_id,omitempty"`
	OwnerSessionID string    `json:"owner_session_id,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}
