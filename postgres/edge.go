package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meikuraledutech/canvasql"
	"github.com/meikuraledutech/canvasql/graph"
)

// CreateEdge inserts a directed edge between two boxes. Creation is
// idempotent per ordered pair: if the edge already exists its ID is returned
// and nothing is written. Self-loops and cycle-closing edges are rejected
// here as well as in the canvas controller, since writes can arrive from
// clients that never went through it.
func (s *PGStore) CreateEdge(ctx context.Context, dashboardID, sourceBoxID, targetBoxID string) (string, error) {
	if sourceBoxID == targetBoxID {
		return "", canvasql.ErrSelfLoop
	}

	var existingID string
	err := s.db.QueryRow(ctx,
		`SELECT id FROM canvas_edges
		 WHERE dashboard_id = $1 AND source_box_id = $2 AND target_box_id = $3`,
		dashboardID, sourceBoxID, targetBoxID,
	).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if !isNoRows(err) {
		return "", fmt.Errorf("canvasql: check edge: %w", err)
	}

	edges, err := s.ListEdges(ctx, dashboardID)
	if err != nil {
		return "", err
	}
	if graph.WouldCreateCycle(edges, sourceBoxID, targetBoxID) {
		return "", canvasql.ErrCycleDetected
	}

	id := uuid.NewString()
	var insertedID string
	err = s.db.QueryRow(ctx,
		`INSERT INTO canvas_edges (id, dashboard_id, source_box_id, target_box_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (dashboard_id, source_box_id, target_box_id) DO NOTHING
		 RETURNING id`,
		id, dashboardID, sourceBoxID, targetBoxID,
	).Scan(&insertedID)
	if isNoRows(err) {
		// Lost a race with a concurrent identical create; return theirs.
		err = s.db.QueryRow(ctx,
			`SELECT id FROM canvas_edges
			 WHERE dashboard_id = $1 AND source_box_id = $2 AND target_box_id = $3`,
			dashboardID, sourceBoxID, targetBoxID,
		).Scan(&insertedID)
	}
	if err != nil {
		return "", fmt.Errorf("canvasql: insert edge: %w", err)
	}
	return insertedID, nil
}

// ListEdges returns all edges of a dashboard, ordered by created_at.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListEdges(ctx context.Context, dashboardID string) ([]canvasql.Edge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, dashboard_id, source_box_id, target_box_id
		 FROM canvas_edges WHERE dashboard_id = $1 ORDER BY created_at`, dashboardID)
	if err != nil {
		return nil, fmt.Errorf("canvasql: list edges: %w", err)
	}
	defer rows.Close()

	edges := []canvasql.Edge{}
	for rows.Next() {
		var e canvasql.Edge
		if err := rows.Scan(&e.ID, &e.DashboardID, &e.SourceBoxID, &e.TargetBoxID); err != nil {
			return nil, fmt.Errorf("canvasql: scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("canvasql: rows edges: %w", err)
	}
	return edges, nil
}

// DeleteEdge deletes the edge for an ordered pair of boxes.
func (s *PGStore) DeleteEdge(ctx context.Context, sourceBoxID, targetBoxID string) error {
	ct, err := s.db.Exec(ctx,
		`DELETE FROM canvas_edges WHERE source_box_id = $1 AND target_box_id = $2`,
		sourceBoxID, targetBoxID,
	)
	if err != nil {
		return fmt.Errorf("canvasql: delete edge: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return canvasql.ErrEdgeNotFound
	}
	return nil
}
