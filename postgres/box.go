package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meikuraledutech/canvasql"
)

// CreateBox inserts a box at the given canvas position with the kind's
// default size. Returns the generated box ID.
func (s *PGStore) CreateBox(ctx context.Context, dashboardID string, kind canvasql.BoxKind, x, y float64) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx,
		`INSERT INTO canvas_boxes (id, dashboard_id, kind, x, y) VALUES ($1, $2, $3, $4, $5)`,
		id, dashboardID, kind, x, y,
	)
	if err != nil {
		return "", fmt.Errorf("canvasql: insert box: %w", err)
	}
	return id, nil
}

const boxColumns = `id, dashboard_id, kind, x, y, w, h, title, content, results, run_at, edited_at`

// GetBox fetches a single box by its ID.
func (s *PGStore) GetBox(ctx context.Context, boxID string) (*canvasql.Box, error) {
	var b canvasql.Box
	err := s.db.QueryRow(ctx,
		`SELECT `+boxColumns+` FROM canvas_boxes WHERE id = $1`, boxID,
	).Scan(&b.ID, &b.DashboardID, &b.Kind, &b.X, &b.Y, &b.W, &b.H,
		&b.Title, &b.Content, &b.Results, &b.RunAt, &b.EditedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, canvasql.ErrBoxNotFound
		}
		return nil, fmt.Errorf("canvasql: get box: %w", err)
	}
	return &b, nil
}

// ListBoxes returns all boxes of a dashboard, ordered by created_at.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListBoxes(ctx context.Context, dashboardID string) ([]canvasql.Box, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+boxColumns+` FROM canvas_boxes WHERE dashboard_id = $1 ORDER BY created_at`,
		dashboardID)
	if err != nil {
		return nil, fmt.Errorf("canvasql: list boxes: %w", err)
	}
	defer rows.Close()

	boxes := []canvasql.Box{}
	for rows.Next() {
		var b canvasql.Box
		if err := rows.Scan(&b.ID, &b.DashboardID, &b.Kind, &b.X, &b.Y, &b.W, &b.H,
			&b.Title, &b.Content, &b.Results, &b.RunAt, &b.EditedAt); err != nil {
			return nil, fmt.Errorf("canvasql: scan box: %w", err)
		}
		boxes = append(boxes, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("canvasql: rows boxes: %w", err)
	}
	return boxes, nil
}

// UpdateBoxPosition moves (and optionally resizes) a box. Size fields are
// only written when provided.
func (s *PGStore) UpdateBoxPosition(ctx context.Context, boxID string, x, y float64, w, h *float64) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE canvas_boxes SET x = $2, y = $3, w = COALESCE($4, w), h = COALESCE($5, h)
		 WHERE id = $1`,
		boxID, x, y, w, h,
	)
	if err != nil {
		return fmt.Errorf("canvasql: update box position: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return canvasql.ErrBoxNotFound
	}
	return nil
}

// UpdateBoxContent applies a partial content update. Absent fields are left
// untouched, so concurrent collaborators merge at field granularity.
func (s *PGStore) UpdateBoxContent(ctx context.Context, boxID string, upd canvasql.BoxUpdate) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE canvas_boxes SET
		     content   = COALESCE($2, content),
		     results   = COALESCE($3, results),
		     title     = COALESCE($4, title),
		     run_at    = COALESCE($5, run_at),
		     edited_at = COALESCE($6, edited_at)
		 WHERE id = $1`,
		boxID, upd.Content, []byte(upd.Results), upd.Title, upd.RunAt, upd.EditedAt,
	)
	if err != nil {
		return fmt.Errorf("canvasql: update box content: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return canvasql.ErrBoxNotFound
	}
	return nil
}

// DeleteBox deletes a box by its ID. Connected edges are cascade-deleted by
// the DB. No error if the box doesn't exist.
func (s *PGStore) DeleteBox(ctx context.Context, boxID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM canvas_boxes WHERE id = $1`, boxID)
	if err != nil {
		return fmt.Errorf("canvasql: delete box: %w", err)
	}
	return nil
}
