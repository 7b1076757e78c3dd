package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/canvasql"
)

// CreateDashboard inserts a dashboard. If d.ID is empty, a UUID is
// auto-generated. Exactly one of the owner fields should be set.
func (s *PGStore) CreateDashboard(ctx context.Context, d *canvasql.Dashboard) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO dashboards (id, name, owner_user_id, owner_session_id, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)`,
		d.ID, d.Name, d.OwnerUserID, d.OwnerSessionID, d.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("canvasql: insert dashboard: %w", err)
	}
	return d.ID, nil
}

// GetDashboard fetches a dashboard by ID.
func (s *PGStore) GetDashboard(ctx context.Context, dashboardID string) (*canvasql.Dashboard, error) {
	var d canvasql.Dashboard
	err := s.db.QueryRow(ctx,
		`SELECT id, name, COALESCE(owner_user_id, ''), COALESCE(owner_session_id, ''), created_at
		 FROM dashboards WHERE id = $1`, dashboardID,
	).Scan(&d.ID, &d.Name, &d.OwnerUserID, &d.OwnerSessionID, &d.CreatedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, canvasql.ErrDashboardNotFound
		}
		return nil, fmt.Errorf("canvasql: get dashboard: %w", err)
	}
	return &d, nil
}

// DeleteDashboard removes a dashboard. Boxes, edges, and datasets are
// cascade-deleted by the DB. No error if the dashboard doesn't exist.
func (s *PGStore) DeleteDashboard(ctx context.Context, dashboardID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM dashboards WHERE id = $1`, dashboardID)
	if err != nil {
		return fmt.Errorf("canvasql: delete dashboard: %w", err)
	}
	return nil
}

// ClaimDashboard migrates a session-owned dashboard to a user. The migration
// is one-time: a dashboard that already has a user owner is not re-claimed.
func (s *PGStore) ClaimDashboard(ctx context.Context, dashboardID, userID string) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE dashboards SET owner_user_id = $2, owner_session_id = NULL
		 WHERE id = $1 AND owner_user_id IS NULL`,
		dashboardID, userID,
	)
	if err != nil {
		return fmt.Errorf("canvasql: claim dashboard: %w", err)
	}
	if ct.RowsAffected() == 0 {
		if _, err := s.GetDashboard(ctx, dashboardID); err != nil {
			return err
		}
		return canvasql.ErrAlreadyClaimed
	}
	return nil
}
