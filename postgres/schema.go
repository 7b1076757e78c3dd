package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS dashboards (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL DEFAULT '',
    owner_user_id    TEXT,
    owner_session_id TEXT,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS canvas_boxes (
    id           TEXT PRIMARY KEY,
    dashboard_id TEXT NOT NULL REFERENCES dashboards(id) ON DELETE CASCADE,
    kind         TEXT NOT NULL,
    x            DOUBLE PRECISION NOT NULL DEFAULT 0,
    y            DOUBLE PRECISION NOT NULL DEFAULT 0,
    w            DOUBLE PRECISION NOT NULL DEFAULT 360,
    h            DOUBLE PRECISION NOT NULL DEFAULT 240,
    title        TEXT NOT NULL DEFAULT '',
    content      TEXT NOT NULL DEFAULT '',
    results      JSONB,
    run_at       TIMESTAMPTZ,
    edited_at    TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS canvas_edges (
    id            TEXT PRIMARY KEY,
    dashboard_id  TEXT NOT NULL REFERENCES dashboards(id) ON DELETE CASCADE,
    source_box_id TEXT NOT NULL REFERENCES canvas_boxes(id) ON DELETE CASCADE,
    target_box_id TEXT NOT NULL REFERENCES canvas_boxes(id) ON DELETE CASCADE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (dashboard_id, source_box_id, target_box_id)
);

CREATE TABLE IF NOT EXISTS datasets (
    id           TEXT PRIMARY KEY,
    dashboard_id TEXT NOT NULL REFERENCES dashboards(id) ON DELETE CASCADE,
    name         TEXT NOT NULL,
    storage_key  TEXT NOT NULL,
    size         BIGINT NOT NULL DEFAULT 0,
    schema       JSONB,
    visibility   TEXT NOT NULL DEFAULT 'private',
    expires_at   TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_canvas_boxes_dashboard ON canvas_boxes(dashboard_id);
CREATE INDEX IF NOT EXISTS idx_canvas_edges_dashboard ON canvas_edges(dashboard_id);
CREATE INDEX IF NOT EXISTS idx_canvas_edges_target    ON canvas_edges(target_box_id);
CREATE INDEX IF NOT EXISTS idx_datasets_dashboard     ON datasets(dashboard_id);
`

// CreateSchema creates the canvas tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops all canvas tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx,
		`DROP TABLE IF EXISTS canvas_edges, datasets, canvas_boxes, dashboards CASCADE;`)
	return err
}
