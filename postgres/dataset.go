package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/meikuraledutech/canvasql"
)

// CreateDataset registers a dataset on a dashboard. If ds.ID is empty, a
// UUID is auto-generated.
func (s *PGStore) CreateDataset(ctx context.Context, ds *canvasql.Dataset) (string, error) {
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	if ds.Visibility == "" {
		ds.Visibility = canvasql.VisibilityPrivate
	}

	var schema []byte
	if len(ds.Schema) > 0 {
		var err error
		schema, err = json.Marshal(ds.Schema)
		if err != nil {
			return "", fmt.Errorf("canvasql: marshal dataset schema: %w", err)
		}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO datasets (id, dashboard_id, name, storage_key, size, schema, visibility, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ds.ID, ds.DashboardID, ds.Name, ds.StorageKey, ds.Size, schema, ds.Visibility, ds.ExpiresAt,
	)
	if err != nil {
		return "", fmt.Errorf("canvasql: insert dataset: %w", err)
	}
	return ds.ID, nil
}

// ListDatasets returns a dashboard's datasets, ordered by created_at.
// Expired entries (past their expiry) are excluded. Returns an empty slice
// (not nil) if none found.
func (s *PGStore) ListDatasets(ctx context.Context, dashboardID string) ([]canvasql.Dataset, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, dashboard_id, name, storage_key, size, schema, visibility, expires_at
		 FROM datasets
		 WHERE dashboard_id = $1 AND (expires_at IS NULL OR expires_at > NOW())
		 ORDER BY created_at`, dashboardID)
	if err != nil {
		return nil, fmt.Errorf("canvasql: list datasets: %w", err)
	}
	defer rows.Close()

	datasets := []canvasql.Dataset{}
	for rows.Next() {
		var ds canvasql.Dataset
		var schema []byte
		if err := rows.Scan(&ds.ID, &ds.DashboardID, &ds.Name, &ds.StorageKey,
			&ds.Size, &schema, &ds.Visibility, &ds.ExpiresAt); err != nil {
			return nil, fmt.Errorf("canvasql: scan dataset: %w", err)
		}
		if len(schema) > 0 {
			if err := json.Unmarshal(schema, &ds.Schema); err != nil {
				return nil, fmt.Errorf("canvasql: unmarshal dataset schema: %w", err)
			}
		}
		datasets = append(datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("canvasql: rows datasets: %w", err)
	}
	return datasets, nil
}

// DeleteDataset deletes a dataset by its ID. No error if it doesn't exist.
func (s *PGStore) DeleteDataset(ctx context.Context, datasetID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM datasets WHERE id = $1`, datasetID)
	if err != nil {
		return fmt.Errorf("canvasql: delete dataset: %w", err)
	}
	return nil
}
