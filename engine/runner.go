package engine

import (
	"context"

	"github.com/meikuraledutech/canvasql"
)

// RunPass performs one full execution pass for a query: register the
// dashboard's remote datasets, then the named results of upstream boxes,
// then execute the query against the populated catalog. Load failures are
// isolated per table; only the query itself is allowed to fail the pass.
func (s *Session) RunPass(ctx context.Context, query string, datasets []RemoteTable, named []NamedResult) (*canvasql.Result, error) {
	// Bootstrap up front so a failed engine fails the pass before any work.
	if _, err := s.Acquire(ctx); err != nil {
		return nil, err
	}

	s.LoadRemoteTables(ctx, datasets)
	s.LoadNamedResults(ctx, named)

	return s.Execute(ctx, query)
}

// NamedResultsOf collects the materializable results of a dashboard's boxes:
// only boxes with both a user-assigned title and a stored result are
// addressable by name. The box whose query is about to run is excluded so a
// query never reads its own stale output.
func NamedResultsOf(boxes []canvasql.Box, excludeBoxID string) []NamedResult {
	named := []NamedResult{}
	for _, b := range boxes {
		if b.ID == excludeBoxID || !b.Addressable() {
			continue
		}
		named = append(named, NamedResult{Name: b.Title, Payload: b.Results})
	}
	return named
}
