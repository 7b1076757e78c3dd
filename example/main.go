package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/meikuraledutech/canvasql"
	"github.com/meikuraledutech/canvasql/chart"
	"github.com/meikuraledutech/canvasql/controller"
	"github.com/meikuraledutech/canvasql/engine"
	"github.com/meikuraledutech/canvasql/memstore"
)

func main() {
	ctx := context.Background()

	// In-memory store and a fresh engine session; the postgres package
	// provides the same Store contract against a real database.
	store := memstore.New()
	session := engine.NewSession()

	dashID, err := store.CreateDashboard(ctx, &canvasql.Dashboard{
		Name:           "sales walkthrough",
		OwnerSessionID: "guest-session",
	})
	if err != nil {
		log.Fatalf("create dashboard: %v", err)
	}

	ctrl := controller.New(dashID, store, session)
	if err := ctrl.Refresh(ctx); err != nil {
		log.Fatalf("refresh: %v", err)
	}

	// ── Place a query box and run it ──────────────────────────────────
	if err := ctrl.Dispatch(ctx, controller.CreateBox{Kind: canvasql.KindQuery, X: 100, Y: 100}); err != nil {
		log.Fatalf("create box: %v", err)
	}
	boxes, _ := store.ListBoxes(ctx, dashID)
	queryID := boxes[0].ID

	must(ctrl.Dispatch(ctx, controller.SetTitle{BoxID: queryID, Title: "sales"}))
	must(ctrl.Dispatch(ctx, controller.SetContent{
		BoxID: queryID,
		Content: `SELECT 'east' AS region, 10 AS amt
		          UNION ALL SELECT 'west', 20`,
	}))
	must(ctrl.Dispatch(ctx, controller.ExecuteBox{BoxID: queryID}))

	res, err := ctrl.DisplayData(queryID)
	if err != nil {
		log.Fatalf("display: %v", err)
	}
	fmt.Println("query results:")
	printJSON(res)

	// ── Chain a second query off the named result ─────────────────────
	must(ctrl.Dispatch(ctx, controller.CreateBox{Kind: canvasql.KindQuery, X: 500, Y: 100}))
	boxes, _ = store.ListBoxes(ctx, dashID)
	var downstreamID string
	for _, b := range boxes {
		if b.ID != queryID {
			downstreamID = b.ID
		}
	}

	must(ctrl.Dispatch(ctx, controller.ConnectBoxes{SourceID: queryID, TargetID: downstreamID}))
	must(ctrl.Dispatch(ctx, controller.SetContent{
		BoxID:   downstreamID,
		Content: `SELECT SUM(amt) AS total FROM sales`,
	}))
	must(ctrl.Dispatch(ctx, controller.ExecuteBox{BoxID: downstreamID}))

	res, err = ctrl.DisplayData(downstreamID)
	if err != nil {
		log.Fatalf("display: %v", err)
	}
	fmt.Println("\nchained query results:")
	printJSON(res)

	// ── Reversed connection would close a cycle ───────────────────────
	err = ctrl.Dispatch(ctx, controller.ConnectBoxes{SourceID: downstreamID, TargetID: queryID})
	fmt.Printf("\nreversed connection rejected: %v\n", err)

	// ── Infer a chart for the first result ────────────────────────────
	res, _ = ctrl.DisplayData(queryID)
	cfg := chart.InferConfig(res)
	fmt.Println("\ninferred chart config:")
	printJSON(cfg)
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
