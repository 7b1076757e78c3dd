package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/canvasql"
	"github.com/meikuraledutech/canvasql/controller"
	"github.com/meikuraledutech/canvasql/engine"
	"github.com/meikuraledutech/canvasql/memstore"
	"github.com/meikuraledutech/canvasql/postgres"
)

// passthroughObjects treats dataset storage keys as directly fetchable URLs.
// Production deployments swap in a presigning object store.
type passthroughObjects struct{}

func (passthroughObjects) GetUploadURL(ctx context.Context, key string) (string, error) {
	return key, nil
}

func (passthroughObjects) GetDownloadURL(ctx context.Context, key string) (string, error) {
	return key, nil
}

// controllers hands out one canvas controller per dashboard, all sharing the
// process's engine session.
type controllers struct {
	store   canvasql.Store
	session *engine.Session
	log     *slog.Logger

	mu   sync.Mutex
	byID map[string]*controller.Controller
}

func (cs *controllers) get(dashboardID string) *controller.Controller {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if c, ok := cs.byID[dashboardID]; ok {
		return c
	}
	c := controller.New(dashboardID, cs.store, cs.session,
		controller.WithObjectStore(passthroughObjects{}),
		controller.WithLogger(cs.log))
	cs.byID[dashboardID] = c
	return c
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		return
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	var store canvasql.Store
	var pg *postgres.PGStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Error("connect", "error", err)
			return
		}
		defer pool.Close()
		pg = postgres.New(pool)
		store = pg
	} else {
		log.Warn("CANVASQL_DATABASE_URL not set, using in-memory store")
		store = memstore.New()
	}

	session := engine.NewSession(engine.WithLogger(log))
	ctrls := &controllers{
		store:   store,
		session: session,
		log:     log,
		byID:    map[string]*controller.Controller{},
	}

	app := fiber.New()

	// ── Schema (postgres only) ────────────────────────────────────────
	app.Post("/schema", func(c fiber.Ctx) error {
		if pg == nil {
			return c.Status(400).JSON(fiber.Map{"error": "no database configured"})
		}
		if err := pg.CreateSchema(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "schema created"})
	})

	app.Delete("/schema", func(c fiber.Ctx) error {
		if pg == nil {
			return c.Status(400).JSON(fiber.Map{"error": "no database configured"})
		}
		if err := pg.DropSchema(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "schema dropped"})
	})

	// ── Dashboards ────────────────────────────────────────────────────
	app.Post("/dashboards", func(c fiber.Ctx) error {
		var d canvasql.Dashboard
		if err := c.Bind().JSON(&d); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		id, err := store.CreateDashboard(c.Context(), &d)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"id": id})
	})

	app.Get("/dashboards/:id", func(c fiber.Ctx) error {
		d, err := store.GetDashboard(c.Context(), c.Params("id"))
		if errors.Is(err, canvasql.ErrDashboardNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "dashboard not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(d)
	})

	app.Delete("/dashboards/:id", func(c fiber.Ctx) error {
		if err := store.DeleteDashboard(c.Context(), c.Params("id")); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	app.Post("/dashboards/:id/claim", func(c fiber.Ctx) error {
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := c.Bind().JSON(&body); err != nil || body.UserID == "" {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		err := store.ClaimDashboard(c.Context(), c.Params("id"), body.UserID)
		if errors.Is(err, canvasql.ErrDashboardNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "dashboard not found"})
		}
		if errors.Is(err, canvasql.ErrAlreadyClaimed) {
			return c.Status(409).JSON(fiber.Map{"error": "dashboard already owned by a user"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	// ── Boxes ─────────────────────────────────────────────────────────
	app.Post("/dashboards/:id/boxes", func(c fiber.Ctx) error {
		var body struct {
			Kind canvasql.BoxKind `json:"kind"`
			X    float64          `json:"x"`
			Y    float64          `json:"y"`
		}
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		id, err := store.CreateBox(c.Context(), c.Params("id"), body.Kind, body.X, body.Y)
		if errors.Is(err, canvasql.ErrDashboardNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "dashboard not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"id": id})
	})

	app.Get("/dashboards/:id/boxes", func(c fiber.Ctx) error {
		boxes, err := store.ListBoxes(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(boxes)
	})

	app.Get("/boxes/:id", func(c fiber.Ctx) error {
		b, err := store.GetBox(c.Context(), c.Params("id"))
		if errors.Is(err, canvasql.ErrBoxNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "box not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(b)
	})

	app.Patch("/boxes/:id/position", func(c fiber.Ctx) error {
		var body struct {
			X float64  `json:"x"`
			Y float64  `json:"y"`
			W *float64 `json:"w"`
			H *float64 `json:"h"`
		}
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		err := store.UpdateBoxPosition(c.Context(), c.Params("id"), body.X, body.Y, body.W, body.H)
		if errors.Is(err, canvasql.ErrBoxNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "box not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	app.Patch("/boxes/:id/content", func(c fiber.Ctx) error {
		var upd canvasql.BoxUpdate
		if err := c.Bind().JSON(&upd); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		err := store.UpdateBoxContent(c.Context(), c.Params("id"), upd)
		if errors.Is(err, canvasql.ErrBoxNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "box not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	app.Delete("/boxes/:id", func(c fiber.Ctx) error {
		if err := store.DeleteBox(c.Context(), c.Params("id")); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	// ── Execution ─────────────────────────────────────────────────────
	app.Post("/boxes/:id/execute", func(c fiber.Ctx) error {
		boxID := c.Params("id")
		b, err := store.GetBox(c.Context(), boxID)
		if errors.Is(err, canvasql.ErrBoxNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "box not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		ctrl := ctrls.get(b.DashboardID)
		if err := ctrl.Refresh(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if err := ctrl.Dispatch(c.Context(), controller.ExecuteBox{BoxID: boxID}); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		b, err = store.GetBox(c.Context(), boxID)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		c.Set("Content-Type", "application/json")
		return c.Send(b.Results)
	})

	// ── Edges ─────────────────────────────────────────────────────────
	app.Post("/dashboards/:id/edges", func(c fiber.Ctx) error {
		var body struct {
			Source string `json:"source_box_id"`
			Target string `json:"target_box_id"`
		}
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		id, err := store.CreateEdge(c.Context(), c.Params("id"), body.Source, body.Target)
		if errors.Is(err, canvasql.ErrSelfLoop) {
			return c.Status(422).JSON(fiber.Map{"error": "self-connection"})
		}
		if errors.Is(err, canvasql.ErrCycleDetected) {
			return c.Status(422).JSON(fiber.Map{"error": "would create a cycle"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"id": id})
	})

	app.Get("/dashboards/:id/edges", func(c fiber.Ctx) error {
		edges, err := store.ListEdges(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(edges)
	})

	app.Delete("/dashboards/:id/edges", func(c fiber.Ctx) error {
		var body struct {
			Source string `json:"source_box_id"`
			Target string `json:"target_box_id"`
		}
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		err := store.DeleteEdge(c.Context(), body.Source, body.Target)
		if errors.Is(err, canvasql.ErrEdgeNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "edge not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	// ── Datasets ──────────────────────────────────────────────────────
	app.Post("/dashboards/:id/datasets", func(c fiber.Ctx) error {
		var ds canvasql.Dataset
		if err := c.Bind().JSON(&ds); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		ds.DashboardID = c.Params("id")
		id, err := store.CreateDataset(c.Context(), &ds)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"id": id})
	})

	app.Get("/dashboards/:id/datasets", func(c fiber.Ctx) error {
		datasets, err := store.ListDatasets(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(datasets)
	})

	app.Delete("/datasets/:id", func(c fiber.Ctx) error {
		err := store.DeleteDataset(c.Context(), c.Params("id"))
		if errors.Is(err, canvasql.ErrDatasetNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "dataset not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	// ── Conversion ────────────────────────────────────────────────────
	app.Post("/datasets/convert", func(c fiber.Ctx) error {
		buf, err := session.ConvertToColumnarBuffer(c.Context(), c.Body())
		if err != nil {
			return c.Status(422).JSON(fiber.Map{"error": err.Error()})
		}
		c.Set("Content-Type", "application/octet-stream")
		return c.Send(buf)
	})

	log.Info("listening", "addr", cfg.Addr)
	if err := app.Listen(cfg.Addr); err != nil {
		log.Error("listen", "error", err)
	}
}
