// Package api exposes the annotation tool over HTTP. One controller owns
// the route group, the project registry and the currently open project;
// all state mutations go through the store packages.
package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jviitala/labelkit/internal/conf"
	"github.com/jviitala/labelkit/internal/errors"
	"github.com/jviitala/labelkit/internal/logging"
	"github.com/jviitala/labelkit/internal/project"
	"github.com/jviitala/labelkit/internal/securefs"
	"github.com/jviitala/labelkit/internal/store"
)

// current bundles everything derived from the open project's data
// directory so a project switch swaps them atomically.
type current struct {
	projectID string
	store     *store.Store
	sandbox   *securefs.SecureFS
}

// Controller hosts all HTTP handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Projects *project.Store
	Settings *conf.Settings

	log *slog.Logger

	mu  sync.Mutex
	cur *current
}

// New wires a controller under /api on the given echo instance. The
// legacy data directory from the settings backs all image and annotation
// routes until a project is opened.
func New(e *echo.Echo, projects *project.Store, settings *conf.Settings) (*Controller, error) {
	c := &Controller{
		Echo:     e,
		Group:    e.Group("/api"),
		Projects: projects,
		Settings: settings,
		log:      logging.ForService("api"),
	}

	fallback, err := c.buildCurrent("", settings.Server.DataDir)
	if err != nil {
		return nil, err
	}
	c.cur = fallback

	c.Group.Use(middleware.Recover())
	c.initProjectRoutes()
	c.initImageRoutes()
	c.initAnnotationRoutes()
	c.initExportRoutes()
	return c, nil
}

func (c *Controller) buildCurrent(projectID, dataDir string) (*current, error) {
	s, err := store.New(dataDir)
	if err != nil {
		return nil, err
	}
	sandbox, err := securefs.New(dataDir)
	if err != nil {
		return nil, err
	}
	return &current{projectID: projectID, store: s, sandbox: sandbox}, nil
}

// Current returns the active store and sandbox.
func (c *Controller) Current() (*store.Store, *securefs.SecureFS) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur.store, c.cur.sandbox
}

// CurrentProjectID returns the open project id, empty when none is open.
func (c *Controller) CurrentProjectID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur.projectID
}

// setCurrent swaps the active project, closing the previous sandbox.
func (c *Controller) setCurrent(next *current) {
	c.mu.Lock()
	prev := c.cur
	c.cur = next
	c.mu.Unlock()

	if prev != nil && prev.sandbox != nil {
		if err := prev.sandbox.Close(); err != nil {
			c.log.Warn("failed to close previous sandbox", "error", err)
		}
	}
}

// openProjectStore resolves a project's data directory and builds the
// store/sandbox pair for it. The directory is validated to sit inside the
// projects root before anything touches it.
func (c *Controller) openProjectStore(projectID string) (*current, error) {
	dataDir, err := c.Projects.DataDir(projectID)
	if err != nil {
		return nil, err
	}
	if err := securefs.IsPathValidWithinBase(c.Projects.BaseDir(), dataDir); err != nil {
		return nil, err
	}
	return c.buildCurrent(projectID, dataDir)
}

// statusResponse is the {"success": true} shape used by delete-style routes.
type statusResponse struct {
	Success bool `json:"success"`
}

// handleError translates store errors into HTTP responses. Sentinels map
// to 404, validation and decode failures to 400, everything else to 500.
func (c *Controller) handleError(ctx echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrImageNotFound),
		errors.Is(err, errors.ErrAnnotationNotFound),
		errors.Is(err, errors.ErrProjectNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrInvalidImage),
		errors.HasCategory(err, errors.CategoryValidation),
		errors.HasCategory(err, errors.CategoryImageDecode):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		c.log.Error("request failed",
			"method", ctx.Request().Method, "path", ctx.Path(), "error", err)
	}
	return ctx.JSON(status, map[string]string{"detail": err.Error()})
}
