package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jviitala/labelkit/internal/model"
)

func (c *Controller) initProjectRoutes() {
	c.Group.GET("/projects", c.ListProjects)
	c.Group.POST("/projects", c.CreateProject)
	c.Group.GET("/projects/current", c.GetCurrentProject)
	c.Group.POST("/projects/close", c.CloseProject)
	c.Group.POST("/projects/:id/open", c.OpenProject)
	c.Group.DELETE("/projects/:id", c.DeleteProject)

	// Aggregate stats for whichever project is active.
	c.Group.GET("/project", c.GetProjectInfo)
}

// ListProjects returns every project, most recently opened first.
func (c *Controller) ListProjects(ctx echo.Context) error {
	projects, err := c.Projects.List()
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, projects)
}

// CreateProject creates a new project from a JSON body {"name": ...}.
func (c *Controller) CreateProject(ctx echo.Context) error {
	var create model.ProjectCreate
	if err := ctx.Bind(&create); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}
	if err := create.Validate(); err != nil {
		return c.handleError(ctx, err)
	}

	p, err := c.Projects.Create(create.Name)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, p)
}

// GetCurrentProject returns the open project, or null when none is open.
func (c *Controller) GetCurrentProject(ctx echo.Context) error {
	projectID := c.CurrentProjectID()
	if projectID == "" {
		return ctx.JSON(http.StatusOK, nil)
	}

	p, err := c.Projects.Get(projectID)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, p)
}

// OpenProject activates a project: image and annotation routes operate on
// its data directory from here on.
func (c *Controller) OpenProject(ctx echo.Context) error {
	projectID := ctx.Param("id")

	p, err := c.Projects.Open(projectID)
	if err != nil {
		return c.handleError(ctx, err)
	}

	cur, err := c.openProjectStore(projectID)
	if err != nil {
		return c.handleError(ctx, err)
	}
	c.setCurrent(cur)

	c.log.Info("project opened", "id", projectID)
	return ctx.JSON(http.StatusOK, p)
}

// CloseProject drops back to the legacy data directory.
func (c *Controller) CloseProject(ctx echo.Context) error {
	fallback, err := c.buildCurrent("", c.Settings.Server.DataDir)
	if err != nil {
		return c.handleError(ctx, err)
	}
	c.setCurrent(fallback)
	return ctx.JSON(http.StatusOK, statusResponse{Success: true})
}

// DeleteProject removes a project and all of its data. Deleting the open
// project also closes it.
func (c *Controller) DeleteProject(ctx echo.Context) error {
	projectID := ctx.Param("id")

	existed, err := c.Projects.Delete(projectID)
	if err != nil {
		return c.handleError(ctx, err)
	}
	if !existed {
		return ctx.JSON(http.StatusNotFound, map[string]string{"detail": "Project not found"})
	}

	if c.CurrentProjectID() == projectID {
		fallback, err := c.buildCurrent("", c.Settings.Server.DataDir)
		if err != nil {
			return c.handleError(ctx, err)
		}
		c.setCurrent(fallback)
	}
	return ctx.JSON(http.StatusOK, statusResponse{Success: true})
}

// GetProjectInfo returns label and progress statistics for the active store.
func (c *Controller) GetProjectInfo(ctx echo.Context) error {
	s, _ := c.Current()
	info, err := s.Info()
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, info)
}
