package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jviitala/labelkit/internal/model"
)

func (c *Controller) initAnnotationRoutes() {
	c.Group.GET("/images/:filename/annotations", c.GetAnnotations)
	c.Group.POST("/images/:filename/annotations", c.AddAnnotation)
	c.Group.DELETE("/images/:filename/annotations", c.ClearAnnotations)
	c.Group.PUT("/images/:filename/annotations/:id", c.UpdateAnnotation)
	c.Group.DELETE("/images/:filename/annotations/:id", c.DeleteAnnotation)
	c.Group.POST("/images/:filename/annotations/copy-from/:source", c.CopyAnnotations)
}

// GetAnnotations returns all annotations for an image, empty when the
// image has never been annotated.
func (c *Controller) GetAnnotations(ctx echo.Context) error {
	s, _ := c.Current()
	annotations, err := s.Annotations(ctx.Param("filename"))
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, annotations)
}

// AddAnnotation validates and appends one annotation, returning it with
// its assigned id.
func (c *Controller) AddAnnotation(ctx echo.Context) error {
	var create model.AnnotationCreate
	if err := ctx.Bind(&create); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}
	if err := create.Validate(); err != nil {
		return c.handleError(ctx, err)
	}

	s, _ := c.Current()
	ann, err := s.AddAnnotation(ctx.Param("filename"), create)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, ann)
}

// UpdateAnnotation patches the provided fields of one annotation.
func (c *Controller) UpdateAnnotation(ctx echo.Context) error {
	var update model.AnnotationUpdate
	if err := ctx.Bind(&update); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}
	if err := update.Validate(); err != nil {
		return c.handleError(ctx, err)
	}

	s, _ := c.Current()
	ann, err := s.UpdateAnnotation(ctx.Param("filename"), ctx.Param("id"), update)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, ann)
}

// DeleteAnnotation removes one annotation by id.
func (c *Controller) DeleteAnnotation(ctx echo.Context) error {
	s, _ := c.Current()
	existed, err := s.DeleteAnnotation(ctx.Param("filename"), ctx.Param("id"))
	if err != nil {
		return c.handleError(ctx, err)
	}
	if !existed {
		return ctx.JSON(http.StatusNotFound, map[string]string{"detail": "Annotation not found"})
	}
	return ctx.JSON(http.StatusOK, statusResponse{Success: true})
}

// ClearAnnotations removes every annotation of an image and reports how
// many were removed.
func (c *Controller) ClearAnnotations(ctx echo.Context) error {
	s, _ := c.Current()
	count, err := s.ClearAnnotations(ctx.Param("filename"))
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]int{"deleted": count})
}

// CopyAnnotations duplicates annotations from the source image onto the
// target under fresh ids. Zero copies is not an error.
func (c *Controller) CopyAnnotations(ctx echo.Context) error {
	s, _ := c.Current()
	count, err := s.CopyAnnotations(ctx.Param("source"), ctx.Param("filename"))
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]int{"copied": count})
}
