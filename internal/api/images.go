package api

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"
)

func (c *Controller) initImageRoutes() {
	c.Group.GET("/images", c.ListImages)
	c.Group.POST("/images", c.UploadImage)
	c.Group.GET("/images/done-status", c.GetAllDoneStatus)
	c.Group.GET("/images/:filename", c.GetImage)
	c.Group.DELETE("/images/:filename", c.DeleteImage)
	c.Group.GET("/images/:filename/done", c.GetImageDone)
	c.Group.PUT("/images/:filename/done", c.SetImageDone)
}

// ListImages returns the sorted filenames of the active store.
func (c *Controller) ListImages(ctx echo.Context) error {
	s, _ := c.Current()
	images, err := s.ListImages()
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, images)
}

// UploadImage accepts a multipart form with a "file" part and stores it
// after decode validation.
func (c *Controller) UploadImage(ctx echo.Context) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"detail": "file is required"})
	}
	if fileHeader.Filename == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"detail": "Filename is required"})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.handleError(ctx, err)
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return c.handleError(ctx, err)
	}

	s, _ := c.Current()
	info, err := s.UploadImage(fileHeader.Filename, content)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, info)
}

// GetImage streams the raw image file through the sandbox, so a crafted
// filename can never leave the active data directory.
func (c *Controller) GetImage(ctx echo.Context) error {
	filename := ctx.Param("filename")

	s, sandbox := c.Current()
	if _, ok := s.ImagePath(filename); !ok {
		return ctx.JSON(http.StatusNotFound, map[string]string{"detail": "Image not found"})
	}
	return sandbox.ServeFile(ctx, filepath.Join("images", filepath.Base(filename)))
}

// DeleteImage removes an image and its annotation document.
func (c *Controller) DeleteImage(ctx echo.Context) error {
	s, _ := c.Current()
	existed, err := s.DeleteImage(ctx.Param("filename"))
	if err != nil {
		return c.handleError(ctx, err)
	}
	if !existed {
		return ctx.JSON(http.StatusNotFound, map[string]string{"detail": "Image not found"})
	}
	return ctx.JSON(http.StatusOK, statusResponse{Success: true})
}

type doneRequest struct {
	Done bool `json:"done"`
}

type doneResponse struct {
	Filename string `json:"filename"`
	Done     bool   `json:"done"`
}

// GetImageDone reports whether an image is marked annotation-complete.
func (c *Controller) GetImageDone(ctx echo.Context) error {
	filename := ctx.Param("filename")

	s, _ := c.Current()
	done, err := s.ImageDoneStatus(filename)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, doneResponse{Filename: filename, Done: done})
}

// SetImageDone flips the done flag. Images without a metadata record
// cannot be marked; annotate first.
func (c *Controller) SetImageDone(ctx echo.Context) error {
	filename := ctx.Param("filename")

	var req doneRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}

	s, _ := c.Current()
	ok, err := s.MarkImageDone(filename, req.Done)
	if err != nil {
		return c.handleError(ctx, err)
	}
	if !ok {
		return ctx.JSON(http.StatusNotFound, map[string]string{"detail": "Image not found"})
	}
	return ctx.JSON(http.StatusOK, doneResponse{Filename: filename, Done: req.Done})
}

// GetAllDoneStatus maps every known image filename to its done flag.
func (c *Controller) GetAllDoneStatus(ctx echo.Context) error {
	s, _ := c.Current()
	status, err := s.AllDoneStatus()
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, status)
}
