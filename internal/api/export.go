package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/jviitala/labelkit/internal/export"
)

func (c *Controller) initExportRoutes() {
	c.Group.POST("/export/yolo", c.ExportYOLO)
	c.Group.POST("/export/coco", c.ExportCOCO)
	c.Group.POST("/export/pascal-voc", c.ExportPascalVOC)
	c.Group.POST("/export/createml", c.ExportCreateML)
	c.Group.POST("/export/csv", c.ExportCSV)
}

func (c *Controller) exporter() (*export.Exporter, string) {
	s, _ := c.Current()
	return export.New(s), s.DataDir()
}

// yoloOptions builds export options from the configured defaults plus the
// optional train_split query parameter, which must lie in [0.1, 0.99].
func (c *Controller) yoloOptions(ctx echo.Context) (export.YOLOOptions, error) {
	opts := export.YOLOOptions{
		TrainSplit: c.Settings.Export.TrainSplit,
		ValSplit:   c.Settings.Export.ValSplit,
		Shuffle:    c.Settings.Export.Shuffle,
		Seed:       c.Settings.Export.Seed,
	}

	if raw := ctx.QueryParam("train_split"); raw != "" {
		split, err := strconv.ParseFloat(raw, 64)
		if err != nil || split < 0.1 || split > 0.99 {
			return opts, echo.NewHTTPError(http.StatusBadRequest,
				"train_split must be a number between 0.1 and 0.99")
		}
		opts.TrainSplit = split
		opts.ValSplit = 1 - split
	}
	return opts, nil
}

// ExportYOLO streams a zipped YOLO dataset of all done images.
func (c *Controller) ExportYOLO(ctx echo.Context) error {
	opts, err := c.yoloOptions(ctx)
	if err != nil {
		return err
	}

	tempDir, err := os.MkdirTemp("", "yolo_download_*")
	if err != nil {
		return c.handleError(ctx, err)
	}
	defer os.RemoveAll(tempDir)

	e, _ := c.exporter()
	zipPath := filepath.Join(tempDir, "yolo_dataset.zip")
	if err := e.ExportYOLOArchive(zipPath, opts); err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.Attachment(zipPath, "yolo_dataset.zip")
}

// ExportCOCO writes the COCO document into the data directory and serves it.
func (c *Controller) ExportCOCO(ctx echo.Context) error {
	e, dataDir := c.exporter()
	outputPath := filepath.Join(dataDir, "coco_annotations.json")
	if err := e.ExportCOCO(outputPath); err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.Attachment(outputPath, "coco_annotations.json")
}

// ExportPascalVOC streams a zipped Pascal VOC dataset of all images.
func (c *Controller) ExportPascalVOC(ctx echo.Context) error {
	tempDir, err := os.MkdirTemp("", "voc_download_*")
	if err != nil {
		return c.handleError(ctx, err)
	}
	defer os.RemoveAll(tempDir)

	e, _ := c.exporter()
	zipPath := filepath.Join(tempDir, "pascal_voc_dataset.zip")
	if err := e.ExportPascalVOCArchive(zipPath); err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.Attachment(zipPath, "pascal_voc_dataset.zip")
}

// ExportCreateML writes the CreateML document into the data directory and
// serves it.
func (c *Controller) ExportCreateML(ctx echo.Context) error {
	e, dataDir := c.exporter()
	outputPath := filepath.Join(dataDir, "createml_annotations.json")
	if err := e.ExportCreateML(outputPath); err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.Attachment(outputPath, "createml_annotations.json")
}

// ExportCSV writes the CSV into the data directory and serves it.
func (c *Controller) ExportCSV(ctx echo.Context) error {
	e, dataDir := c.exporter()
	outputPath := filepath.Join(dataDir, "annotations.csv")
	if err := e.ExportCSV(outputPath); err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.Attachment(outputPath, "annotations.csv")
}
