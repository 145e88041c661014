package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jviitala/labelkit/internal/errors"
)

var csvHeader = []string{
	"filename", "label", "x_min", "y_min", "x_max", "y_max", "image_width", "image_height",
}

// ExportCSV writes one row per annotation across all images to outputPath,
// regardless of done status. Corner coordinates are clamped integers. Rows
// follow store listing order for images and annotation list order within
// each image; there is no global sort.
func (e *Exporter) ExportCSV(outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", outputPath).
			Build()
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", outputPath).
			Build()
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryExport).
			Build()
	}

	images, err := e.source.ListImages()
	if err != nil {
		return err
	}

	rows := 0
	for _, filename := range images {
		meta, err := e.source.Metadata(filename)
		if err != nil {
			e.log.Warn("skipping image with unreadable metadata", "filename", filename, "error", err)
			continue
		}

		for i := range meta.Annotations {
			ann := &meta.Annotations[i]
			xMin, yMin, xMax, yMax := clampedPixelBox(ann.BBox, meta.Image.Width, meta.Image.Height)
			record := []string{
				filename,
				ann.Label,
				strconv.Itoa(xMin),
				strconv.Itoa(yMin),
				strconv.Itoa(xMax),
				strconv.Itoa(yMax),
				strconv.Itoa(meta.Image.Width),
				strconv.Itoa(meta.Image.Height),
			}
			if err := w.Write(record); err != nil {
				return errors.New(err).
					Component("export").
					Category(errors.CategoryExport).
					Context("filename", filename).
					Build()
			}
			rows++
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryExport).
			Build()
	}

	e.log.Info("csv export complete", "rows", rows)
	return out.Close()
}
