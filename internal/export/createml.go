package export

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/jviitala/labelkit/internal/errors"
)

type createMLCoordinates struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type createMLAnnotation struct {
	Label       string              `json:"label"`
	Coordinates createMLCoordinates `json:"coordinates"`
}

type createMLEntry struct {
	Image       string               `json:"image"`
	Annotations []createMLAnnotation `json:"annotations"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ExportCreateML writes an Apple CreateML object-detection JSON array to
// outputPath, one entry per image regardless of done status. Coordinates are
// the box CENTER in absolute pixels with absolute pixel size, rounded to two
// decimal places. Labels are emitted verbatim with no integer mapping.
func (e *Exporter) ExportCreateML(outputPath string) error {
	images, err := e.source.ListImages()
	if err != nil {
		return err
	}

	entries := []createMLEntry{}
	for _, filename := range images {
		meta, err := e.source.Metadata(filename)
		if err != nil {
			e.log.Warn("skipping image with unreadable metadata", "filename", filename, "error", err)
			continue
		}

		entry := createMLEntry{Image: filename, Annotations: []createMLAnnotation{}}
		for i := range meta.Annotations {
			ann := &meta.Annotations[i]
			entry.Annotations = append(entry.Annotations, createMLAnnotation{
				Label: ann.Label,
				Coordinates: createMLCoordinates{
					X:      round2(ann.BBox.X * float64(meta.Image.Width)),
					Y:      round2(ann.BBox.Y * float64(meta.Image.Height)),
					Width:  round2(ann.BBox.Width * float64(meta.Image.Width)),
					Height: round2(ann.BBox.Height * float64(meta.Image.Height)),
				},
			})
		}
		entries = append(entries, entry)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", outputPath).
			Build()
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryExport).
			Build()
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", outputPath).
			Build()
	}

	e.log.Info("createml export complete", "images", len(entries))
	return nil
}
