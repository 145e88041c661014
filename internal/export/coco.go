package export

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jviitala/labelkit/internal/errors"
)

// cocoSupercategory is the fixed supercategory assigned to every category.
const cocoSupercategory = "object"

type cocoImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type cocoAnnotation struct {
	ID         int        `json:"id"`
	ImageID    int        `json:"image_id"`
	CategoryID int        `json:"category_id"`
	BBox       [4]float64 `json:"bbox"`
	Area       float64    `json:"area"`
	IsCrowd    int        `json:"iscrowd"`
}

type cocoCategory struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

type cocoDocument struct {
	Images      []cocoImage      `json:"images"`
	Annotations []cocoAnnotation `json:"annotations"`
	Categories  []cocoCategory   `json:"categories"`
}

// ExportCOCO writes a single COCO JSON document to outputPath. All images
// participate regardless of done status. Image ids are sequential from 0 in
// store listing order; annotation ids are sequential from 1 and globally
// unique across the document. Pixel geometry is reported unclamped.
func (e *Exporter) ExportCOCO(outputPath string) error {
	labels, err := e.Labels()
	if err != nil {
		return err
	}
	mapping := labelIndex(labels)

	doc := cocoDocument{
		Images:      []cocoImage{},
		Annotations: []cocoAnnotation{},
		Categories:  []cocoCategory{},
	}
	for i, label := range labels {
		doc.Categories = append(doc.Categories, cocoCategory{
			ID:            i,
			Name:          label,
			Supercategory: cocoSupercategory,
		})
	}

	images, err := e.source.ListImages()
	if err != nil {
		return err
	}

	annotationID := 1
	imageID := 0
	for _, filename := range images {
		meta, err := e.source.Metadata(filename)
		if err != nil {
			e.log.Warn("skipping image with unreadable metadata", "filename", filename, "error", err)
			continue
		}

		doc.Images = append(doc.Images, cocoImage{
			ID:       imageID,
			FileName: filename,
			Width:    meta.Image.Width,
			Height:   meta.Image.Height,
		})

		for i := range meta.Annotations {
			ann := &meta.Annotations[i]
			widthPx := ann.BBox.Width * float64(meta.Image.Width)
			heightPx := ann.BBox.Height * float64(meta.Image.Height)
			xMin, yMin, _, _ := pixelBox(ann.BBox, meta.Image.Width, meta.Image.Height)

			doc.Annotations = append(doc.Annotations, cocoAnnotation{
				ID:         annotationID,
				ImageID:    imageID,
				CategoryID: classID(mapping, ann),
				BBox:       [4]float64{xMin, yMin, widthPx, heightPx},
				Area:       widthPx * heightPx,
				IsCrowd:    0,
			})
			annotationID++
		}
		imageID++
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", outputPath).
			Build()
	}
	data, err := json.MarshalIndent(doc, "", "  ")
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

	e.log.Info("coco export complete", "images", len(doc.Images), "annotations", len(doc.Annotations))
	return nil
}
