// Package model defines the annotation data model shared by the stores and
// the export engine.
package model

import (
	"github.com/jviitala/labelkit/internal/errors"
)

// BoundingBox is a box in coordinates normalized to image dimensions.
// X and Y locate the box CENTER, not the top-left corner. Each field must lie
// in [0,1] on its own; a box may still extend past the image edge
// (x - width/2 < 0 and similar), which is resolved by clamping at export time.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate checks each coordinate individually against [0,1].
func (b *BoundingBox) Validate() error {
	fields := map[string]float64{
		"x":      b.X,
		"y":      b.Y,
		"width":  b.Width,
		"height": b.Height,
	}
	for name, v := range fields {
		if v < 0 || v > 1 {
			return errors.Newf("bounding box %s=%v outside [0,1]", name, v).
				Component("model").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	return nil
}

// Annotation is a single labeled bounding box on an image.
// ClassID is user-supplied and may diverge from the alphabetical label
// ordering used at export time; exports recompute the authoritative id.
type Annotation struct {
	ID      string      `json:"id"`
	Label   string      `json:"label"`
	ClassID int         `json:"class_id"`
	BBox    BoundingBox `json:"bbox"`
}

// AnnotationCreate is the request payload for creating an annotation.
type AnnotationCreate struct {
	Label   string      `json:"label"`
	ClassID int         `json:"class_id"`
	BBox    BoundingBox `json:"bbox"`
}

// Validate checks the creation request.
func (c *AnnotationCreate) Validate() error {
	if c.Label == "" {
		return errors.Newf("annotation label must not be empty").
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	if c.ClassID < 0 {
		return errors.Newf("annotation class_id %d must not be negative", c.ClassID).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	return c.BBox.Validate()
}

// AnnotationUpdate is a partial update; nil fields are left unchanged.
type AnnotationUpdate struct {
	Label   *string      `json:"label,omitempty"`
	ClassID *int         `json:"class_id,omitempty"`
	BBox    *BoundingBox `json:"bbox,omitempty"`
}

// Validate checks only the fields present in the patch.
func (u *AnnotationUpdate) Validate() error {
	if u.Label != nil && *u.Label == "" {
		return errors.Newf("annotation label must not be empty").
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	if u.ClassID != nil && *u.ClassID < 0 {
		return errors.Newf("annotation class_id %d must not be negative", *u.ClassID).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	if u.BBox != nil {
		return u.BBox.Validate()
	}
	return nil
}

// ImageInfo holds an image's filename and pixel dimensions. Dimensions are
// read from the encoded header at upload time and never recomputed.
type ImageInfo struct {
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// ImageMetadata is the full per-image record persisted as one JSON document
// under annotations/{stem}.json.
type ImageMetadata struct {
	Image       ImageInfo    `json:"image"`
	Annotations []Annotation `json:"annotations"`
	Done        bool         `json:"done"`
}

// ProjectInfo aggregates store-wide statistics from a single metadata scan.
type ProjectInfo struct {
	Name                string   `json:"name"`
	Labels              []string `json:"labels"`
	ImageCount          int      `json:"image_count"`
	AnnotationCount     int      `json:"annotation_count"`
	AnnotatedImageCount int      `json:"annotated_image_count"`
	DoneImageCount      int      `json:"done_image_count"`
}
