package model

import (
	"time"

	"github.com/jviitala/labelkit/internal/errors"
)

// Project describes one annotation project. ID doubles as the project's
// directory name and is immutable after creation. ImageCount and
// AnnotationCount are recomputed from disk on every read; the persisted
// values are snapshots, never a source of truth.
type Project struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CreatedAt       time.Time `json:"created_at"`
	LastOpened      time.Time `json:"last_opened"`
	ImageCount      int       `json:"image_count"`
	AnnotationCount int       `json:"annotation_count"`
}

// MaxProjectNameLength bounds user-supplied project names.
const MaxProjectNameLength = 100

// ProjectCreate is the request payload for creating a project.
type ProjectCreate struct {
	Name string `json:"name"`
}

// Validate checks the project creation request.
func (c *ProjectCreate) Validate() error {
	if c.Name == "" {
		return errors.Newf("project name must not be empty").
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(c.Name) > MaxProjectNameLength {
		return errors.Newf("project name exceeds %d characters", MaxProjectNameLength).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}
