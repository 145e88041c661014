// Package export turns one annotation store's contents into training-ready
// dataset formats: YOLO, COCO, Pascal VOC, Apple CreateML and CSV.
//
// The exporter is a read-only consumer of the store. Every format derives
// its label-to-id mapping from the alphabetically sorted set of distinct
// labels across the whole store; an annotation's stored class id is used
// only as a fallback when its label is somehow absent from that set.
package export

import (
	"log/slog"
	"math"
	"sort"

	"github.com/jviitala/labelkit/internal/logging"
	"github.com/jviitala/labelkit/internal/model"
)

// Source is the read-only store contract the exporter consumes.
type Source interface {
	ListImages() ([]string, error)
	Annotations(filename string) ([]model.Annotation, error)
	Metadata(filename string) (*model.ImageMetadata, error)
	ImagePath(filename string) (string, bool)
	AllDoneStatus() (map[string]bool, error)
}

// Exporter produces dataset exports from a single source.
type Exporter struct {
	source Source
	log    *slog.Logger
}

// New creates an exporter over the given source.
func New(source Source) *Exporter {
	return &Exporter{
		source: source,
		log:    logging.ForService("export"),
	}
}

// Labels returns the sorted set of distinct labels across every image in
// the source. This ordering is the single source of truth for label-to-id
// assignment in every export format.
func (e *Exporter) Labels() ([]string, error) {
	images, err := e.source.ListImages()
	if err != nil {
		return nil, err
	}

	labelSet := map[string]bool{}
	for _, filename := range images {
		annotations, err := e.source.Annotations(filename)
		if err != nil {
			e.log.Warn("skipping image with unreadable annotations", "filename", filename, "error", err)
			continue
		}
		for _, ann := range annotations {
			labelSet[ann.Label] = true
		}
	}

	labels := make([]string, 0, len(labelSet))
	for label := range labelSet {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels, nil
}

func labelIndex(labels []string) map[string]int {
	idx := make(map[string]int, len(labels))
	for i, label := range labels {
		idx[label] = i
	}
	return idx
}

// classID resolves an annotation's class id from the recomputed mapping,
// falling back to the stored id for labels missing from the mapping.
func classID(mapping map[string]int, ann *model.Annotation) int {
	if id, ok := mapping[ann.Label]; ok {
		return id
	}
	return ann.ClassID
}

// pixelBox converts a normalized center box to absolute pixel corners.
func pixelBox(b model.BoundingBox, width, height int) (xMin, yMin, xMax, yMax float64) {
	w := float64(width)
	h := float64(height)
	xMin = (b.X - b.Width/2) * w
	yMin = (b.Y - b.Height/2) * h
	xMax = (b.X + b.Width/2) * w
	yMax = (b.Y + b.Height/2) * h
	return xMin, yMin, xMax, yMax
}

// clampedPixelBox is pixelBox with corners clamped to the image bounds and
// rounded to integers. Boxes may legitimately extend past image edges (the
// model never cross-validates center against size); this is the single place
// that enforces final on-disk geometric sanity for the corner-based formats.
func clampedPixelBox(b model.BoundingBox, width, height int) (xMin, yMin, xMax, yMax int) {
	fxMin, fyMin, fxMax, fyMax := pixelBox(b, width, height)
	xMin = int(math.Round(math.Max(fxMin, 0)))
	yMin = int(math.Round(math.Max(fyMin, 0)))
	xMax = int(math.Round(math.Min(fxMax, float64(width))))
	yMax = int(math.Round(math.Min(fyMax, float64(height))))
	return xMin, yMin, xMax, yMax
}
