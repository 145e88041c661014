package export

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jviitala/labelkit/internal/errors"
)

// YOLOOptions controls the train/val partitioning of a YOLO export.
type YOLOOptions struct {
	TrainSplit float64 // fraction of done images assigned to train
	ValSplit   float64 // fraction assigned to val; train+val must not exceed 1
	Shuffle    bool    // permute images before splitting
	Seed       int64   // seed for the deterministic permutation
}

// DefaultYOLOOptions matches the interactive tool's defaults.
func DefaultYOLOOptions() YOLOOptions {
	return YOLOOptions{TrainSplit: 0.8, ValSplit: 0.2, Shuffle: true, Seed: 42}
}

type dataYAML struct {
	Path  string         `yaml:"path"`
	Train string         `yaml:"train"`
	Val   string         `yaml:"val"`
	NC    int            `yaml:"nc"`
	Names map[int]string `yaml:"names"`
}

// ExportYOLO writes a YOLO dataset tree under outputDir:
//
//	outputDir/
//	├── data.yaml
//	├── train/{images,labels}
//	└── val/{images,labels}
//
// Only images marked done participate; images never marked done are silently
// excluded. With shuffling enabled the same seed always yields the same
// train/val membership. Returns the path of the written data.yaml.
func (e *Exporter) ExportYOLO(outputDir string, opts YOLOOptions) (string, error) {
	trainImages := filepath.Join(outputDir, "train", "images")
	trainLabels := filepath.Join(outputDir, "train", "labels")
	valImages := filepath.Join(outputDir, "val", "images")
	valLabels := filepath.Join(outputDir, "val", "labels")
	for _, dir := range []string{trainImages, trainLabels, valImages, valLabels} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.New(err).
				Component("export").
				Category(errors.CategoryFileIO).
				Context("dir", dir).
				Build()
		}
	}

	images, err := e.doneImages()
	if err != nil {
		return "", err
	}

	if opts.Shuffle {
		rng := rand.New(rand.NewSource(opts.Seed)) //nolint:gosec // deterministic split, not cryptography
		rng.Shuffle(len(images), func(i, j int) {
			images[i], images[j] = images[j], images[i]
		})
	}

	// A split sum above 1.0 is a boundary bug; stay sane here by capping the
	// train bucket at the full set instead of erroring.
	trainSplit := math.Min(math.Max(opts.TrainSplit, 0), 1)
	splitIdx := int(float64(len(images)) * trainSplit)
	trainFiles := images[:splitIdx]
	valFiles := images[splitIdx:]

	labels, err := e.Labels()
	if err != nil {
		return "", err
	}
	mapping := labelIndex(labels)

	for _, filename := range trainFiles {
		if err := e.exportYOLOImage(filename, trainImages, trainLabels, mapping); err != nil {
			return "", err
		}
	}
	for _, filename := range valFiles {
		if err := e.exportYOLOImage(filename, valImages, valLabels, mapping); err != nil {
			return "", err
		}
	}

	yamlPath := filepath.Join(outputDir, "data.yaml")
	names := make(map[int]string, len(labels))
	for i, label := range labels {
		names[i] = label
	}
	manifest, err := yaml.Marshal(dataYAML{
		// Relative path keeps the archive portable across machines.
		Path:  ".",
		Train: "train/images",
		Val:   "val/images",
		NC:    len(labels),
		Names: names,
	})
	if err != nil {
		return "", errors.New(err).
			Component("export").
			Category(errors.CategoryExport).
			Build()
	}
	if err := os.WriteFile(yamlPath, manifest, 0o644); err != nil {
		return "", errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", yamlPath).
			Build()
	}

	e.log.Info("yolo export complete",
		"train", len(trainFiles), "val", len(valFiles), "labels", len(labels))
	return yamlPath, nil
}

// doneImages returns the store's image listing filtered to done images,
// preserving listing order.
func (e *Exporter) doneImages() ([]string, error) {
	images, err := e.source.ListImages()
	if err != nil {
		return nil, err
	}
	status, err := e.source.AllDoneStatus()
	if err != nil {
		return nil, err
	}

	done := []string{}
	for _, filename := range images {
		if status[filename] {
			done = append(done, filename)
		}
	}
	return done, nil
}

// exportYOLOImage copies one raw image and writes its label file with one
// line per annotation, class ids taken from the recomputed mapping and
// normalized coordinates unchanged.
func (e *Exporter) exportYOLOImage(filename, imagesDir, labelsDir string, mapping map[string]int) error {
	sourcePath, ok := e.source.ImagePath(filename)
	if !ok {
		return nil
	}
	if err := copyFile(sourcePath, filepath.Join(imagesDir, filename)); err != nil {
		return err
	}

	annotations, err := e.source.Annotations(filename)
	if err != nil {
		e.log.Warn("skipping label file for unreadable annotations", "filename", filename, "error", err)
		return nil
	}

	lines := make([]string, 0, len(annotations))
	for i := range annotations {
		ann := &annotations[i]
		lines = append(lines, fmt.Sprintf("%d %.6f %.6f %.6f %.6f",
			classID(mapping, ann), ann.BBox.X, ann.BBox.Y, ann.BBox.Width, ann.BBox.Height))
	}

	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	labelPath := filepath.Join(labelsDir, stem+".txt")
	if err := os.WriteFile(labelPath, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", labelPath).
			Build()
	}
	return nil
}

// ExportYOLOArchive assembles a YOLO dataset in a temporary directory and
// zips it to zipPath. Partial failures leave no artifact behind.
func (e *Exporter) ExportYOLOArchive(zipPath string, opts YOLOOptions) error {
	tempDir, err := os.MkdirTemp("", "yolo_export_*")
	if err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Build()
	}
	defer os.RemoveAll(tempDir)

	datasetDir := filepath.Join(tempDir, "yolo_dataset")
	if _, err := e.ExportYOLO(datasetDir, opts); err != nil {
		return err
	}
	return zipTree(datasetDir, zipPath)
}
