package export

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"

	"github.com/jviitala/labelkit/internal/errors"
)

type vocSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

type vocBndBox struct {
	XMin int `xml:"xmin"`
	YMin int `xml:"ymin"`
	XMax int `xml:"xmax"`
	YMax int `xml:"ymax"`
}

type vocObject struct {
	Name      string    `xml:"name"`
	Pose      string    `xml:"pose"`
	Truncated int       `xml:"truncated"`
	Difficult int       `xml:"difficult"`
	BndBox    vocBndBox `xml:"bndbox"`
}

type vocAnnotation struct {
	XMLName   xml.Name    `xml:"annotation"`
	Filename  string      `xml:"filename"`
	Size      vocSize     `xml:"size"`
	Segmented int         `xml:"segmented"`
	Objects   []vocObject `xml:"object"`
}

// ExportPascalVOC writes one XML document per image under
// outputDir/Annotations and copies each raw image into outputDir/JPEGImages.
// All images participate regardless of done status. Object names carry the
// label verbatim, never the recomputed integer id; corners are clamped to
// the image bounds.
func (e *Exporter) ExportPascalVOC(outputDir string) error {
	annotationsDir := filepath.Join(outputDir, "Annotations")
	imagesDir := filepath.Join(outputDir, "JPEGImages")
	for _, dir := range []string{annotationsDir, imagesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("export").
				Category(errors.CategoryFileIO).
				Context("dir", dir).
				Build()
		}
	}

	images, err := e.source.ListImages()
	if err != nil {
		return err
	}

	for _, filename := range images {
		meta, err := e.source.Metadata(filename)
		if err != nil {
			e.log.Warn("skipping image with unreadable metadata", "filename", filename, "error", err)
			continue
		}

		if sourcePath, ok := e.source.ImagePath(filename); ok {
			if err := copyFile(sourcePath, filepath.Join(imagesDir, filename)); err != nil {
				return err
			}
		}

		doc := vocAnnotation{
			Filename: filename,
			Size: vocSize{
				Width:  meta.Image.Width,
				Height: meta.Image.Height,
				Depth:  3,
			},
			Segmented: 0,
		}
		for i := range meta.Annotations {
			ann := &meta.Annotations[i]
			xMin, yMin, xMax, yMax := clampedPixelBox(ann.BBox, meta.Image.Width, meta.Image.Height)
			doc.Objects = append(doc.Objects, vocObject{
				Name:      ann.Label,
				Pose:      "Unspecified",
				Truncated: 0,
				Difficult: 0,
				BndBox:    vocBndBox{XMin: xMin, YMin: yMin, XMax: xMax, YMax: yMax},
			})
		}

		data, err := xml.MarshalIndent(doc, "", "  ")
		if err != nil {
			return errors.New(err).
				Component("export").
				Category(errors.CategoryExport).
				Context("filename", filename).
				Build()
		}

		stem := strings.TrimSuffix(filename, filepath.Ext(filename))
		xmlPath := filepath.Join(annotationsDir, stem+".xml")
		if err := os.WriteFile(xmlPath, data, 0o644); err != nil {
			return errors.New(err).
				Component("export").
				Category(errors.CategoryFileIO).
				Context("path", xmlPath).
				Build()
		}
	}

	e.log.Info("pascal voc export complete", "images", len(images))
	return nil
}

// ExportPascalVOCArchive assembles a Pascal VOC dataset in a temporary
// directory and zips it to zipPath.
func (e *Exporter) ExportPascalVOCArchive(zipPath string) error {
	tempDir, err := os.MkdirTemp("", "voc_export_*")
	if err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Build()
	}
	defer os.RemoveAll(tempDir)

	datasetDir := filepath.Join(tempDir, "voc_dataset")
	if err := e.ExportPascalVOC(datasetDir); err != nil {
		return err
	}
	return zipTree(datasetDir, zipPath)
}
