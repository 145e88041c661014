// Package store owns one directory's images and per-image annotation
// metadata. A Store instance is handed either the legacy root data directory
// or a single project's directory and manages the images/ and annotations/
// pair beneath it. It has no awareness of the project concept.
//
// Persistence is one JSON document per image under annotations/{stem}.json,
// written as a whole-file overwrite. There is no locking; concurrent writers
// to the same image race with last-writer-wins semantics.
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jviitala/labelkit/internal/errors"
	"github.com/jviitala/labelkit/internal/imageio"
	"github.com/jviitala/labelkit/internal/logging"
	"github.com/jviitala/labelkit/internal/model"
)

// Store manages images and annotations below a single data directory.
type Store struct {
	dataDir        string
	imagesDir      string
	annotationsDir string
	log            *slog.Logger
}

// New creates a Store rooted at dataDir, creating the images/ and
// annotations/ subdirectories if they do not exist.
func New(dataDir string) (*Store, error) {
	s := &Store{
		dataDir:        dataDir,
		imagesDir:      filepath.Join(dataDir, "images"),
		annotationsDir: filepath.Join(dataDir, "annotations"),
		log:            logging.ForService("store"),
	}

	for _, dir := range []string{s.dataDir, s.imagesDir, s.annotationsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("store").
				Category(errors.CategoryFileIO).
				Context("dir", dir).
				Build()
		}
	}

	return s, nil
}

// DataDir returns the root directory this store owns.
func (s *Store) DataDir() string {
	return s.dataDir
}

// ImagesDir returns the directory holding the raw image files.
func (s *Store) ImagesDir() string {
	return s.imagesDir
}

func (s *Store) metadataPath(imageFilename string) string {
	stem := strings.TrimSuffix(imageFilename, filepath.Ext(imageFilename))
	return filepath.Join(s.annotationsDir, stem+".json")
}

// loadMetadata reads the metadata record for an image. Returns nil with no
// error when the record does not exist.
func (s *Store) loadMetadata(imageFilename string) (*model.ImageMetadata, error) {
	data, err := os.ReadFile(s.metadataPath(imageFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("filename", imageFilename).
			Build()
	}

	var meta model.ImageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryFileParsing).
			Context("filename", imageFilename).
			Build()
	}
	return &meta, nil
}

// saveMetadata persists a metadata record via temp-file-then-rename so a
// crash mid-write never leaves a truncated document behind.
func (s *Store) saveMetadata(meta *model.ImageMetadata) error {
	if meta.Annotations == nil {
		meta.Annotations = []model.Annotation{}
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Build()
	}

	path := s.metadataPath(meta.Image.Filename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}

// ListImages returns the sorted filenames of all supported images directly
// under images/. Non-image files are silently excluded.
func (s *Store) ListImages() ([]string, error) {
	entries, err := os.ReadDir(s.imagesDir)
	if err != nil {
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("dir", s.imagesDir).
			Build()
	}

	images := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageio.IsImageFile(entry.Name()) {
			images = append(images, entry.Name())
		}
	}
	sort.Strings(images)
	return images, nil
}

// UploadImage validates content as a decodable image, stores it under a
// collision-free basename and creates a fresh metadata record. Directory
// components in filename are stripped; on basename collision a _1, _2, ...
// suffix is appended before the extension so uploads never overwrite.
func (s *Store) UploadImage(filename string, content []byte) (model.ImageInfo, error) {
	width, height, err := imageio.DecodeInfo(content)
	if err != nil {
		return model.ImageInfo{}, err
	}

	safeName := filepath.Base(filename)
	if safeName == "." || safeName == string(filepath.Separator) || safeName == "" {
		return model.ImageInfo{}, errors.Newf("unusable image filename %q", filename).
			Component("store").
			Category(errors.CategoryValidation).
			Build()
	}

	imagePath := filepath.Join(s.imagesDir, safeName)
	if _, err := os.Stat(imagePath); err == nil {
		ext := filepath.Ext(safeName)
		stem := strings.TrimSuffix(safeName, ext)
		for counter := 1; ; counter++ {
			safeName = fmt.Sprintf("%s_%d%s", stem, counter, ext)
			imagePath = filepath.Join(s.imagesDir, safeName)
			if _, err := os.Stat(imagePath); os.IsNotExist(err) {
				break
			}
		}
	}

	if err := os.WriteFile(imagePath, content, 0o644); err != nil {
		return model.ImageInfo{}, errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("path", imagePath).
			Build()
	}

	info := model.ImageInfo{Filename: safeName, Width: width, Height: height}
	meta := &model.ImageMetadata{Image: info, Annotations: []model.Annotation{}}
	if err := s.saveMetadata(meta); err != nil {
		return model.ImageInfo{}, err
	}

	s.log.Info("image uploaded", "filename", safeName, "width", width, "height", height)
	return info, nil
}

// ImagePath returns the filesystem path of an image file if it exists.
// The filename is not re-sanitized here; boundary callers must have already
// validated it.
func (s *Store) ImagePath(filename string) (string, bool) {
	path := filepath.Join(s.imagesDir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// DeleteImage removes the image file and its metadata record. It reports
// whether at least one of the two existed.
func (s *Store) DeleteImage(filename string) (bool, error) {
	deleted := false

	imagePath := filepath.Join(s.imagesDir, filename)
	switch err := os.Remove(imagePath); {
	case err == nil:
		deleted = true
	case !os.IsNotExist(err):
		return false, errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("path", imagePath).
			Build()
	}

	metaPath := s.metadataPath(filename)
	switch err := os.Remove(metaPath); {
	case err == nil:
		deleted = true
	case !os.IsNotExist(err):
		return deleted, errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("path", metaPath).
			Build()
	}

	if deleted {
		s.log.Info("image deleted", "filename", filename)
	}
	return deleted, nil
}

// MarkImageDone flips the done flag on an existing metadata record. It
// reports false when the image has no record; a record is never lazily
// created here.
func (s *Store) MarkImageDone(filename string, done bool) (bool, error) {
	meta, err := s.loadMetadata(filename)
	if err != nil {
		return false, err
	}
	if meta == nil {
		return false, nil
	}
	meta.Done = done
	if err := s.saveMetadata(meta); err != nil {
		return false, err
	}
	return true, nil
}

// ImageDoneStatus returns the done flag for an image, or ErrImageNotFound
// when no metadata record exists.
func (s *Store) ImageDoneStatus(filename string) (bool, error) {
	meta, err := s.loadMetadata(filename)
	if err != nil {
		return false, err
	}
	if meta == nil {
		return false, errors.New(errors.ErrImageNotFound).
			Component("store").
			Category(errors.CategoryNotFound).
			Context("filename", filename).
			Build()
	}
	return meta.Done, nil
}

// AllDoneStatus maps every filename that has a metadata record to its done
// flag. Images without a record (raw files dropped into images/ without an
// upload) do not appear; the scan walks metadata files, not image files.
func (s *Store) AllDoneStatus() (map[string]bool, error) {
	result := map[string]bool{}
	err := s.scanMetadata(func(meta *model.ImageMetadata) {
		result[meta.Image.Filename] = meta.Done
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scanMetadata invokes fn for every readable metadata record. Unreadable or
// malformed files are skipped, never aborting the scan.
func (s *Store) scanMetadata(fn func(meta *model.ImageMetadata)) error {
	entries, err := os.ReadDir(s.annotationsDir)
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("dir", s.annotationsDir).
			Build()
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.annotationsDir, entry.Name()))
		if err != nil {
			s.log.Warn("skipping unreadable metadata file", "file", entry.Name(), "error", err)
			continue
		}
		var meta model.ImageMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			s.log.Warn("skipping malformed metadata file", "file", entry.Name(), "error", err)
			continue
		}
		fn(&meta)
	}
	return nil
}

// Annotations returns the annotation list for an image, or an empty slice if
// no metadata record exists. Callers needing to distinguish a missing image
// from an unannotated one must check existence separately.
func (s *Store) Annotations(filename string) ([]model.Annotation, error) {
	meta, err := s.loadMetadata(filename)
	if err != nil {
		return nil, err
	}
	if meta == nil || meta.Annotations == nil {
		return []model.Annotation{}, nil
	}
	return meta.Annotations, nil
}

// AddAnnotation appends a new annotation with a freshly generated id. When
// the metadata record is missing but the raw image file exists on disk, the
// record is lazily materialized by re-reading the image's dimensions. When
// neither exists the operation fails with ErrImageNotFound.
func (s *Store) AddAnnotation(filename string, create model.AnnotationCreate) (model.Annotation, error) {
	meta, err := s.loadMetadata(filename)
	if err != nil {
		return model.Annotation{}, err
	}

	if meta == nil {
		imagePath := filepath.Join(s.imagesDir, filename)
		if _, statErr := os.Stat(imagePath); statErr != nil {
			return model.Annotation{}, errors.New(errors.ErrImageNotFound).
				Component("store").
				Category(errors.CategoryNotFound).
				Context("filename", filename).
				Build()
		}
		width, height, decodeErr := imageio.DecodeFileInfo(imagePath)
		if decodeErr != nil {
			return model.Annotation{}, decodeErr
		}
		meta = &model.ImageMetadata{
			Image:       model.ImageInfo{Filename: filename, Width: width, Height: height},
			Annotations: []model.Annotation{},
		}
		s.log.Info("materialized metadata for unregistered image", "filename", filename)
	}

	annotation := model.Annotation{
		ID:      uuid.New().String(),
		Label:   create.Label,
		ClassID: create.ClassID,
		BBox:    create.BBox,
	}
	meta.Annotations = append(meta.Annotations, annotation)
	if err := s.saveMetadata(meta); err != nil {
		return model.Annotation{}, err
	}

	return annotation, nil
}

// UpdateAnnotation applies the non-nil fields of the patch to the annotation
// with the given id. Returns ErrAnnotationNotFound when the image has no
// record or no annotation matches; the stored list is untouched in that case.
func (s *Store) UpdateAnnotation(filename, annotationID string, update model.AnnotationUpdate) (model.Annotation, error) {
	meta, err := s.loadMetadata(filename)
	if err != nil {
		return model.Annotation{}, err
	}
	if meta == nil {
		return model.Annotation{}, errors.New(errors.ErrAnnotationNotFound).
			Component("store").
			Category(errors.CategoryNotFound).
			Context("filename", filename).
			Build()
	}

	for i := range meta.Annotations {
		if meta.Annotations[i].ID != annotationID {
			continue
		}
		updated := meta.Annotations[i]
		if update.Label != nil {
			updated.Label = *update.Label
		}
		if update.ClassID != nil {
			updated.ClassID = *update.ClassID
		}
		if update.BBox != nil {
			updated.BBox = *update.BBox
		}
		meta.Annotations[i] = updated
		if err := s.saveMetadata(meta); err != nil {
			return model.Annotation{}, err
		}
		return updated, nil
	}

	return model.Annotation{}, errors.New(errors.ErrAnnotationNotFound).
		Component("store").
		Category(errors.CategoryNotFound).
		Context("filename", filename).
		Context("annotation_id", annotationID).
		Build()
}

// DeleteAnnotation removes the annotation with the given id if present and
// reports whether a removal happened.
func (s *Store) DeleteAnnotation(filename, annotationID string) (bool, error) {
	meta, err := s.loadMetadata(filename)
	if err != nil || meta == nil {
		return false, err
	}

	kept := meta.Annotations[:0]
	for _, ann := range meta.Annotations {
		if ann.ID != annotationID {
			kept = append(kept, ann)
		}
	}
	if len(kept) == len(meta.Annotations) {
		return false, nil
	}

	meta.Annotations = kept
	if err := s.saveMetadata(meta); err != nil {
		return false, err
	}
	return true, nil
}

// ClearAnnotations empties an image's annotation list and returns the count
// that was removed.
func (s *Store) ClearAnnotations(filename string) (int, error) {
	meta, err := s.loadMetadata(filename)
	if err != nil || meta == nil {
		return 0, err
	}

	count := len(meta.Annotations)
	meta.Annotations = []model.Annotation{}
	if err := s.saveMetadata(meta); err != nil {
		return 0, err
	}
	return count, nil
}

// CopyAnnotations duplicates every annotation from the source image onto the
// target, generating a fresh id for each copy and appending to any existing
// target annotations. Both images must already have metadata records;
// otherwise zero copies are reported without error.
func (s *Store) CopyAnnotations(sourceFilename, targetFilename string) (int, error) {
	source, err := s.loadMetadata(sourceFilename)
	if err != nil || source == nil {
		return 0, err
	}
	target, err := s.loadMetadata(targetFilename)
	if err != nil || target == nil {
		return 0, err
	}

	for _, ann := range source.Annotations {
		target.Annotations = append(target.Annotations, model.Annotation{
			ID:      uuid.New().String(),
			Label:   ann.Label,
			ClassID: ann.ClassID,
			BBox:    ann.BBox,
		})
	}
	if err := s.saveMetadata(target); err != nil {
		return 0, err
	}
	return len(source.Annotations), nil
}

// Metadata returns the full metadata record for an image, or ErrImageNotFound
// when no record exists.
func (s *Store) Metadata(filename string) (*model.ImageMetadata, error) {
	meta, err := s.loadMetadata(filename)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, errors.New(errors.ErrImageNotFound).
			Component("store").
			Category(errors.CategoryNotFound).
			Context("filename", filename).
			Build()
	}
	return meta, nil
}

// Info aggregates store-wide statistics from a single metadata scan.
func (s *Store) Info() (model.ProjectInfo, error) {
	info := model.ProjectInfo{
		Name:   filepath.Base(s.dataDir),
		Labels: []string{},
	}
	labelSet := map[string]bool{}

	err := s.scanMetadata(func(meta *model.ImageMetadata) {
		info.ImageCount++
		info.AnnotationCount += len(meta.Annotations)
		if len(meta.Annotations) > 0 {
			info.AnnotatedImageCount++
		}
		if meta.Done {
			info.DoneImageCount++
		}
		for _, ann := range meta.Annotations {
			labelSet[ann.Label] = true
		}
	})
	if err != nil {
		return model.ProjectInfo{}, err
	}

	for label := range labelSet {
		info.Labels = append(info.Labels, label)
	}
	sort.Strings(info.Labels)
	return info, nil
}

// Backup copies the images/ and annotations/ subtrees (and only those two)
// into a freshly created, uniquely named directory under destination. The
// unique name keeps recursion impossible when destination lives inside this
// store's own root.
func (s *Store) Backup(destination string) (string, error) {
	backupDir := filepath.Join(destination, "backup_"+strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("dir", backupDir).
			Build()
	}

	if err := copyDir(s.imagesDir, filepath.Join(backupDir, "images")); err != nil {
		return "", err
	}
	if err := copyDir(s.annotationsDir, filepath.Join(backupDir, "annotations")); err != nil {
		return "", err
	}

	s.log.Info("project backed up", "destination", backupDir)
	return backupDir, nil
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("dir", dst).
			Build()
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("dir", src).
			Build()
	}

	for _, entry := range entries {
		if entry.IsDir() {
			// The store only ever nests files directly under images/ and
			// annotations/; stray subdirectories are not part of a backup.
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("path", src).
			Build()
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("path", dst).
			Build()
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("path", dst).
			Build()
	}
	return out.Close()
}
