package store

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jviitala/labelkit/internal/errors"
	"github.com/jviitala/labelkit/internal/model"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func sampleCreate(label string) model.AnnotationCreate {
	return model.AnnotationCreate{
		Label:   label,
		ClassID: 0,
		BBox:    model.BoundingBox{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.2},
	}
}

func TestNewCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	_, err := New(filepath.Join(dir, "data"))
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(dir, "data", "images"))
	assert.DirExists(t, filepath.Join(dir, "data", "annotations"))
}

func TestUploadImage(t *testing.T) {
	s := newTestStore(t)

	info, err := s.UploadImage("test.png", pngBytes(t, 100, 60))
	require.NoError(t, err)
	assert.Equal(t, "test.png", info.Filename)
	assert.Equal(t, 100, info.Width)
	assert.Equal(t, 60, info.Height)

	// Image file and metadata record both exist.
	assert.FileExists(t, filepath.Join(s.ImagesDir(), "test.png"))
	assert.FileExists(t, filepath.Join(s.annotationsDir, "test.json"))

	// Fresh record: empty annotations, not done.
	anns, err := s.Annotations("test.png")
	require.NoError(t, err)
	assert.Empty(t, anns)
	done, err := s.ImageDoneStatus("test.png")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestUploadImageRejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UploadImage("bad.png", []byte("not an image"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidImage))

	_, err = s.UploadImage("empty.png", nil)
	assert.Error(t, err)
}

func TestUploadImageStripsDirectories(t *testing.T) {
	s := newTestStore(t)

	info, err := s.UploadImage("../../../etc/passwd.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, "passwd.png", info.Filename)
	assert.FileExists(t, filepath.Join(s.ImagesDir(), "passwd.png"))
}

func TestUploadImageDuplicateFilename(t *testing.T) {
	s := newTestStore(t)

	first, err := s.UploadImage("dup.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	second, err := s.UploadImage("dup.png", pngBytes(t, 20, 20))
	require.NoError(t, err)
	third, err := s.UploadImage("dup.png", pngBytes(t, 30, 30))
	require.NoError(t, err)

	assert.Equal(t, "dup.png", first.Filename)
	assert.Equal(t, "dup_1.png", second.Filename)
	assert.Equal(t, "dup_2.png", third.Filename)

	// All three independently retrievable.
	for _, name := range []string{"dup.png", "dup_1.png", "dup_2.png"} {
		_, ok := s.ImagePath(name)
		assert.True(t, ok, name)
	}
}

func TestListImagesFiltersAndSorts(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UploadImage("b.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	_, err = s.UploadImage("a.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.ImagesDir(), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.ImagesDir(), "C.JPG"), pngBytes(t, 5, 5), 0o644))

	images, err := s.ListImages()
	require.NoError(t, err)
	assert.Equal(t, []string{"C.JPG", "a.png", "b.png"}, images)
}

func TestRoundTripAcrossStoreInstances(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir)
	require.NoError(t, err)

	_, err = s1.UploadImage("test.png", pngBytes(t, 100, 100))
	require.NoError(t, err)

	var created []model.Annotation
	for _, label := range []string{"apple", "banana", "cherry"} {
		ann, err := s1.AddAnnotation("test.png", sampleCreate(label))
		require.NoError(t, err)
		created = append(created, ann)
	}

	// A freshly constructed store over the same directory sees identical state.
	s2, err := New(dir)
	require.NoError(t, err)
	loaded, err := s2.Annotations("test.png")
	require.NoError(t, err)
	assert.Equal(t, created, loaded)
}

func TestDeleteImage(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("test.png", pngBytes(t, 10, 10))
	require.NoError(t, err)

	deleted, err := s.DeleteImage("test.png")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoFileExists(t, filepath.Join(s.ImagesDir(), "test.png"))
	assert.NoFileExists(t, filepath.Join(s.annotationsDir, "test.json"))

	deleted, err = s.DeleteImage("test.png")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMarkImageDone(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("test.png", pngBytes(t, 10, 10))
	require.NoError(t, err)

	ok, err := s.MarkImageDone("test.png", true)
	require.NoError(t, err)
	assert.True(t, ok)

	done, err := s.ImageDoneStatus("test.png")
	require.NoError(t, err)
	assert.True(t, done)

	ok, err = s.MarkImageDone("test.png", false)
	require.NoError(t, err)
	assert.True(t, ok)
	done, err = s.ImageDoneStatus("test.png")
	require.NoError(t, err)
	assert.False(t, done)

	// No record: no lazy creation.
	ok, err = s.MarkImageDone("ghost.png", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestImageDoneStatusNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ImageDoneStatus("ghost.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrImageNotFound))
}

func TestAllDoneStatusScansByMetadata(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("a.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	_, err = s.UploadImage("b.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	_, err = s.MarkImageDone("a.png", true)
	require.NoError(t, err)

	// A raw file without an upload has no record and must not appear.
	require.NoError(t, os.WriteFile(filepath.Join(s.ImagesDir(), "raw.png"), pngBytes(t, 5, 5), 0o644))

	status, err := s.AllDoneStatus()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a.png": true, "b.png": false}, status)
}

func TestAddAnnotationLazyMaterialization(t *testing.T) {
	s := newTestStore(t)

	// Place a raw image file without going through upload.
	require.NoError(t, os.WriteFile(filepath.Join(s.ImagesDir(), "raw.png"), pngBytes(t, 64, 32), 0o644))

	ann, err := s.AddAnnotation("raw.png", sampleCreate("apple"))
	require.NoError(t, err)
	assert.NotEmpty(t, ann.ID)

	meta, err := s.Metadata("raw.png")
	require.NoError(t, err)
	assert.Equal(t, 64, meta.Image.Width)
	assert.Equal(t, 32, meta.Image.Height)
	assert.Len(t, meta.Annotations, 1)
}

func TestAddAnnotationImageMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddAnnotation("ghost.png", sampleCreate("apple"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrImageNotFound))
}

func TestAddAnnotationGeneratesUniqueIDs(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("test.png", pngBytes(t, 10, 10))
	require.NoError(t, err)

	seen := map[string]bool{}
	for range 5 {
		ann, err := s.AddAnnotation("test.png", sampleCreate("apple"))
		require.NoError(t, err)
		assert.False(t, seen[ann.ID])
		seen[ann.ID] = true
	}
}

func TestUpdateAnnotationPartialPatch(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("test.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	ann, err := s.AddAnnotation("test.png", sampleCreate("apple"))
	require.NoError(t, err)

	label := "banana"
	updated, err := s.UpdateAnnotation("test.png", ann.ID, model.AnnotationUpdate{Label: &label})
	require.NoError(t, err)
	assert.Equal(t, "banana", updated.Label)
	// Untouched fields survive the patch.
	assert.Equal(t, ann.ClassID, updated.ClassID)
	assert.Equal(t, ann.BBox, updated.BBox)
	assert.Equal(t, ann.ID, updated.ID)

	box := model.BoundingBox{X: 0.25, Y: 0.25, Width: 0.1, Height: 0.1}
	classID := 3
	updated, err = s.UpdateAnnotation("test.png", ann.ID, model.AnnotationUpdate{ClassID: &classID, BBox: &box})
	require.NoError(t, err)
	assert.Equal(t, "banana", updated.Label)
	assert.Equal(t, 3, updated.ClassID)
	assert.Equal(t, box, updated.BBox)
}

func TestUpdateAnnotationNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("test.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	ann, err := s.AddAnnotation("test.png", sampleCreate("apple"))
	require.NoError(t, err)

	label := "x"
	_, err = s.UpdateAnnotation("test.png", "no-such-id", model.AnnotationUpdate{Label: &label})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAnnotationNotFound))

	// Original list untouched.
	anns, err := s.Annotations("test.png")
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, ann, anns[0])

	_, err = s.UpdateAnnotation("ghost.png", ann.ID, model.AnnotationUpdate{Label: &label})
	assert.True(t, errors.Is(err, errors.ErrAnnotationNotFound))
}

func TestDeleteAnnotation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("test.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	ann, err := s.AddAnnotation("test.png", sampleCreate("apple"))
	require.NoError(t, err)
	keep, err := s.AddAnnotation("test.png", sampleCreate("banana"))
	require.NoError(t, err)

	removed, err := s.DeleteAnnotation("test.png", ann.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	anns, err := s.Annotations("test.png")
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, keep.ID, anns[0].ID)

	removed, err = s.DeleteAnnotation("test.png", ann.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = s.DeleteAnnotation("ghost.png", ann.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestClearAnnotations(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("test.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	for range 3 {
		_, err := s.AddAnnotation("test.png", sampleCreate("apple"))
		require.NoError(t, err)
	}

	count, err := s.ClearAnnotations("test.png")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	anns, err := s.Annotations("test.png")
	require.NoError(t, err)
	assert.Empty(t, anns)

	count, err = s.ClearAnnotations("ghost.png")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCopyAnnotationsGeneratesNewIdentities(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("src.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	_, err = s.UploadImage("dst.png", pngBytes(t, 10, 10))
	require.NoError(t, err)

	prior, err := s.AddAnnotation("dst.png", sampleCreate("existing"))
	require.NoError(t, err)

	sourceIDs := map[string]bool{}
	for _, label := range []string{"apple", "banana"} {
		ann, err := s.AddAnnotation("src.png", sampleCreate(label))
		require.NoError(t, err)
		sourceIDs[ann.ID] = true
	}

	copied, err := s.CopyAnnotations("src.png", "dst.png")
	require.NoError(t, err)
	assert.Equal(t, 2, copied)

	anns, err := s.Annotations("dst.png")
	require.NoError(t, err)
	require.Len(t, anns, 3)
	// Prior annotations preserved, not replaced.
	assert.Equal(t, prior.ID, anns[0].ID)
	// Every copy carries a fresh id.
	for _, ann := range anns[1:] {
		assert.False(t, sourceIDs[ann.ID])
	}
}

func TestCopyAnnotationsMissingRecords(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("src.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	_, err = s.AddAnnotation("src.png", sampleCreate("apple"))
	require.NoError(t, err)

	copied, err := s.CopyAnnotations("src.png", "ghost.png")
	require.NoError(t, err)
	assert.Zero(t, copied)

	copied, err = s.CopyAnnotations("ghost.png", "src.png")
	require.NoError(t, err)
	assert.Zero(t, copied)
}

func TestInfoAggregates(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("a.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	_, err = s.UploadImage("b.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	_, err = s.UploadImage("c.png", pngBytes(t, 10, 10))
	require.NoError(t, err)

	_, err = s.AddAnnotation("a.png", sampleCreate("cherry"))
	require.NoError(t, err)
	_, err = s.AddAnnotation("a.png", sampleCreate("apple"))
	require.NoError(t, err)
	_, err = s.AddAnnotation("b.png", sampleCreate("apple"))
	require.NoError(t, err)
	_, err = s.MarkImageDone("b.png", true)
	require.NoError(t, err)

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, 3, info.ImageCount)
	assert.Equal(t, 3, info.AnnotationCount)
	assert.Equal(t, 2, info.AnnotatedImageCount)
	assert.Equal(t, 1, info.DoneImageCount)
	assert.Equal(t, []string{"apple", "cherry"}, info.Labels)
}

func TestInfoSkipsCorruptMetadata(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("good.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.annotationsDir, "bad.json"), []byte("{broken"), 0o644))

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, 1, info.ImageCount)
}

func TestBackup(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("test.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	_, err = s.AddAnnotation("test.png", sampleCreate("apple"))
	require.NoError(t, err)

	dest := t.TempDir()
	backupDir, err := s.Backup(dest)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(backupDir, "images", "test.png"))
	assert.FileExists(t, filepath.Join(backupDir, "annotations", "test.json"))

	// Backup copies only the two data subtrees; names are unique per run.
	second, err := s.Backup(dest)
	require.NoError(t, err)
	assert.NotEqual(t, backupDir, second)
}

func TestBackupInsideOwnRoot(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("test.png", pngBytes(t, 10, 10))
	require.NoError(t, err)

	backupDir, err := s.Backup(filepath.Join(s.DataDir(), "backups"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(backupDir, "images", "test.png"))
}

func TestMetadataPersistedShape(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UploadImage("test.png", pngBytes(t, 100, 60))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.annotationsDir, "test.json"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "image")
	assert.Contains(t, doc, "annotations")
	assert.Contains(t, doc, "done")

	img := doc["image"].(map[string]any)
	assert.Equal(t, "test.png", img["filename"])
	assert.InDelta(t, 100, img["width"], 0)
	assert.InDelta(t, 60, img["height"], 0)
}
