package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jviitala/labelkit/internal/conf"
	"github.com/jviitala/labelkit/internal/model"
	"github.com/jviitala/labelkit/internal/project"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newTestController(t *testing.T) (*Controller, *echo.Echo) {
	t.Helper()

	settings := &conf.Settings{}
	settings.Server.DataDir = t.TempDir()
	settings.Server.ProjectsDir = t.TempDir()
	settings.Export.TrainSplit = 0.8
	settings.Export.ValSplit = 0.2
	settings.Export.Shuffle = true
	settings.Export.Seed = 42

	projects, err := project.New(settings.Server.ProjectsDir)
	require.NoError(t, err)

	e := echo.New()
	c, err := New(e, projects, settings)
	require.NoError(t, err)
	return c, e
}

func doJSON(e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func uploadImage(t *testing.T, e *echo.Echo, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestUploadListServeDeleteImage(t *testing.T) {
	_, e := newTestController(t)

	rec := uploadImage(t, e, "cat.png", pngBytes(t, 64, 48))
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeJSON[model.ImageInfo](t, rec)
	assert.Equal(t, "cat.png", info.Filename)
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)

	rec = doJSON(e, http.MethodGet, "/api/images", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"cat.png"}, decodeJSON[[]string](t, rec))

	req := httptest.NewRequest(http.MethodGet, "/api/images/cat.png", http.NoBody)
	serveRec := httptest.NewRecorder()
	e.ServeHTTP(serveRec, req)
	require.Equal(t, http.StatusOK, serveRec.Code)
	assert.Equal(t, "image/png", serveRec.Header().Get(echo.HeaderContentType))
	assert.NotEmpty(t, serveRec.Body.Bytes())

	rec = doJSON(e, http.MethodDelete, "/api/images/cat.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/api/images/cat.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRejectsGarbage(t *testing.T) {
	_, e := newTestController(t)
	rec := uploadImage(t, e, "junk.png", []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMissingImage(t *testing.T) {
	_, e := newTestController(t)
	rec := doJSON(e, http.MethodGet, "/api/images/nope.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnnotationLifecycle(t *testing.T) {
	_, e := newTestController(t)
	require.Equal(t, http.StatusOK, uploadImage(t, e, "a.png", pngBytes(t, 100, 100)).Code)

	create := model.AnnotationCreate{
		Label:   "apple",
		ClassID: 0,
		BBox:    model.BoundingBox{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.2},
	}
	rec := doJSON(e, http.MethodPost, "/api/images/a.png/annotations", create)
	require.Equal(t, http.StatusOK, rec.Code)
	ann := decodeJSON[model.Annotation](t, rec)
	assert.NotEmpty(t, ann.ID)
	assert.Equal(t, "apple", ann.Label)

	rec = doJSON(e, http.MethodGet, "/api/images/a.png/annotations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[[]model.Annotation](t, rec), 1)

	newLabel := "pear"
	rec = doJSON(e, http.MethodPut, "/api/images/a.png/annotations/"+ann.ID,
		model.AnnotationUpdate{Label: &newLabel})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeJSON[model.Annotation](t, rec)
	assert.Equal(t, "pear", updated.Label)
	assert.Equal(t, ann.BBox, updated.BBox)

	rec = doJSON(e, http.MethodDelete, "/api/images/a.png/annotations/"+ann.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/api/images/a.png/annotations/"+ann.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddAnnotationValidation(t *testing.T) {
	_, e := newTestController(t)
	require.Equal(t, http.StatusOK, uploadImage(t, e, "a.png", pngBytes(t, 100, 100)).Code)

	// Missing image is a 404.
	rec := doJSON(e, http.MethodPost, "/api/images/nope.png/annotations", model.AnnotationCreate{
		Label: "x", BBox: model.BoundingBox{X: 0.5, Y: 0.5, Width: 0.1, Height: 0.1},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Out-of-range box is a 400.
	rec = doJSON(e, http.MethodPost, "/api/images/a.png/annotations", model.AnnotationCreate{
		Label: "x", BBox: model.BoundingBox{X: 1.5, Y: 0.5, Width: 0.1, Height: 0.1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Empty label is a 400.
	rec = doJSON(e, http.MethodPost, "/api/images/a.png/annotations", model.AnnotationCreate{
		Label: "", BBox: model.BoundingBox{X: 0.5, Y: 0.5, Width: 0.1, Height: 0.1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearAndCopyAnnotations(t *testing.T) {
	_, e := newTestController(t)
	require.Equal(t, http.StatusOK, uploadImage(t, e, "a.png", pngBytes(t, 100, 100)).Code)
	require.Equal(t, http.StatusOK, uploadImage(t, e, "b.png", pngBytes(t, 100, 100)).Code)

	for range 2 {
		rec := doJSON(e, http.MethodPost, "/api/images/a.png/annotations", model.AnnotationCreate{
			Label: "apple", BBox: model.BoundingBox{X: 0.5, Y: 0.5, Width: 0.1, Height: 0.1},
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(e, http.MethodPost, "/api/images/b.png/annotations/copy-from/a.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"copied": 2}, decodeJSON[map[string]int](t, rec))

	rec = doJSON(e, http.MethodDelete, "/api/images/a.png/annotations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"deleted": 2}, decodeJSON[map[string]int](t, rec))

	rec = doJSON(e, http.MethodGet, "/api/images/b.png/annotations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[[]model.Annotation](t, rec), 2)
}

func TestDoneStatusRoutes(t *testing.T) {
	_, e := newTestController(t)
	require.Equal(t, http.StatusOK, uploadImage(t, e, "a.png", pngBytes(t, 100, 100)).Code)

	rec := doJSON(e, http.MethodPut, "/api/images/a.png/done", doneRequest{Done: true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/images/a.png/done", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeJSON[doneResponse](t, rec).Done)

	rec = doJSON(e, http.MethodGet, "/api/images/done-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"a.png": true}, decodeJSON[map[string]bool](t, rec))

	rec = doJSON(e, http.MethodPut, "/api/images/missing.png/done", doneRequest{Done: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectLifecycle(t *testing.T) {
	c, e := newTestController(t)

	// No project open yet.
	rec := doJSON(e, http.MethodGet, "/api/projects/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	rec = doJSON(e, http.MethodPost, "/api/projects", model.ProjectCreate{Name: "Fruit Boxes"})
	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeJSON[model.Project](t, rec)
	assert.Equal(t, "Fruit Boxes", created.Name)
	assert.NotEmpty(t, created.ID)

	rec = doJSON(e, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[[]model.Project](t, rec), 1)

	rec = doJSON(e, http.MethodPost, "/api/projects/"+created.ID+"/open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, c.CurrentProjectID())

	// Uploads now land in the project's data directory.
	require.Equal(t, http.StatusOK, uploadImage(t, e, "in_project.png", pngBytes(t, 10, 10)).Code)
	rec = doJSON(e, http.MethodGet, "/api/projects/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeJSON[model.Project](t, rec).ImageCount)

	rec = doJSON(e, http.MethodPost, "/api/projects/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, c.CurrentProjectID())

	// Back on the legacy directory the image is invisible.
	rec = doJSON(e, http.MethodGet, "/api/images", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeJSON[[]string](t, rec))

	rec = doJSON(e, http.MethodDelete, "/api/projects/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/api/projects/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteOpenProjectClosesIt(t *testing.T) {
	c, e := newTestController(t)

	rec := doJSON(e, http.MethodPost, "/api/projects", model.ProjectCreate{Name: "temp"})
	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeJSON[model.Project](t, rec)

	require.Equal(t, http.StatusOK,
		doJSON(e, http.MethodPost, "/api/projects/"+created.ID+"/open", nil).Code)
	require.Equal(t, created.ID, c.CurrentProjectID())

	require.Equal(t, http.StatusOK,
		doJSON(e, http.MethodDelete, "/api/projects/"+created.ID, nil).Code)
	assert.Empty(t, c.CurrentProjectID())
}

func TestOpenMissingProject(t *testing.T) {
	_, e := newTestController(t)
	rec := doJSON(e, http.MethodPost, "/api/projects/ghost_20240101_000000/open", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateProjectValidation(t *testing.T) {
	_, e := newTestController(t)

	rec := doJSON(e, http.MethodPost, "/api/projects", model.ProjectCreate{Name: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/projects",
		model.ProjectCreate{Name: strings.Repeat("x", model.MaxProjectNameLength+1)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProjectInfoRoute(t *testing.T) {
	_, e := newTestController(t)
	require.Equal(t, http.StatusOK, uploadImage(t, e, "a.png", pngBytes(t, 100, 100)).Code)
	rec := doJSON(e, http.MethodPost, "/api/images/a.png/annotations", model.AnnotationCreate{
		Label: "apple", BBox: model.BoundingBox{X: 0.5, Y: 0.5, Width: 0.1, Height: 0.1},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/project", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeJSON[model.ProjectInfo](t, rec)
	assert.Equal(t, 1, info.ImageCount)
	assert.Equal(t, 1, info.AnnotationCount)
	assert.Equal(t, []string{"apple"}, info.Labels)
}

func TestExportCSVRoute(t *testing.T) {
	_, e := newTestController(t)
	require.Equal(t, http.StatusOK, uploadImage(t, e, "a.png", pngBytes(t, 100, 100)).Code)
	rec := doJSON(e, http.MethodPost, "/api/images/a.png/annotations", model.AnnotationCreate{
		Label: "apple", BBox: model.BoundingBox{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.2},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/export/csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "annotations.csv")
	assert.Contains(t, rec.Body.String(), "a.png,apple,40,40,60,60,100,100")
}

func TestExportCOCORoute(t *testing.T) {
	_, e := newTestController(t)
	require.Equal(t, http.StatusOK, uploadImage(t, e, "a.png", pngBytes(t, 100, 100)).Code)

	rec := doJSON(e, http.MethodPost, "/api/export/coco", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "coco_annotations.json")

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Contains(t, doc, "images")
	assert.Contains(t, doc, "annotations")
	assert.Contains(t, doc, "categories")
}

func TestExportCreateMLRoute(t *testing.T) {
	_, e := newTestController(t)
	rec := doJSON(e, http.MethodPost, "/api/export/createml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestExportYOLORoute(t *testing.T) {
	_, e := newTestController(t)
	require.Equal(t, http.StatusOK, uploadImage(t, e, "a.png", pngBytes(t, 100, 100)).Code)
	rec := doJSON(e, http.MethodPost, "/api/images/a.png/annotations", model.AnnotationCreate{
		Label: "apple", BBox: model.BoundingBox{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.2},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusOK,
		doJSON(e, http.MethodPut, "/api/images/a.png/done", doneRequest{Done: true}).Code)

	rec = doJSON(e, http.MethodPost, "/api/export/yolo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "yolo_dataset.zip")
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestExportYOLOTrainSplitValidation(t *testing.T) {
	_, e := newTestController(t)

	for _, raw := range []string{"0.05", "1.5", "abc"} {
		rec := doJSON(e, http.MethodPost, fmt.Sprintf("/api/export/yolo?train_split=%s", raw), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "train_split=%s", raw)
	}

	rec := doJSON(e, http.MethodPost, "/api/export/yolo?train_split=0.9", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
