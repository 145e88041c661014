// Package project manages the collection of annotation projects below a
// configured base directory. Each project owns one directory holding a
// project.json metadata file plus the images/ and annotations/ pair that an
// annotation store operates on.
package project

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/jviitala/labelkit/internal/errors"
	"github.com/jviitala/labelkit/internal/imageio"
	"github.com/jviitala/labelkit/internal/logging"
	"github.com/jviitala/labelkit/internal/model"
)

const metaFilename = "project.json"

// maxSlugLength bounds the sanitized name prefix of a generated project id.
const maxSlugLength = 50

// Store manages projects rooted at a base directory.
type Store struct {
	baseDir string
	log     *slog.Logger
	now     func() time.Time
}

// New creates a project store, creating the base directory if needed.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("project").
			Category(errors.CategoryFileIO).
			Context("dir", baseDir).
			Build()
	}
	return &Store{
		baseDir: baseDir,
		log:     logging.ForService("project"),
		now:     time.Now,
	}, nil
}

// BaseDir returns the directory all projects live under.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) projectDir(projectID string) string {
	return filepath.Join(s.baseDir, projectID)
}

func (s *Store) metaPath(projectID string) string {
	return filepath.Join(s.projectDir(projectID), metaFilename)
}

// generateID builds a directory-safe id from the project name plus a
// timestamp suffix: human-recognizable but effectively unguessable.
func generateID(name string, now time.Time) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	return slug + "_" + now.Format("20060102_150405")
}

func (s *Store) loadMeta(projectID string) (*model.Project, error) {
	data, err := os.ReadFile(s.metaPath(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("project").
			Category(errors.CategoryFileIO).
			Context("project_id", projectID).
			Build()
	}

	var p model.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.New(err).
			Component("project").
			Category(errors.CategoryFileParsing).
			Context("project_id", projectID).
			Build()
	}
	return &p, nil
}

func (s *Store) saveMeta(p *model.Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.New(err).
			Component("project").
			Category(errors.CategoryFileIO).
			Build()
	}

	path := s.metaPath(p.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.New(err).
			Component("project").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.New(err).
			Component("project").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}

// countStats recomputes image and annotation counts from disk. The
// annotation read is deliberately tolerant: only the annotations array of
// each JSON file is considered, so partially written or legacy-shaped
// metadata never breaks counting. Unreadable files are skipped.
func (s *Store) countStats(projectID string) (imageCount, annotationCount int) {
	projectDir := s.projectDir(projectID)

	if entries, err := os.ReadDir(filepath.Join(projectDir, "images")); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && imageio.IsImageFile(entry.Name()) {
				imageCount++
			}
		}
	}

	annotationsDir := filepath.Join(projectDir, "annotations")
	if entries, err := os.ReadDir(annotationsDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(annotationsDir, entry.Name()))
			if err != nil {
				continue
			}
			var doc struct {
				Annotations []json.RawMessage `json:"annotations"`
			}
			if err := json.Unmarshal(data, &doc); err != nil {
				continue
			}
			annotationCount += len(doc.Annotations)
		}
	}

	return imageCount, annotationCount
}

// List returns all projects with freshly recomputed counters, ordered by
// last opened, most recent first.
func (s *Store) List() ([]model.Project, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, errors.New(err).
			Component("project").
			Category(errors.CategoryFileIO).
			Context("dir", s.baseDir).
			Build()
	}

	projects := []model.Project{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := s.loadMeta(entry.Name())
		if err != nil {
			s.log.Warn("skipping unreadable project metadata", "dir", entry.Name(), "error", err)
			continue
		}
		if p == nil {
			continue
		}
		p.ImageCount, p.AnnotationCount = s.countStats(p.ID)
		projects = append(projects, *p)
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].LastOpened.After(projects[j].LastOpened)
	})
	return projects, nil
}

// Create makes a new project directory with empty images/ and annotations/
// subdirectories and persists its initial metadata. Name validation is the
// caller's contract; this component accepts any non-pathological name.
func (s *Store) Create(name string) (model.Project, error) {
	now := s.now()
	id := generateID(name, now)

	// Same name within the same second: suffix rather than reuse the directory.
	if _, err := os.Stat(s.projectDir(id)); err == nil {
		base := id
		for counter := 1; ; counter++ {
			id = fmt.Sprintf("%s_%d", base, counter)
			if _, err := os.Stat(s.projectDir(id)); os.IsNotExist(err) {
				break
			}
		}
	}

	projectDir := s.projectDir(id)
	for _, dir := range []string{projectDir, filepath.Join(projectDir, "images"), filepath.Join(projectDir, "annotations")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return model.Project{}, errors.New(err).
				Component("project").
				Category(errors.CategoryFileIO).
				Context("dir", dir).
				Build()
		}
	}

	p := model.Project{
		ID:         id,
		Name:       name,
		CreatedAt:  now,
		LastOpened: now,
	}
	if err := s.saveMeta(&p); err != nil {
		return model.Project{}, err
	}

	s.log.Info("project created", "id", id, "name", name)
	return p, nil
}

// Get returns a project with recomputed counters, or ErrProjectNotFound.
func (s *Store) Get(projectID string) (model.Project, error) {
	p, err := s.loadMeta(projectID)
	if err != nil {
		return model.Project{}, err
	}
	if p == nil {
		return model.Project{}, errors.New(errors.ErrProjectNotFound).
			Component("project").
			Category(errors.CategoryNotFound).
			Context("project_id", projectID).
			Build()
	}
	p.ImageCount, p.AnnotationCount = s.countStats(projectID)
	return *p, nil
}

// Open is Get plus a persisted LastOpened bump. Every call bumps the
// timestamp, not just the first open.
func (s *Store) Open(projectID string) (model.Project, error) {
	p, err := s.loadMeta(projectID)
	if err != nil {
		return model.Project{}, err
	}
	if p == nil {
		return model.Project{}, errors.New(errors.ErrProjectNotFound).
			Component("project").
			Category(errors.CategoryNotFound).
			Context("project_id", projectID).
			Build()
	}

	p.LastOpened = s.now()
	p.ImageCount, p.AnnotationCount = s.countStats(projectID)
	if err := s.saveMeta(p); err != nil {
		return model.Project{}, err
	}
	return *p, nil
}

// Delete removes the project's entire directory tree and reports whether the
// project existed.
func (s *Store) Delete(projectID string) (bool, error) {
	projectDir := s.projectDir(projectID)
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return false, nil
	}

	if err := os.RemoveAll(projectDir); err != nil {
		return false, errors.New(err).
			Component("project").
			Category(errors.CategoryFileIO).
			Context("dir", projectDir).
			Build()
	}

	s.log.Info("project deleted", "id", projectID)
	return true, nil
}

// DataDir resolves a project id to the directory an annotation store should
// be constructed over. Callers at the boundary must additionally verify the
// resolved directory is still contained within the base directory before use.
func (s *Store) DataDir(projectID string) (string, error) {
	projectDir := s.projectDir(projectID)
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", errors.New(errors.ErrProjectNotFound).
			Component("project").
			Category(errors.CategoryNotFound).
			Context("project_id", projectID).
			Build()
	}
	return projectDir, nil
}
