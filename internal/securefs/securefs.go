// Package securefs confines filesystem access to one project's data
// directory using os.Root. Every project the HTTP layer touches gets its
// own sandbox, so a crafted filename can never read or delete files
// belonging to another project or to the host.
package securefs

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jviitala/labelkit/internal/errors"
	"github.com/jviitala/labelkit/internal/logging"
)

// Sentinel errors surfaced by path validation.
var (
	ErrPathTraversal  = errors.NewStd("path escapes the sandbox")
	ErrInvalidPath    = errors.NewStd("invalid path")
	ErrNotRegularFile = errors.NewStd("not a regular file")
)

// IsPathWithinBase reports whether targetPath is basePath or a descendant
// of it, after resolving both to absolute cleaned paths and following
// symlinks where the paths exist.
func IsPathWithinBase(basePath, targetPath string) (bool, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return false, fmt.Errorf("failed to resolve base path: %w", err)
	}
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false, fmt.Errorf("failed to resolve target path: %w", err)
	}

	if resolved, err := filepath.EvalSymlinks(absBase); err == nil {
		absBase = resolved
	}
	if resolved, err := filepath.EvalSymlinks(absTarget); err == nil {
		absTarget = resolved
	}

	absBase = filepath.Clean(absBase)
	absTarget = filepath.Clean(absTarget)
	return absTarget == absBase ||
		strings.HasPrefix(absTarget, absBase+string(filepath.Separator)), nil
}

// IsPathValidWithinBase is IsPathWithinBase returning ErrPathTraversal
// when the target falls outside the base directory.
func IsPathValidWithinBase(baseDir, path string) error {
	isWithin, err := IsPathWithinBase(baseDir, path)
	if err != nil {
		return err
	}
	if !isWithin {
		return fmt.Errorf("%w: %s is outside %s", ErrPathTraversal, path, baseDir)
	}
	return nil
}

// SecureFS restricts all operations to paths under its base directory.
// os.Root enforces the boundary at the OS level, covering symlinks and
// rename races that string comparison alone would miss.
type SecureFS struct {
	baseDir string
	root    *os.Root
	log     *slog.Logger
}

// New opens a sandbox rooted at baseDir, creating the directory if needed.
func New(baseDir string) (*SecureFS, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, errors.New(err).
			Component("securefs").
			Category(errors.CategoryFileIO).
			Context("base_dir", baseDir).
			Build()
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, errors.New(err).
			Component("securefs").
			Category(errors.CategoryFileIO).
			Context("base_dir", absPath).
			Build()
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, errors.New(err).
			Component("securefs").
			Category(errors.CategoryFileIO).
			Context("base_dir", absPath).
			Build()
	}

	return &SecureFS{
		baseDir: absPath,
		root:    root,
		log:     logging.ForService("securefs"),
	}, nil
}

// BaseDir returns the absolute base directory of the sandbox.
func (sfs *SecureFS) BaseDir() string {
	return sfs.baseDir
}

// Close releases the underlying root handle.
func (sfs *SecureFS) Close() error {
	if sfs.root != nil {
		return sfs.root.Close()
	}
	return nil
}

// ValidateRelativePath cleans relPath and rejects absolute paths and any
// path that would climb above the sandbox root.
func (sfs *SecureFS) ValidateRelativePath(relPath string) (string, error) {
	cleaned := filepath.Clean(relPath)

	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%w: %q must be relative", ErrInvalidPath, relPath)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, relPath)
	}

	return strings.TrimPrefix(cleaned, string(filepath.Separator)), nil
}

// Open opens a file for reading. relPath is relative to the base directory.
func (sfs *SecureFS) Open(relPath string) (*os.File, error) {
	validated, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return nil, err
	}
	return sfs.root.Open(validated)
}

// Stat returns file info for a path inside the sandbox.
func (sfs *SecureFS) Stat(relPath string) (fs.FileInfo, error) {
	validated, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return nil, err
	}
	return sfs.root.Stat(validated)
}

// Exists reports whether a path exists inside the sandbox. Validation
// failures count as absent.
func (sfs *SecureFS) Exists(relPath string) bool {
	_, err := sfs.Stat(relPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) &&
		!errors.Is(err, ErrPathTraversal) && !errors.Is(err, ErrInvalidPath) {
		sfs.log.Warn("unexpected error checking path", "path", relPath, "error", err)
	}
	return err == nil
}

// ReadFile reads a whole file from inside the sandbox.
func (sfs *SecureFS) ReadFile(relPath string) ([]byte, error) {
	f, err := sfs.Open(relPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// WriteFile creates or truncates a file inside the sandbox.
func (sfs *SecureFS) WriteFile(relPath string, data []byte, perm os.FileMode) error {
	validated, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return err
	}
	f, err := sfs.root.OpenFile(validated, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Remove removes a file inside the sandbox.
func (sfs *SecureFS) Remove(relPath string) error {
	validated, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return err
	}
	return sfs.root.Remove(validated)
}

// ReadDir lists a directory inside the sandbox.
func (sfs *SecureFS) ReadDir(relPath string) ([]os.DirEntry, error) {
	validated, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return nil, err
	}
	if validated == "" {
		validated = "."
	}

	dir, err := sfs.root.Open(validated)
	if err != nil {
		return nil, err
	}
	defer dir.Close()
	return dir.ReadDir(0)
}

// ServeFile streams a sandboxed file as an HTTP response with a
// content type derived from the file extension. It replaces
// echo.Context.File for anything under user-controlled names.
func (sfs *SecureFS) ServeFile(c echo.Context, relPath string) error {
	validated, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return mapOpenErrorToHTTP(err, relPath)
	}

	f, err := sfs.root.Open(validated)
	if err != nil {
		return mapOpenErrorToHTTP(err, validated)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to stat file").SetInternal(err)
	}
	if !stat.Mode().IsRegular() {
		return mapOpenErrorToHTTP(ErrNotRegularFile, validated)
	}

	if c.Response().Header().Get(echo.HeaderContentType) == "" {
		c.Response().Header().Set(echo.HeaderContentType, contentType(validated))
	}
	http.ServeContent(c.Response(), c.Request(), filepath.Base(validated), stat.ModTime(), f)
	return nil
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func mapOpenErrorToHTTP(err error, path string) *echo.HTTPError {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("file not found: %s", path))
	case errors.Is(err, fs.ErrPermission):
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	case errors.Is(err, ErrPathTraversal), errors.Is(err, ErrInvalidPath):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid file path").SetInternal(err)
	case errors.Is(err, ErrNotRegularFile):
		return echo.NewHTTPError(http.StatusForbidden, "not a regular file")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "error serving file").SetInternal(err)
	}
}
