package export

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"github.com/jviitala/labelkit/internal/errors"
)

// zipTree writes every regular file under rootDir into a deflate-compressed
// archive at zipPath, with entry names relative to rootDir.
func zipTree(rootDir, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryArchive).
			Context("path", zipPath).
			Build()
	}
	defer out.Close()

	w := zip.NewWriter(out)
	err = filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		// Zip entries always use forward slashes.
		entry, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(entry, f)
		return err
	})
	if err != nil {
		w.Close()
		return errors.New(err).
			Component("export").
			Category(errors.CategoryArchive).
			Context("path", zipPath).
			Build()
	}

	if err := w.Close(); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryArchive).
			Context("path", zipPath).
			Build()
	}
	return out.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", src).
			Build()
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", dst).
			Build()
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", dst).
			Build()
	}
	return out.Close()
}
