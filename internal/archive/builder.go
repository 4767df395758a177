// Package archive packages a finished export into a reproducible zip and
// restores preserved images from an existing archive for retry passes.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	indexEntry    = "index.html"
	manifestEntry = "manifest.json"
	imagesPrefix  = "images/"
)

// Build writes a zip at archivePath containing jobDir's index.html,
// manifest.json, and the named image files from jobDir/images. Entries are
// written in a fixed order with zeroed modification times so two builds of
// the same inputs are byte-identical.
func Build(jobDir, archivePath string, images []string) error {
	for _, name := range images {
		if !safeEntryName(name) {
			return fmt.Errorf("unsafe image filename %q", name)
		}
	}

	ordered := make([]string, len(images))
	copy(ordered, images)
	sort.Strings(ordered)

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), ".archive-*.zip")
	if err != nil {
		return fmt.Errorf("create archive temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	zw := zip.NewWriter(tmp)

	writeErr := func() error {
		if err := addFile(zw, indexEntry, filepath.Join(jobDir, indexEntry)); err != nil {
			return err
		}
		if err := addFile(zw, manifestEntry, filepath.Join(jobDir, manifestEntry)); err != nil {
			return err
		}
		for _, name := range ordered {
			src := filepath.Join(jobDir, "images", name)
			if err := addFile(zw, imagesPrefix+name, src); err != nil {
				return err
			}
		}
		return nil
	}()
	if writeErr != nil {
		_ = zw.Close()
		_ = tmp.Close()
		return writeErr
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive temp file: %w", err)
	}

	// Rename last so a concurrent download never sees a half-written zip.
	if err := os.Rename(tmpName, archivePath); err != nil {
		return fmt.Errorf("move archive into place: %w", err)
	}
	return nil
}

// ExtractImages restores the archive's images/ entries into jobDir/images.
// Retry passes call this to recover images downloaded in earlier passes after
// the job dir has been cleaned up. Entries with unsafe names are rejected.
func ExtractImages(archivePath, jobDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	destDir := filepath.Join(jobDir, "images")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create images dir: %w", err)
	}

	for _, entry := range zr.File {
		name, ok := strings.CutPrefix(entry.Name, imagesPrefix)
		if !ok {
			continue
		}
		if !safeEntryName(name) {
			return fmt.Errorf("unsafe archive entry %q", entry.Name)
		}
		if err := extractOne(entry, filepath.Join(destDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// addFile appends one entry using a Store-free deflate header with a zeroed
// timestamp.
func addFile(zw *zip.Writer, entryName, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", entryName, err)
	}
	defer func() { _ = src.Close() }()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   entryName,
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("add %s: %w", entryName, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write %s: %w", entryName, err)
	}
	return nil
}

func extractOne(entry *zip.File, destPath string) error {
	r, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", entry.Name, err)
	}
	defer func() { _ = r.Close() }()

	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		_ = dst.Close()
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	return dst.Close()
}

// safeEntryName accepts plain filenames only, never paths.
func safeEntryName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Base(name) == name
}
