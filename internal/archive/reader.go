package archive

import (
	"archive/zip"
	"fmt"
	"io"
)

// maxManifestBytes caps manifest reads from untrusted archives.
const maxManifestBytes = 4 << 20

// ReadManifest returns the raw manifest.json bytes from an export archive.
func ReadManifest(archivePath string) ([]byte, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	for _, entry := range zr.File {
		if entry.Name != manifestEntry {
			continue
		}
		r, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("open manifest entry: %w", err)
		}
		defer func() { _ = r.Close() }()

		data, err := io.ReadAll(io.LimitReader(r, maxManifestBytes))
		if err != nil {
			return nil, fmt.Errorf("read manifest entry: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("archive %s has no manifest.json entry", archivePath)
}
