package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkspace(t *testing.T, images map[string]string) string {
	t.Helper()
	jobDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "index.html"), []byte("<html></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "manifest.json"), []byte(`{"export_id":"exp_aaaa1111"}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(jobDir, "images"), 0o755))
	for name, body := range images {
		require.NoError(t, os.WriteFile(filepath.Join(jobDir, "images", name), []byte(body), 0o644))
	}
	return jobDir
}

func entryNames(t *testing.T, archivePath string) []string {
	t.Helper()
	zr, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestBuild(t *testing.T) {
	t.Parallel()

	jobDir := writeWorkspace(t, map[string]string{
		"01.png": "png-1",
		"02.jpg": "jpg-2",
	})
	archivePath := filepath.Join(t.TempDir(), "exp_aaaa1111.zip")

	require.NoError(t, Build(jobDir, archivePath, []string{"02.jpg", "01.png"}))

	assert.Equal(t, []string{
		"index.html",
		"manifest.json",
		"images/01.png",
		"images/02.jpg",
	}, entryNames(t, archivePath))
}

func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()

	jobDir := writeWorkspace(t, map[string]string{"01.png": "png-1"})
	dir := t.TempDir()
	first := filepath.Join(dir, "first.zip")
	second := filepath.Join(dir, "second.zip")

	require.NoError(t, Build(jobDir, first, []string{"01.png"}))
	require.NoError(t, Build(jobDir, second, []string{"01.png"}))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same inputs must produce byte-identical archives")
}

func TestBuild_ReplacesExistingArchive(t *testing.T) {
	t.Parallel()

	jobDir := writeWorkspace(t, map[string]string{"01.png": "png-1"})
	archivePath := filepath.Join(t.TempDir(), "exp_aaaa1111.zip")
	require.NoError(t, os.WriteFile(archivePath, []byte("stale"), 0o644))

	require.NoError(t, Build(jobDir, archivePath, []string{"01.png"}))

	zr, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	_ = zr.Close()
}

func TestBuild_RejectsUnsafeImageNames(t *testing.T) {
	t.Parallel()

	jobDir := writeWorkspace(t, nil)
	archivePath := filepath.Join(t.TempDir(), "out.zip")

	for _, name := range []string{"../evil.png", "a/b.png", `a\b.png`, "..", ""} {
		err := Build(jobDir, archivePath, []string{name})
		assert.Error(t, err, "name %q", name)
	}
	assert.NoFileExists(t, archivePath)
}

func TestBuild_MissingWorkspaceFile(t *testing.T) {
	t.Parallel()

	jobDir := t.TempDir() // no index.html
	archivePath := filepath.Join(t.TempDir(), "out.zip")
	assert.Error(t, Build(jobDir, archivePath, nil))
}

func TestExtractImages(t *testing.T) {
	t.Parallel()

	srcDir := writeWorkspace(t, map[string]string{
		"01.png": "png-1",
		"02.jpg": "jpg-2",
	})
	archivePath := filepath.Join(t.TempDir(), "exp_aaaa1111.zip")
	require.NoError(t, Build(srcDir, archivePath, []string{"01.png", "02.jpg"}))

	destDir := t.TempDir()
	require.NoError(t, ExtractImages(archivePath, destDir))

	body, err := os.ReadFile(filepath.Join(destDir, "images", "01.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-1", string(body))

	// Only images/ entries are restored.
	assert.NoFileExists(t, filepath.Join(destDir, "index.html"))
}

func TestExtractImages_RejectsPathEscape(t *testing.T) {
	t.Parallel()

	archivePath := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(archivePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("images/../../escape.png")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	destDir := t.TempDir()
	assert.Error(t, ExtractImages(archivePath, destDir))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(destDir), "escape.png"))
}

func TestReadManifest(t *testing.T) {
	t.Parallel()

	jobDir := writeWorkspace(t, nil)
	archivePath := filepath.Join(t.TempDir(), "exp_aaaa1111.zip")
	require.NoError(t, Build(jobDir, archivePath, nil))

	raw, err := ReadManifest(archivePath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"export_id":"exp_aaaa1111"}`, string(raw))
}

func TestReadManifest_MissingEntry(t *testing.T) {
	t.Parallel()

	archivePath := filepath.Join(t.TempDir(), "bare.zip")
	f, err := os.Create(archivePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("index.html")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = ReadManifest(archivePath)
	assert.Error(t, err)
}
