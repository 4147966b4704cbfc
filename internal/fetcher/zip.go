package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP unpacks every file in the archive into destDir and returns the
// extracted paths. Vendor feeds commonly arrive as a ZIP bundling the data
// file with documentation, so callers pick the entry they want from the
// returned list. Entry names are validated against path traversal.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open archive %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		path, err := extractEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if path != "" {
			extracted = append(extracted, path)
		}
	}

	return extracted, nil
}

// entryPath resolves an archive entry name under destDir, rejecting names
// that would land outside it.
func entryPath(destDir, name string) (string, error) {
	dest := filepath.Join(destDir, name)
	rel, err := filepath.Rel(destDir, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", eris.Errorf("fetcher: archive entry %q escapes the extract dir (zip slip)", name)
	}
	return dest, nil
}

// extractEntry writes one archive entry under destDir. Directory entries
// create the directory and return an empty path.
func extractEntry(f *zip.File, destDir string) (string, error) {
	dest, err := entryPath(destDir, f.Name)
	if err != nil {
		return "", err
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return "", eris.Wrapf(err, "fetcher: create %s", dest)
		}
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", eris.Wrapf(err, "fetcher: create %s", filepath.Dir(dest))
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: open entry %s", f.Name)
	}

	out, err := os.Create(dest)
	if err != nil {
		_ = rc.Close()
		return "", eris.Wrapf(err, "fetcher: create %s", dest)
	}

	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	_ = rc.Close()
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: write %s", dest)
	}

	return dest, nil
}
