package glossary

import (
	"os"
	"path/filepath"

	"github.com/mholt/archiver/v3"
)

// ExportBundle archives the curated glossary directory plus both SQLite
// backing files into a single tar+gzip bundle at destPath, following the
// teacher's archiver.NewTarXz usage in internal/core/dependencies/manager.go
// (here NewTarGz, since the bundle is written, not just unpacked).
func (s *Store) ExportBundle(destPath, curatedDBPath, discoveryDBPath string) error {
	sources := []string{s.curatedDir}
	if fileExists(curatedDBPath) {
		sources = append(sources, curatedDBPath)
	}
	if s.enableDiscovery && fileExists(discoveryDBPath) {
		sources = append(sources, discoveryDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return &StorageError{Op: "mkdir bundle destination", Err: err}
	}

	tgz := archiver.NewTarGz()
	if err := tgz.Archive(sources, destPath); err != nil {
		return &StorageError{Op: "archive glossary bundle", Err: err}
	}
	return nil
}

// ImportBundle extracts a bundle previously written by ExportBundle into
// destDir, restoring the curated directory and SQLite files verbatim. The
// Store must be re-opened (New + Initialize) after a successful import to
// pick up the restored data.
func ImportBundle(bundlePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &StorageError{Op: "mkdir bundle import destination", Err: err}
	}
	if err := archiver.Unarchive(bundlePath, destDir); err != nil {
		return &StorageError{Op: "unarchive glossary bundle", Err: err}
	}
	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
