package glossary

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExportImportBundleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	writeCuratedFile(t, s, "terms.json", []Record{
		{SourceTerm: "Knight Rider", TargetTerm: "霹雳游侠", Category: "Title"},
	})
	if err := s.Initialize(nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	bundlePath := filepath.Join(t.TempDir(), "glossary.tar.gz")
	if err := s.ExportBundle(bundlePath, "", ""); err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}
	if _, err := os.Stat(bundlePath); err != nil {
		t.Fatalf("expected bundle file to exist: %v", err)
	}

	restoreDir := t.TempDir()
	if err := ImportBundle(bundlePath, restoreDir); err != nil {
		t.Fatalf("ImportBundle: %v", err)
	}

	restored, err := New(filepath.Join(restoreDir, filepath.Base(s.curatedDir)), filepath.Join(t.TempDir(), "c.db"), filepath.Join(t.TempDir(), "d.db"))
	if err != nil {
		t.Fatalf("New (restored): %v", err)
	}
	defer restored.Close()
	if err := restored.Initialize(nil); err != nil {
		t.Fatalf("Initialize (restored): %v", err)
	}

	got := restored.ExtractTerms("Knight Rider is on TV.")
	if got["Knight Rider"] != "霹雳游侠" {
		t.Errorf("expected restored curated term, got %+v", got)
	}
}
