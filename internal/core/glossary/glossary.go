// Package glossary implements the persistent bilingual term store: a
// curated, human-maintained table that always dominates a discovery table
// of machine-proposed terms, both backed by SQLite and mirrored into an
// in-memory keyword index for fast extraction.
package glossary

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	_ "modernc.org/sqlite"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StorageError wraps a failure to open, migrate, or query a backing store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("glossary: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// CurationError reports a malformed curated glossary file. It never aborts
// an incremental update; callers log it and continue with the next file.
type CurationError struct {
	File string
	Err  error
}

func (e *CurationError) Error() string {
	return fmt.Sprintf("glossary: curation %s: %v", e.File, e.Err)
}
func (e *CurationError) Unwrap() error { return e.Err }

var foldCaser = cases.Fold()

func foldKey(s string) string {
	return foldCaser.String(s)
}

// reverseBlacklist holds categories excluded from reverse-mode indexing.
var reverseBlacklist = map[string]bool{
	"idioms": true,
	"slang":  true,
}

// term is one row as stored in either backing table.
type term struct {
	Source   string
	Target   string
	Category string
}

// indexEntry is one in-memory keyword-index value: the original-cased
// text to report as the matched term (display) alongside its canonical
// translation (target). Keys are fold-cased for lookup, but storage and
// display always use the case the term was written with.
type indexEntry struct {
	display string
	target  string
}

// Record is the JSON shape of one entry in a curated glossary file.
type Record struct {
	SourceTerm string `json:"source_term"`
	TargetTerm string `json:"target_term"`
	Category   string `json:"category"`
}

// Store is the in-memory-plus-SQLite glossary: curated terms shadow
// discovery terms in both the persisted view and the live keyword index.
type Store struct {
	mu sync.RWMutex

	curatedDir string
	curatedDB  *sql.DB
	discovery  *sql.DB

	enableDiscovery bool
	reverse         bool

	// index maps a folded lookup key to the original-cased term plus its
	// canonical target. In forward mode the key folds the source term; in
	// reverse mode it folds one comma-split fragment of the target term.
	index map[string]indexEntry
	// matchKeys is the sorted-by-length-desc list of folded keys used for
	// leftmost-longest matching.
	matchKeys []string

	// warnHook, when set, receives near-duplicate warnings from SaveTerms.
	// Per-Store so tests and callers with independent Stores never share
	// diagnostic state.
	warnHook func(string)
}

// Option configures a new Store.
type Option func(*Store)

// WithDiscovery enables the discovery (machine-proposed) backing table.
func WithDiscovery(enabled bool) Option {
	return func(s *Store) { s.enableDiscovery = enabled }
}

// WithReverse switches the in-memory index to key on target terms instead
// of source terms, for symmetric back-translation glossaries.
func WithReverse(enabled bool) Option {
	return func(s *Store) { s.reverse = enabled }
}

// New opens (creating if absent) the curated and, if enabled, discovery
// SQLite databases and returns an unpopulated Store. Call Initialize to
// perform the incremental ingest and build the in-memory index.
func New(curatedDir, curatedDBPath, discoveryDBPath string, opts ...Option) (*Store, error) {
	s := &Store{
		curatedDir:      curatedDir,
		enableDiscovery: true,
		index:           make(map[string]indexEntry),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := openDB(curatedDBPath)
	if err != nil {
		return nil, &StorageError{Op: "open curated db", Err: err}
	}
	s.curatedDB = db

	if s.enableDiscovery {
		ddb, err := openDB(discoveryDBPath)
		if err != nil {
			db.Close()
			return nil, &StorageError{Op: "open discovery db", Err: err}
		}
		s.discovery = ddb
	}

	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	schema := `
	CREATE TABLE IF NOT EXISTS terms (
		source_term TEXT PRIMARY KEY,
		target_term TEXT,
		category TEXT,
		source_file TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS file_hashes (
		filename TEXT PRIMARY KEY,
		file_hash TEXT,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the backing database handles.
func (s *Store) Close() error {
	var firstErr error
	if s.discovery != nil {
		if err := s.discovery.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.curatedDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Initialize performs the incremental curated ingest and loads both
// backing stores into memory, discovery first so curated overlays it.
func (s *Store) Initialize(log func(string)) error {
	if _, err := s.IncrementalUpdate(log); err != nil {
		return err
	}
	return s.loadToMemory()
}

// IncrementalUpdate enumerates the curated directory recursively; for each
// *.json file, it compares a content digest to the recorded value and
// reingests only changed files. Per-file failures are logged and skipped.
func (s *Store) IncrementalUpdate(log func(string)) (int, error) {
	if log == nil {
		log = func(string) {}
	}

	if err := os.MkdirAll(s.curatedDir, 0o755); err != nil {
		return 0, &StorageError{Op: "mkdir curated dir", Err: err}
	}

	processed := make(map[string]string)
	rows, err := s.curatedDB.Query("SELECT filename, file_hash FROM file_hashes")
	if err != nil {
		return 0, &StorageError{Op: "read file_hashes", Err: err}
	}
	for rows.Next() {
		var fn, h string
		if err := rows.Scan(&fn, &h); err != nil {
			rows.Close()
			return 0, &StorageError{Op: "scan file_hashes", Err: err}
		}
		processed[fn] = h
	}
	rows.Close()

	updated := 0
	err = filepath.Walk(s.curatedDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log(fmt.Sprintf("glossary: walk error at %s: %v", path, err))
			return nil
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}

		rel, relErr := filepath.Rel(s.curatedDir, path)
		if relErr != nil {
			rel = path
		}

		digest, hashErr := fileDigest(path)
		if hashErr != nil {
			log((&CurationError{File: rel, Err: hashErr}).Error())
			return nil
		}
		if processed[rel] == digest {
			return nil
		}

		if err := s.ingestFile(path, rel); err != nil {
			log((&CurationError{File: rel, Err: err}).Error())
			return nil
		}

		if _, err := s.curatedDB.Exec(`
			INSERT INTO file_hashes (filename, file_hash, processed_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(filename) DO UPDATE SET file_hash=excluded.file_hash, processed_at=CURRENT_TIMESTAMP
		`, rel, digest); err != nil {
			log(fmt.Sprintf("glossary: record hash for %s: %v", rel, err))
			return nil
		}
		updated++
		return nil
	})
	if err != nil {
		return updated, &StorageError{Op: "walk curated dir", Err: err}
	}

	return updated, nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) ingestFile(path, rel string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("not a JSON array of term records: %w", err)
	}

	for _, r := range records {
		source := strings.TrimSpace(r.SourceTerm)
		target := strings.TrimSpace(r.TargetTerm)
		category := r.Category
		if category == "" {
			category = "General"
		}
		if source == "" || target == "" {
			continue
		}
		if _, err := s.curatedDB.Exec(`
			INSERT INTO terms (source_term, target_term, category, source_file, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(source_term) DO UPDATE SET
				target_term=excluded.target_term,
				category=excluded.category,
				source_file=excluded.source_file,
				updated_at=CURRENT_TIMESTAMP
		`, source, target, category, rel); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadToMemory() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = make(map[string]indexEntry)

	if s.enableDiscovery && s.discovery != nil {
		if err := s.loadTableLocked(s.discovery); err != nil {
			return &StorageError{Op: "load discovery into memory", Err: err}
		}
	}
	if err := s.loadTableLocked(s.curatedDB); err != nil {
		return &StorageError{Op: "load curated into memory", Err: err}
	}

	s.rebuildMatchKeysLocked()
	return nil
}

func (s *Store) loadTableLocked(db *sql.DB) error {
	rows, err := db.Query("SELECT source_term, target_term, category FROM terms")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var t term
		if err := rows.Scan(&t.Source, &t.Target, &t.Category); err != nil {
			return err
		}
		s.indexTermLocked(t)
	}
	return rows.Err()
}

// indexTermLocked adds one term row to the in-memory index, honoring
// reverse mode's key-on-target and comma-fragment splitting. The lookup
// key is always fold-cased, but the stored display text keeps the
// original case it was written with.
func (s *Store) indexTermLocked(t term) {
	if t.Source == "" || t.Target == "" {
		return
	}

	if !s.reverse {
		s.index[foldKey(t.Source)] = indexEntry{display: t.Source, target: t.Target}
		return
	}

	if reverseBlacklist[strings.ToLower(t.Category)] {
		return
	}
	for _, fragment := range splitReverseFragments(t.Target) {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		s.index[foldKey(fragment)] = indexEntry{display: fragment, target: t.Source}
	}
}

// splitReverseFragments splits on both ASCII comma and the fullwidth comma.
func splitReverseFragments(target string) []string {
	normalized := strings.ReplaceAll(target, "，", ",")
	return strings.Split(normalized, ",")
}

func (s *Store) rebuildMatchKeysLocked() {
	keys := make([]string, 0, len(s.index))
	for k := range s.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	s.matchKeys = keys
}

// ExtractTerms finds every known term occurring in text and returns the
// distinct matches as source→target pairs, matching case-insensitively
// and preferring the longest candidate at each position. The returned
// sources keep the original case they were written with, never the
// fold-cased lookup key.
func (s *Store) ExtractTerms(text string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	folded := foldKey(text)
	found := make(map[string]indexEntry)

	for pos := 0; pos < len(folded); pos++ {
		for _, key := range s.matchKeys {
			if key != "" && strings.HasPrefix(folded[pos:], key) {
				found[key] = s.index[key]
				pos += len(key) - 1
				break
			}
		}
	}

	result := make(map[string]string, len(found))
	for _, entry := range found {
		result[entry.display] = entry.target
	}
	return result
}

// SaveTerms persists newly discovered terms into the discovery table and
// the in-memory index. Terms already shadowed by curated, or already
// present in discovery with an identical target, are skipped.
func (s *Store) SaveTerms(terms map[string]string, category string) error {
	if len(terms) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	curatedKeys, err := s.curatedKeySetLocked()
	if err != nil {
		return &StorageError{Op: "read curated keys", Err: err}
	}

	var existingDiscovery map[string]string
	if s.enableDiscovery && s.discovery != nil {
		existingDiscovery, err = s.discoveryMapLocked()
		if err != nil {
			return &StorageError{Op: "read discovery terms", Err: err}
		}
	}

	for source, target := range terms {
		sc := strings.TrimSpace(source)
		tc := strings.TrimSpace(target)
		if sc == "" || tc == "" {
			continue
		}
		sl := foldKey(sc)

		if curatedKeys[sl] {
			continue
		}
		if existing, ok := existingDiscovery[sl]; ok && existing == tc {
			continue
		}

		s.warnNearDuplicateLocked(sc)

		if s.enableDiscovery && s.discovery != nil {
			if _, err := s.discovery.Exec(`
				INSERT INTO terms (source_term, target_term, category, source_file, updated_at)
				VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(source_term) DO UPDATE SET
					target_term=excluded.target_term,
					category=excluded.category,
					updated_at=CURRENT_TIMESTAMP
			`, sc, tc, category, "dynamic_cache"); err != nil {
				return &StorageError{Op: "upsert discovery term", Err: err}
			}
		}

		if _, present := s.index[sl]; !present {
			s.index[sl] = indexEntry{display: sc, target: tc}
		}
	}

	s.rebuildMatchKeysLocked()
	return nil
}

func (s *Store) curatedKeySetLocked() (map[string]bool, error) {
	rows, err := s.curatedDB.Query("SELECT source_term FROM terms")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, err
		}
		keys[foldKey(source)] = true
	}
	return keys, rows.Err()
}

func (s *Store) discoveryMapLocked() (map[string]string, error) {
	rows, err := s.discovery.Query("SELECT source_term, target_term FROM terms")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := make(map[string]string)
	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, err
		}
		m[foldKey(source)] = target
	}
	return m, rows.Err()
}

// nearDuplicateThreshold is the Levenshtein similarity above which a newly
// saved term is considered a likely near-duplicate of an existing one.
const nearDuplicateThreshold = 0.85

// warnNearDuplicateLocked logs (via the Store's warn hook) when the
// incoming source term is suspiciously close to an already-indexed one,
// catching LLM-introduced near-duplicates like singular/plural drift.
func (s *Store) warnNearDuplicateLocked(source string) {
	if s.warnHook == nil {
		return
	}
	folded := foldKey(source)
	for existing := range s.index {
		if existing == folded {
			continue
		}
		if similarity(folded, existing) >= nearDuplicateThreshold {
			s.warnHook(fmt.Sprintf("glossary: new term %q is a near-duplicate of existing key %q", source, existing))
			return
		}
	}
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// SetWarnHook installs a callback for near-duplicate term warnings on this
// Store. Tests and callers that don't care about this diagnostic leave it
// unset.
func (s *Store) SetWarnHook(fn func(string)) { s.warnHook = fn }

// Size returns the number of terms currently held in memory.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}
