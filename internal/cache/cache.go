package cache

import (
	"bytes"
	"context"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	kerrors "github.com/PolarWolf314/pantry/internal/errors"
	"github.com/PolarWolf314/pantry/internal/utils"

	"github.com/opencontainers/go-digest"
)

const (
	// LogFile is the name of the record log inside the cache directory.
	LogFile = "integrity.jsonl"
	// ContentDir holds downloaded artifact content.
	ContentDir = "cookbooks"
)

// Record is what the cache knows about one synced artifact.
type Record struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	ContentHash  string    `json:"hash"`
	LastSyncedAt time.Time `json:"synced_at"`
}

// Store is the on-disk integrity cache.
type Store struct {
	dir string

	mu      sync.RWMutex
	records map[string]Record
	lines   int
}

// Open loads the cache rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating cache directory %s: %w", kerrors.ErrSync, dir, err)
	}

	s := &Store{dir: dir, records: make(map[string]Record)}

	data, err := os.ReadFile(s.logPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: reading cache log: %w", kerrors.ErrSync, err)
	}
	s.records, s.lines = parseRecords(data)

	if s.lines > 2*len(s.records) {
		if err := s.compact(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Get returns the record for name, if any.
func (s *Store) Get(name string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[name]
	return r, ok
}

// Put stores r, replacing any record with the same name. The record is
// durable once Put returns.
func (s *Store) Put(r Record) error {
	if r.Name == "" {
		return fmt.Errorf("%w: record has no name", kerrors.ErrSync)
	}
	if r.LastSyncedAt.IsZero() {
		r.LastSyncedAt = time.Now()
	}
	r.LastSyncedAt = r.LastSyncedAt.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(r)
}

func (s *Store) putLocked(r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: encoding record for %s: %w", kerrors.ErrSync, r.Name, err)
	}
	if err := s.append(line); err != nil {
		return err
	}
	s.records[r.Name] = r
	s.lines++
	return nil
}

// IsStale reports whether the cached record for name does not match the
// server's advertised version and content hash. An empty hash means the
// server did not advertise one, and only the version is compared. A hash in a
// different algorithm than the record's is checked against the stored content.
func (s *Store) IsStale(name, version, hash string) bool {
	r, ok := s.Get(name)
	if !ok || r.Version != version {
		return true
	}
	if hash == "" || r.ContentHash == hash {
		return false
	}

	want, err := digest.Parse(hash)
	if err != nil {
		return true
	}
	if have, err := digest.Parse(r.ContentHash); err == nil && have.Algorithm() == want.Algorithm() {
		return true
	}
	r.ContentHash = want.String()
	return s.Verify(r) != nil
}

// Commit writes data as the content of name at version and records it.
// The content is on disk before the record is, so a record never points at
// missing content. If ctx is done before the content is moved into place,
// nothing is written and the context error is returned.
func (s *Store) Commit(ctx context.Context, name, version string, data []byte) (Record, error) {
	if name == "" {
		return Record{}, fmt.Errorf("%w: record has no name", kerrors.ErrSync)
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	staged, err := utils.StageFile(s.ContentPath(name, version), data, 0600)
	if err != nil {
		return Record{}, fmt.Errorf("%w: storing %s %s: %w", kerrors.ErrSync, name, version, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		staged.Discard()
		return Record{}, err
	}
	if err := staged.Commit(); err != nil {
		return Record{}, fmt.Errorf("%w: storing %s %s: %w", kerrors.ErrSync, name, version, err)
	}

	r := Record{
		Name:         name,
		Version:      version,
		ContentHash:  digest.FromBytes(data).String(),
		LastSyncedAt: time.Now().UTC(),
	}
	if err := s.putLocked(r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Verify checks that the stored content of r still hashes to r.ContentHash.
func (s *Store) Verify(r Record) error {
	want, err := digest.Parse(r.ContentHash)
	if err != nil {
		return fmt.Errorf("%w: %s has invalid hash %q: %w", kerrors.ErrIntegrity, r.Name, r.ContentHash, err)
	}

	f, err := os.Open(s.ContentPath(r.Name, r.Version))
	if err != nil {
		return fmt.Errorf("%w: opening content of %s: %w", kerrors.ErrIntegrity, r.Name, err)
	}
	defer f.Close()

	verifier := want.Verifier()
	if _, err := io.Copy(verifier, f); err != nil {
		return fmt.Errorf("%w: reading content of %s: %w", kerrors.ErrIntegrity, r.Name, err)
	}
	if !verifier.Verified() {
		return fmt.Errorf("%w: content of %s %s does not match %s", kerrors.ErrIntegrity, r.Name, r.Version, r.ContentHash)
	}
	return nil
}

// Records returns every live record sorted by name.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ContentPath returns where the content of name at version is stored.
func (s *Store) ContentPath(name, version string) string {
	return filepath.Join(s.dir, ContentDir, contentFileName(name, version))
}

func (s *Store) logPath() string {
	return filepath.Join(s.dir, LogFile)
}

func (s *Store) append(line []byte) error {
	f, err := os.OpenFile(s.logPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("%w: opening cache log: %w", kerrors.ErrSync, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("%w: writing cache log: %w", kerrors.ErrSync, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: syncing cache log: %w", kerrors.ErrSync, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing cache log: %w", kerrors.ErrSync, err)
	}
	return nil
}

// compact rewrites the log with one line per live record.
func (s *Store) compact() error {
	var buf bytes.Buffer
	for _, r := range s.Records() {
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("%w: encoding record for %s: %w", kerrors.ErrSync, r.Name, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := utils.WriteFileAtomic(s.logPath(), buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("%w: compacting cache log: %w", kerrors.ErrSync, err)
	}
	s.lines = len(s.records)
	return nil
}

// parseRecords replays a record log. Malformed lines are skipped.
func parseRecords(data []byte) (map[string]Record, int) {
	records := make(map[string]Record)
	lines := 0

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		lines++

		var r Record
		if err := json.Unmarshal(line, &r); err != nil || r.Name == "" {
			continue
		}
		records[r.Name] = r
	}
	return records, lines
}

// contentFileName stores each name in its own directory with one file per
// version. Both parts are path-escaped, so distinct pairs never share a file
// and no pair can leave ContentDir.
func contentFileName(name, version string) string {
	return filepath.Join(escapeSegment(name), escapeSegment(version))
}

func escapeSegment(s string) string {
	switch s {
	case "":
		return "%"
	case ".", "..":
		return strings.ReplaceAll(s, ".", "%2E")
	}
	return url.PathEscape(s)
}
