// Package store persists handoffs and their packs as flat files under one
// root directory:
//
//	<root>/handoff-<id>.jsonl
//	<root>/handoff-<id>/packs/pack_{s,m,f}.json
//	<root>/latest.jsonl
//	<root>/audit.jsonl
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/hpungsan/handoff/internal/errors"
	"github.com/hpungsan/handoff/internal/handoff"
	"github.com/hpungsan/handoff/internal/pack"
	"github.com/hpungsan/handoff/internal/record"
)

const (
	handoffPrefix = "handoff-"
	handoffExt    = ".jsonl"
	latestFile    = "latest.jsonl"
	auditFile     = "audit.jsonl"
	packsDir      = "packs"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateID rejects ids that are unsafe to embed in a file name.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.NewInvalidID()
	}
	return nil
}

// Pointer is the content of the latest pointer file.
type Pointer struct {
	ID   string `json:"id"`
	Root string `json:"r"`
}

// Store reads and writes handoffs under a single root. Writes from one
// process are serialized; concurrent writers in separate processes are not
// coordinated.
type Store struct {
	root   string
	logger *slog.Logger

	mu sync.Mutex
}

// New returns a Store rooted at root, creating the directory if needed.
func New(root string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.NewInvalidRequest("store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to resolve store root: %w", err))
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create store root: %w", err))
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{root: abs, logger: logger}, nil
}

// Root returns the absolute store root.
func (s *Store) Root() string { return s.root }

// HandoffPath returns the record file path for id.
func (s *Store) HandoffPath(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, handoffPrefix+id+handoffExt), nil
}

// HandoffDir returns the per-handoff directory for id.
func (s *Store) HandoffDir(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, handoffPrefix+id), nil
}

// PackPath returns the pack file path for id and depth.
func (s *Store) PackPath(id string, depth record.Depth) (string, error) {
	dir, err := s.HandoffDir(id)
	if err != nil {
		return "", err
	}
	if !depth.Valid() {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown depth %q", depth))
	}
	return filepath.Join(dir, packsDir, "pack_"+depth.Short()+".json"), nil
}

// LatestPath returns the latest pointer file path.
func (s *Store) LatestPath() string { return filepath.Join(s.root, latestFile) }

// AuditPath returns the store audit log path.
func (s *Store) AuditPath() string { return filepath.Join(s.root, auditFile) }

// Save writes h to its record file and returns the path.
func (s *Store) Save(h *handoff.Handoff) (string, error) {
	path, err := s.HandoffPath(h.ID())
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := WriteHandoff(h, path); err != nil {
		return "", err
	}
	s.logger.Debug("handoff written", "id", h.ID(), "refs", len(h.Refs()))
	return path, nil
}

// Open loads the handoff with id. Invalid ids and missing or unreadable
// files report false.
func (s *Store) Open(id string, opts ...handoff.Option) (*handoff.Handoff, bool) {
	path, err := s.HandoffPath(id)
	if err != nil {
		return nil, false
	}
	return LoadHandoff(path, opts...)
}

// Exists reports whether a record file for id is present.
func (s *Store) Exists(id string) bool {
	path, err := s.HandoffPath(id)
	if err != nil {
		return false
	}
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}

// SavePacks writes every pack in set under the handoff's pack directory.
func (s *Store) SavePacks(set pack.Set) error {
	for _, p := range set.All() {
		if err := s.SavePack(pack.ToInjectable(p)); err != nil {
			return err
		}
	}
	return nil
}

// SavePack writes one injectable pack to the path named by its id and depth.
func (s *Store) SavePack(inj pack.Injectable) error {
	path, err := s.PackPath(inj.ID, inj.Stats.Depth)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return WritePack(inj, path)
}

// OpenPack loads the stored pack for id and depth.
func (s *Store) OpenPack(id string, depth record.Depth) (pack.Injectable, bool) {
	path, err := s.PackPath(id, depth)
	if err != nil {
		return pack.Injectable{}, false
	}
	inj, ok := LoadPack(path)
	if !ok || inj.ID != id || inj.Stats.Depth != depth {
		return pack.Injectable{}, false
	}
	return inj, true
}

// UpdateLatestPointer replaces the latest pointer with id.
func (s *Store) UpdateLatestPointer(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	data, err := json.Marshal(Pointer{ID: id, Root: s.root})
	if err != nil {
		return errors.NewInternal(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.LatestPath(), func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}

// LatestID returns the id in the latest pointer. A missing or malformed
// pointer, or one naming an invalid id, reports false.
func (s *Store) LatestID() (string, bool) {
	f, err := openNoFollow(s.LatestPath(), os.O_RDONLY, 0)
	if err != nil {
		return "", false
	}
	defer f.Close()

	var p Pointer
	if err := json.NewDecoder(io.LimitReader(f, 4096)).Decode(&p); err != nil {
		return "", false
	}
	if ValidateID(p.ID) != nil {
		return "", false
	}
	return p.ID, true
}

// List returns the ids of stored handoffs, newest first. Ids are ULIDs, so
// lexical order is creation order; foreign ids sort among them by name.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewInternal(err)
	}

	var ids []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, handoffPrefix) || !strings.HasSuffix(name, handoffExt) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, handoffPrefix), handoffExt)
		if ValidateID(id) == nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	slices.Reverse(ids)
	return ids, nil
}

// Remove deletes the record file and pack directory for id.
func (s *Store) Remove(id string) error {
	path, err := s.HandoffPath(id)
	if err != nil {
		return err
	}
	dir, _ := s.HandoffDir(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFound(id)
		}
		return errors.NewInternal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.NewInternal(err)
	}
	s.logger.Debug("handoff removed", "id", id)
	return nil
}

// AppendAudit appends one audit record to the store audit log.
func (s *Store) AppendAudit(a record.Audit) error {
	if !a.Run.Valid() {
		return errors.NewInvalidRequest(fmt.Sprintf("unknown audit run %q", a.Run))
	}
	line := record.Serialize(a)

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := openNoFollow(s.AuditPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidRequest) {
			return err
		}
		return errors.NewInternal(err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, line+"\n"); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Audits returns the audit log in append order, skipping malformed lines.
func (s *Store) Audits() []record.Audit {
	var out []record.Audit
	for rec := range record.ParseFile(s.AuditPath()) {
		if a, ok := rec.(record.Audit); ok {
			out = append(out, a)
		}
	}
	return out
}
