package handoff

import (
	"bufio"
	"encoding/json"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/handoff/internal/policy"
	"github.com/hpungsan/handoff/internal/record"
)

// Event is one file touch reported by the upstream pruner. Events arrive
// deduplicated by path and already cut to the upstream budget.
type Event struct {
	Path string `json:"path"`          // relative to the repo root
	Abs  string `json:"abs,omitempty"` // used when Path is empty
	Op   string `json:"op"`
}

// RepoInfo identifies the repository events are resolved against.
type RepoInfo struct {
	Root string `json:"root"`
	ID   string `json:"id,omitempty"`
}

// ProcessingResult is the outcome of BuildFromEvents.
type ProcessingResult struct {
	Handoff         *Handoff
	EventsProcessed int
	EventsFiltered  int
	SecretsExcluded int
}

// Filter reasons reported in debug logs.
const (
	filterBadPath  = "bad_path"
	filterBadOp    = "unknown_op"
	filterBudget   = "budget"
	filterMissing  = "missing"
	filterNotFile  = "not_regular_file"
	filterHash     = "hash_failed"
	filterBadRef   = "invalid_ref"
	filterOutsider = "outside_root"
)

// BuildFromEvents turns file-touch events into a handoff. Secret paths are
// counted and dropped before any stat or read. Symlinked files, and files
// whose directory resolves outside the root, are filtered. Events stop being accepted
// once maxRefs refs are held or the next file would push the total past
// maxBytes; zero disables either limit.
func BuildFromEvents(events []Event, repo RepoInfo, workingDir string, maxRefs int, maxBytes int64, opts ...Option) *ProcessingResult {
	o := buildOptions(opts)
	h := New(repo.Root, workingDir, repo.ID, opts...)
	res := &ProcessingResult{Handoff: h}
	logger := o.logger.With("handoff_id", h.ID())

	// Symlinked roots (e.g. /tmp on macOS) compare by their resolved form.
	rootReal := filepath.Clean(repo.Root)
	if resolved, err := filepath.EvalSymlinks(repo.Root); err == nil {
		rootReal = resolved
	}

	var total int64
	stopped := false

	filter := func(rel, reason string) {
		res.EventsFiltered++
		logger.Debug("event filtered", "path", policy.Obfuscate(rel), "reason", reason)
	}

	for _, ev := range events {
		res.EventsProcessed++

		rel, reason := resolvePath(repo.Root, ev)
		if reason != "" {
			filter(ev.Path, reason)
			continue
		}

		if pattern, ok := policy.MatchSecret(rel); ok {
			h.AddSecretExclusion(pattern, 1)
			res.SecretsExcluded++
			logger.Debug("secret excluded", "path", policy.Obfuscate(rel), "pattern", pattern)
			continue
		}

		op, ok := NormalizeOp(ev.Op)
		if !ok {
			filter(rel, filterBadOp)
			continue
		}

		if stopped || (maxRefs > 0 && len(h.refs) >= maxRefs) {
			stopped = true
			filter(rel, filterBudget)
			continue
		}

		abs := filepath.Join(repo.Root, filepath.FromSlash(rel))
		info, err := os.Lstat(abs)
		if err != nil {
			filter(rel, filterMissing)
			continue
		}
		// Symlinks are never followed; the target could be a secret or live
		// outside the root.
		if !info.Mode().IsRegular() {
			filter(rel, filterNotFile)
			continue
		}
		if !insideRoot(rootReal, filepath.Dir(abs)) {
			filter(rel, filterOutsider)
			continue
		}
		if maxBytes > 0 && total+info.Size() > maxBytes {
			stopped = true
			filter(rel, filterBudget)
			continue
		}

		hash, err := policy.ComputeHash(abs)
		if err != nil {
			filter(rel, filterHash)
			continue
		}

		ref, err := record.NewRef(rel, hash, info.Size(), info.ModTime().Unix(), policy.ClassifyDepth(rel), op)
		if err != nil {
			filter(rel, filterBadRef)
			continue
		}
		if h.AddRef(ref) {
			total += ref.Size
		}
	}

	h.meta.FilesChanged = len(h.refs)
	h.meta.SecretsChanged = h.excluded > 0

	logger.Info("handoff built",
		"events", res.EventsProcessed,
		"refs", len(h.refs),
		"filtered", res.EventsFiltered,
		"secrets_excluded", res.SecretsExcluded,
	)
	return res
}

// resolvePath returns the slash-separated path of ev relative to root, or a
// filter reason.
func resolvePath(root string, ev Event) (string, string) {
	p := ev.Path
	if p == "" {
		p = ev.Abs
	}
	if strings.TrimSpace(p) == "" {
		return "", filterBadPath
	}

	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		if root == "" {
			return "", filterOutsider
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return "", filterOutsider
		}
		p = rel
	}

	p = filepath.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, ".."+string(filepath.Separator)) || filepath.IsAbs(p) {
		return "", filterOutsider
	}
	return filepath.ToSlash(p), ""
}

// insideRoot reports whether dir, with symlinks resolved, is rootReal or
// lies beneath it.
func insideRoot(rootReal, dir string) bool {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(rootReal, resolved)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// NormalizeOp maps upstream operation tags onto record.Op.
func NormalizeOp(s string) (record.Op, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	if s == "multiedit" {
		s = string(record.OpMultiEdit)
	}
	op := record.Op(s)
	return op, op.Valid()
}

// ReadEvents parses JSONL events from r, skipping malformed lines and lines
// without a path.
func ReadEvents(r io.Reader) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if r == nil {
			return
		}
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				var ev Event
				if jerr := json.Unmarshal([]byte(trimmed), &ev); jerr == nil && (ev.Path != "" || ev.Abs != "") {
					if !yield(ev) {
						return
					}
				}
			}
			if err != nil {
				return
			}
		}
	}
}
