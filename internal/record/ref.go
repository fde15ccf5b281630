package record

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hpungsan/handoff/internal/errors"
)

// MaxFutureSkew is how far into the future a modification time may lie.
const MaxFutureSkew = 24 * time.Hour

var hashPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

// Ref is one tracked file. Values built through NewRef or Parse always
// satisfy the field constraints; zero values do not.
type Ref struct {
	Path  string // relative to the repository root, slash-separated
	Hash  string // 8 lowercase hex chars
	Size  int64
	Mtime int64 // Unix seconds
	Depth Depth
	Op    Op
}

// NewRef validates every field and returns the reference, or an INVALID_REF
// error naming the first field that fails.
func NewRef(path, hash string, size, mtime int64, depth Depth, op Op) (Ref, error) {
	return newRefAt(path, hash, size, mtime, depth, op, time.Now())
}

func newRefAt(path, hash string, size, mtime int64, depth Depth, op Op, now time.Time) (Ref, error) {
	r := Ref{Path: path, Hash: hash, Size: size, Mtime: mtime, Depth: depth, Op: op}
	if err := r.validate(now); err != nil {
		return Ref{}, err
	}
	return r, nil
}

func (r Ref) validate(now time.Time) error {
	if strings.TrimSpace(r.Path) == "" {
		return errors.NewInvalidRef("path", "must not be empty")
	}
	if !utf8.ValidString(r.Path) {
		return errors.NewInvalidRef("path", "must be valid UTF-8")
	}
	if filepath.IsAbs(r.Path) || strings.HasPrefix(r.Path, "/") {
		return errors.NewInvalidRef("path", "must be relative to the repository root")
	}
	if !ValidHash(r.Hash) {
		return errors.NewInvalidRef("hash", "must be 8 lowercase hex characters")
	}
	if r.Size < 0 {
		return errors.NewInvalidRef("size", "must be >= 0")
	}
	if r.Mtime <= 0 {
		return errors.NewInvalidRef("mtime", "must be > 0")
	}
	if r.Mtime > now.Add(MaxFutureSkew).Unix() {
		return errors.NewInvalidRef("mtime", "more than one day in the future")
	}
	if !r.Depth.Valid() {
		return errors.NewInvalidRef("depth", "must be shallow, medium or full")
	}
	if !r.Op.Valid() {
		return errors.NewInvalidRef("op", "must be read, write, edit or multi_edit")
	}
	return nil
}

// Validate re-checks the field constraints against the current time. It
// catches Ref values assembled as literals instead of through NewRef.
func (r Ref) Validate() error {
	return r.validate(time.Now())
}

// ValidHash reports whether s is an 8-character lowercase hex digest prefix.
func ValidHash(s string) bool {
	return hashPattern.MatchString(s)
}
