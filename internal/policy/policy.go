// Package policy classifies candidate file paths: whether they look like
// secrets that must never be recorded, which pack tier they belong to, and
// their truncated content hash.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/hpungsan/handoff/internal/errors"
	"github.com/hpungsan/handoff/internal/record"
)

// SecretPatterns is the fixed, case-insensitive secret glob set.
var SecretPatterns = []string{
	"*.key",
	"*.pem",
	"*.cert",
	".env*",
	"secret*",
	"*password*",
	"*credential*",
	"*token*",
	"*.credentials",
	"*.secrets",
}

// HashLen is the number of hex characters kept from the SHA-256 digest.
const HashLen = 8

const hashChunkSize = 64 * 1024

type secretGlob struct {
	pattern string
	g       glob.Glob
}

var secretGlobs = compileSecretGlobs(SecretPatterns)

func compileSecretGlobs(patterns []string) []secretGlob {
	out := make([]secretGlob, 0, len(patterns))
	for _, p := range patterns {
		// No separators: '*' may span '/', so full-path matches are possible too.
		out = append(out, secretGlob{pattern: p, g: glob.MustCompile(strings.ToLower(p))})
	}
	return out
}

// MatchSecret returns the first secret pattern matching p, tested against
// both the base name and the whole slash-separated path, lowercased.
func MatchSecret(p string) (string, bool) {
	full := strings.ToLower(filepath.ToSlash(p))
	base := path.Base(full)
	for _, sg := range secretGlobs {
		if sg.g.Match(base) || sg.g.Match(full) {
			return sg.pattern, true
		}
	}
	return "", false
}

// matchSecretName is MatchSecret restricted to the final path element, for
// absolute paths whose leading directories are outside the repository.
func matchSecretName(p string) bool {
	base := strings.ToLower(path.Base(filepath.ToSlash(p)))
	for _, sg := range secretGlobs {
		if sg.g.Match(base) {
			return true
		}
	}
	return false
}

// IsSecret reports whether p matches the secret pattern set.
func IsSecret(p string) bool {
	_, ok := MatchSecret(p)
	return ok
}

// Obfuscate renders secret paths as "<SECRET>" plus the original extension.
// For logs only; never persist its output.
func Obfuscate(p string) string {
	if !IsSecret(p) {
		return p
	}
	return "<SECRET>" + path.Ext(path.Base(filepath.ToSlash(p)))
}

var (
	shallowMarkers = []string{"tests/", "test_", "_test", ".toml", ".json", "config/"}
	mediumMarkers  = []string{"src/", "lib/", "app/", "api/"}
)

// ClassifyDepth assigns a tier from substrings of the path. Rules are tried
// in order, shallow markers first, and the first hit wins.
func ClassifyDepth(p string) record.Depth {
	s := filepath.ToSlash(p)
	if containsAny(s, shallowMarkers) {
		return record.Shallow
	}
	if containsAny(s, mediumMarkers) {
		return record.Medium
	}
	return record.Full
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ComputeHash streams the file at p through SHA-256 and returns the first
// HashLen hex characters. Files whose name is a secret are refused without
// being opened.
func ComputeHash(p string) (string, error) {
	if matchSecretName(p) {
		return "", errors.NewInvalidRequest("refusing to hash a secret path")
	}
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader is ComputeHash over an arbitrary reader.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil))[:HashLen], nil
}
