package store

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/handoff/internal/errors"
	"github.com/hpungsan/handoff/internal/handoff"
	"github.com/hpungsan/handoff/internal/pack"
	"github.com/hpungsan/handoff/internal/record"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func sampleHandoff(t *testing.T, at time.Time) *handoff.Handoff {
	t.Helper()
	h := handoff.New("/repo", "svc", "acme/repo", handoff.WithClock(func() time.Time { return at }))
	paths := map[string]record.Depth{
		"tests/a_test.go": record.Shallow,
		"src/b.go":        record.Medium,
		"README.md":       record.Full,
	}
	for p, d := range paths {
		r, err := record.NewRef(p, "0a1b2c3d", 100, 1700000000, d, record.OpEdit)
		require.NoError(t, err)
		require.True(t, h.AddRef(r))
	}
	h.AddSecretExclusion("*.pem", 1)
	h.AddAudit(record.Audit{Timestamp: "2026-10-18T09:00:00Z", Run: record.RunCompact, OK: true})
	return h
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"abc", "01JABCDEF", "a-b_c", strings.Repeat("x", 128)} {
		require.NoError(t, ValidateID(id), id)
	}
	for _, id := range []string{"", "../x", "a/b", "a.b", "a b", `a\b`, "..", strings.Repeat("x", 129), "ü"} {
		err := ValidateID(id)
		require.Error(t, err, id)
		require.True(t, errors.Is(err, errors.ErrInvalidID), id)
	}
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New("  ", nil)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestPaths(t *testing.T) {
	s := newStore(t)

	p, err := s.HandoffPath("abc")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(s.Root(), "handoff-abc.jsonl"), p)

	p, err = s.PackPath("abc", record.Medium)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(s.Root(), "handoff-abc", "packs", "pack_m.json"), p)

	require.Equal(t, filepath.Join(s.Root(), "latest.jsonl"), s.LatestPath())

	_, err = s.HandoffPath("../../etc/passwd")
	require.Error(t, err)
	_, err = s.PackPath("abc", record.Depth("deep"))
	require.Error(t, err)
}

func TestSaveAndOpen(t *testing.T) {
	s := newStore(t)
	h := sampleHandoff(t, time.Now())

	path, err := s.Save(h)
	require.NoError(t, err)
	require.FileExists(t, path)

	loaded, ok := s.Open(h.ID())
	require.True(t, ok)
	require.Equal(t, h.Meta(), loaded.Meta())
	require.Equal(t, h.Refs(), loaded.Refs())
	require.Equal(t, h.Excluded(), loaded.Excluded())
	require.Equal(t, h.Audits(), loaded.Audits())

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}
}

func TestLoadHandoff_FailsClosed(t *testing.T) {
	dir := t.TempDir()

	_, ok := LoadHandoff(filepath.Join(dir, "missing.jsonl"))
	require.False(t, ok)

	garbage := filepath.Join(dir, "garbage.jsonl")
	require.NoError(t, os.WriteFile(garbage, []byte("not json\n{\"t\":\"ref\"}\n"), 0o600))
	_, ok = LoadHandoff(garbage)
	require.False(t, ok)

	_, ok = LoadHandoff(dir)
	require.False(t, ok)

	_, ok = newStore(t).Open("../escape")
	require.False(t, ok)
}

func TestLoadHandoff_SkipsCorruptLines(t *testing.T) {
	s := newStore(t)
	h := sampleHandoff(t, time.Now())
	path, err := s.Save(h)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	corrupt := "garbage\n" + string(data) + "{\"t\":\"ref\",\"p\":\"x\"}\n"
	require.NoError(t, os.WriteFile(path, []byte(corrupt), 0o600))

	loaded, ok := LoadHandoff(path)
	require.True(t, ok)
	require.Len(t, loaded.Refs(), 3)
}

func TestLoadHandoff_RefusesSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	s := newStore(t)
	h := sampleHandoff(t, time.Now())
	path, err := s.Save(h)
	require.NoError(t, err)

	link := filepath.Join(s.Root(), "handoff-link.jsonl")
	require.NoError(t, os.Symlink(path, link))

	_, ok := s.Open("link")
	require.False(t, ok)
}

func TestWriteHandoff_RefusesSymlinkTarget(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("keep"), 0o600))
	link := filepath.Join(dir, "out.jsonl")
	require.NoError(t, os.Symlink(target, link))

	err := WriteHandoff(sampleHandoff(t, time.Now()), link)
	require.Error(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))
}

func TestSavePacksAndOpenPack(t *testing.T) {
	s := newStore(t)
	h := sampleHandoff(t, time.Now())
	set := pack.BuildAll(h)
	require.NoError(t, s.SavePacks(set))

	for _, d := range record.Depths {
		p, err := s.PackPath(h.ID(), d)
		require.NoError(t, err)
		require.FileExists(t, p)

		inj, ok := s.OpenPack(h.ID(), d)
		require.True(t, ok)
		require.Equal(t, pack.ToInjectable(set.Get(d)), inj)
	}
}

func TestLoadPack_FailsClosed(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
		return p
	}

	cases := map[string]string{
		"missing":   filepath.Join(dir, "nope.json"),
		"garbage":   write("garbage.json", "{{{"),
		"no id":     write("noid.json", `{"refs":[],"stats":{"count":0,"tokens":0,"depth":"full"}}`),
		"bad depth": write("depth.json", `{"id":"a","refs":[],"stats":{"count":0,"tokens":0,"depth":"x"}}`),
		"secret":    write("secret.json", `{"id":"a","refs":[{"path":".env","hash":"0a1b2c3d","operation":"read"}],"stats":{"count":1,"tokens":30,"depth":"full"}}`),
		"bad count": write("count.json", `{"id":"a","refs":[],"stats":{"count":4,"tokens":0,"depth":"full"}}`),
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := LoadPack(path)
			require.False(t, ok)
		})
	}

	ok := write("ok.json", `{"id":"a","created":"c","repo":"/r","working_dir":"","stats":{"count":0,"tokens":0,"depth":"shallow"}}`)
	inj, loaded := LoadPack(ok)
	require.True(t, loaded)
	require.NotNil(t, inj.Refs)
}

func TestOpenPack_RejectsMismatchedFile(t *testing.T) {
	s := newStore(t)
	h := sampleHandoff(t, time.Now())
	set := pack.BuildAll(h)

	// A shallow pack stored under the medium name.
	p, err := s.PackPath(h.ID(), record.Medium)
	require.NoError(t, err)
	require.NoError(t, WritePack(pack.ToInjectable(set.Shallow), p))

	_, ok := s.OpenPack(h.ID(), record.Medium)
	require.False(t, ok)
}

func TestLatestPointer(t *testing.T) {
	s := newStore(t)

	_, ok := s.LatestID()
	require.False(t, ok)

	require.NoError(t, s.UpdateLatestPointer("first"))
	require.NoError(t, s.UpdateLatestPointer("second"))

	id, ok := s.LatestID()
	require.True(t, ok)
	require.Equal(t, "second", id)

	data, err := os.ReadFile(s.LatestPath())
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"second","r":`+quote(s.Root())+`}`, string(data))

	require.Error(t, s.UpdateLatestPointer("../x"))
}

func TestLatestID_RejectsTamperedPointer(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.LatestPath(), []byte(`{"id":"../../etc","r":"/"}`), 0o600))
	_, ok := s.LatestID()
	require.False(t, ok)

	require.NoError(t, os.WriteFile(s.LatestPath(), []byte(`nope`), 0o600))
	_, ok = s.LatestID()
	require.False(t, ok)
}

func TestListAndRemove(t *testing.T) {
	s := newStore(t)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := range 3 {
		h := sampleHandoff(t, base.Add(time.Duration(i)*time.Hour))
		_, err := s.Save(h)
		require.NoError(t, err)
		require.NoError(t, s.SavePacks(pack.BuildAll(h)))
		ids = append(ids, h.ID())
	}
	// Noise that must not be listed.
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "handoff-bad.id.jsonl"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "notes.txt"), nil, 0o600))

	got, err := s.List()
	require.NoError(t, err)
	require.Equal(t, []string{ids[2], ids[1], ids[0]}, got)

	require.NoError(t, s.Remove(ids[1]))
	require.False(t, s.Exists(ids[1]))
	dir, _ := s.HandoffDir(ids[1])
	require.NoDirExists(t, dir)

	got, err = s.List()
	require.NoError(t, err)
	require.Equal(t, []string{ids[2], ids[0]}, got)

	err = s.Remove(ids[1])
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestAudits(t *testing.T) {
	s := newStore(t)
	require.Empty(t, s.Audits())

	require.NoError(t, s.AppendAudit(record.Audit{Timestamp: "t1", Run: record.RunCompact, OK: true}))
	require.NoError(t, s.AppendAudit(record.Audit{Timestamp: "t2", Run: record.RunHydrate, OK: true, Depth: record.Medium}))

	f, err := os.OpenFile(s.AuditPath(), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("torn line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.AppendAudit(record.Audit{Timestamp: "t3", Run: record.RunHydrate, OK: false, Degraded: true}))

	audits := s.Audits()
	require.Len(t, audits, 3)
	require.Equal(t, "t1", audits[0].Timestamp)
	require.Equal(t, record.Medium, audits[1].Depth)
	require.True(t, audits[2].Degraded)

	require.Error(t, s.AppendAudit(record.Audit{}))
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `\`, `\\`) + `"`
}
