package handoff

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/handoff/internal/record"
)

const baseMtime = int64(1700000000)

func ref(t *testing.T, path string, depth record.Depth, size, mtime int64) record.Ref {
	t.Helper()
	r, err := record.NewRef(path, "0a1b2c3d", size, mtime, depth, record.OpEdit)
	require.NoError(t, err)
	return r
}

func fixedClock() func() time.Time {
	ts := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestNew_Meta(t *testing.T) {
	h := New("/repo", "svc", "acme/repo", WithClock(fixedClock()))

	meta := h.Meta()
	require.Equal(t, "/repo", meta.Root)
	require.Equal(t, "svc", meta.WorkingDir)
	require.Equal(t, "acme/repo", meta.RepoID)
	require.Equal(t, record.SchemaVersion, meta.SchemaVersion)
	require.Equal(t, "2026-10-18T09:30:00Z", meta.Created)

	id, err := ulid.Parse(meta.ID)
	require.NoError(t, err)
	require.Equal(t, ulid.Timestamp(fixedClock()()), id.Time())

	require.Empty(t, h.Refs())
	require.Zero(t, h.Excluded())
}

func TestNew_IDsSortWithinOneMillisecond(t *testing.T) {
	var ids []string
	for range 50 {
		ids = append(ids, New("/repo", "", "", WithClock(fixedClock())).ID())
	}
	require.True(t, slices.IsSorted(ids))
	require.Len(t, slices.Compact(slices.Clone(ids)), len(ids))
}

func TestAddRef_ExcludesSecrets(t *testing.T) {
	h := New("/repo", "", "")

	secret := record.Ref{Path: "secret.key", Hash: "0a1b2c3d", Size: 10, Mtime: baseMtime, Depth: record.Full, Op: record.OpRead}

	require.True(t, h.AddRef(ref(t, "src/a.py", record.Medium, 10, baseMtime)))
	require.True(t, h.AddRef(ref(t, "tests/b.py", record.Shallow, 10, baseMtime)))
	require.False(t, h.AddRef(secret))

	require.Len(t, h.Refs(), 2)
	require.Equal(t, 1, h.Excluded())
	require.Equal(t, []string{"*.key"}, h.Reasons())

	for _, line := range h.Serialize() {
		require.NotContains(t, line, "secret.key")
	}
}

func TestAddRef_SecretNeverSerializedUnderAnyOrder(t *testing.T) {
	secrets := []string{"id_rsa.key", "deploy/.env.prod", "db_password.txt", "gh_token", "certs/ca.pem"}

	for _, secret := range secrets {
		t.Run(secret, func(t *testing.T) {
			h := New("/repo", "", "")
			h.AddAudit(record.Audit{Timestamp: "ts", Run: record.RunCompact, OK: true})
			h.AddSecretExclusion("manual", 2)

			before := h.Excluded()
			h.AddRef(record.Ref{Path: secret, Hash: "0a1b2c3d", Size: 1, Mtime: baseMtime, Depth: record.Full, Op: record.OpWrite})
			h.AddRef(ref(t, "src/ok.go", record.Medium, 1, baseMtime))
			h.AddRef(record.Ref{Path: secret, Hash: "0a1b2c3d", Size: 1, Mtime: baseMtime, Depth: record.Full, Op: record.OpWrite})

			require.GreaterOrEqual(t, h.Excluded(), before+2)
			require.NotContains(t, strings.Join(h.Serialize(), "\n"), secret)
		})
	}
}

func TestAddRef_DropsInvalidRefWithoutCounting(t *testing.T) {
	h := New("/repo", "", "")
	require.False(t, h.AddRef(record.Ref{Path: "a.go", Hash: "nothex!!", Size: 1, Mtime: baseMtime, Depth: record.Full, Op: record.OpRead}))
	require.Empty(t, h.Refs())
	require.Zero(t, h.Excluded())
}

func TestAddSecretExclusion(t *testing.T) {
	h := New("/repo", "", "")
	h.AddSecretExclusion("*.pem", 1)
	h.AddSecretExclusion("*.pem", 3)
	h.AddSecretExclusion("*token*", 0)
	h.AddSecretExclusion("", 1)

	require.Equal(t, 6, h.Excluded())
	require.Equal(t, []string{"*.pem", "*token*"}, h.Reasons())
}

func TestClassifyAndPack_Order(t *testing.T) {
	h := New("/repo", "", "")
	h.AddRef(ref(t, "tests/old.py", record.Shallow, 1, baseMtime))
	h.AddRef(ref(t, "src/old.go", record.Medium, 1, baseMtime))
	h.AddRef(ref(t, "README.md", record.Full, 1, baseMtime))
	h.AddRef(ref(t, "src/new.go", record.Medium, 1, baseMtime+100))
	h.AddRef(ref(t, "docs/new.md", record.Full, 1, baseMtime+100))
	h.AddRef(ref(t, "src/tie.go", record.Medium, 1, baseMtime+100))

	got := h.ClassifyAndPack(record.Full)
	var paths []string
	for _, r := range got {
		paths = append(paths, r.Path)
	}
	require.Equal(t, []string{
		"docs/new.md", "README.md",
		"src/new.go", "src/tie.go", "src/old.go",
		"tests/old.py",
	}, paths)
}

func TestClassifyAndPack_StopsAtFirstOverflow(t *testing.T) {
	h := New("/repo", "", "", WithBudgets(Budgets{record.Shallow: {MaxRefs: 10, MaxBytes: 100}}))
	h.AddRef(ref(t, "a.md", record.Full, 60, baseMtime+2))
	h.AddRef(ref(t, "b.md", record.Full, 50, baseMtime+1))
	h.AddRef(ref(t, "src/c.go", record.Medium, 10, baseMtime))

	got := h.ClassifyAndPack(record.Shallow)
	require.Len(t, got, 1)
	require.Equal(t, "a.md", got[0].Path)
}

func TestClassifyAndPack_RespectsBudgets(t *testing.T) {
	h := New("/repo", "", "")
	paths := []string{"src/", "lib/", "tests/", "docs/", "app/", ""}
	for i := range 120 {
		p := paths[i%len(paths)] + "file" + strings.Repeat("x", i%7) + ".go"
		depth := record.Depths[i%3]
		h.AddRef(ref(t, p, depth, int64((i*7919)%40000), baseMtime+int64(i%13)))
	}

	for _, depth := range record.Depths {
		budget, ok := h.Budget(depth)
		require.True(t, ok)

		got := h.ClassifyAndPack(depth)
		require.LessOrEqual(t, len(got), budget.MaxRefs)

		var total int64
		for _, r := range got {
			total += r.Size
		}
		require.LessOrEqual(t, total, budget.MaxBytes)
	}
}

func TestClassifyAndPack_UnknownTier(t *testing.T) {
	h := New("/repo", "", "")
	h.AddRef(ref(t, "a.go", record.Full, 1, baseMtime))
	require.Nil(t, h.ClassifyAndPack(record.Depth("huge")))
}

func TestClassifyAndPack_DoesNotReorderHeldRefs(t *testing.T) {
	h := New("/repo", "", "")
	h.AddRef(ref(t, "tests/a.py", record.Shallow, 1, baseMtime))
	h.AddRef(ref(t, "b.md", record.Full, 1, baseMtime))

	h.ClassifyAndPack(record.Full)
	require.Equal(t, "tests/a.py", h.Refs()[0].Path)
}

func TestWithBudgets_KeepsDefaultsForZeroFields(t *testing.T) {
	h := New("/repo", "", "", WithBudgets(Budgets{
		record.Medium:         {MaxRefs: 3},
		record.Depth("bogus"): {MaxRefs: 1},
	}))

	medium, _ := h.Budget(record.Medium)
	require.Equal(t, 3, medium.MaxRefs)
	require.Equal(t, DefaultBudgets()[record.Medium].MaxBytes, medium.MaxBytes)

	_, ok := h.Budget(record.Depth("bogus"))
	require.False(t, ok)
}

func TestMetrics(t *testing.T) {
	h := New("/repo", "", "")
	h.AddRef(ref(t, "tests/a.py", record.Shallow, 10, baseMtime))
	h.AddRef(ref(t, "src/b.go", record.Medium, 20, baseMtime))
	h.AddRef(ref(t, "src/c.go", record.Medium, 30, baseMtime))
	h.AddRef(ref(t, "README.md", record.Full, 40, baseMtime))
	h.AddSecretExclusion("*.pem", 2)

	require.Equal(t, Metrics{Shallow: 1, Medium: 2, Full: 1, Excluded: 2, TotalBytes: 100}, h.Metrics())
}

func TestSerialize_CanonicalOrder(t *testing.T) {
	h := New("/repo", "", "")
	h.AddAudit(record.Audit{Timestamp: "t1", Run: record.RunCompact, OK: true})
	h.AddSecretExclusion("*.key", 1)
	h.AddRef(ref(t, "src/a.go", record.Medium, 1, baseMtime))
	h.AddSecretExclusion("*.pem", 1)
	h.AddRef(ref(t, "tests/b.py", record.Shallow, 1, baseMtime))
	h.AddAudit(record.Audit{Timestamp: "t2", Run: record.RunHydrate, OK: true, Depth: record.Medium})

	var kinds []record.Kind
	for _, line := range h.Serialize() {
		rec, ok := record.Parse(line)
		require.True(t, ok, line)
		kinds = append(kinds, rec.Kind())
	}
	require.Equal(t, []record.Kind{
		record.KindMeta,
		record.KindRef, record.KindRef,
		record.KindEx,
		record.KindAudit, record.KindAudit,
	}, kinds)
}

func TestSerialize_NoExWithoutExclusions(t *testing.T) {
	h := New("/repo", "", "")
	h.AddRef(ref(t, "src/a.go", record.Medium, 1, baseMtime))
	for _, line := range h.Serialize() {
		require.NotContains(t, line, `"t":"ex"`)
	}
}

func TestSerialize_SkipsSecretRefsDefensively(t *testing.T) {
	h := New("/repo", "", "")
	h.AddRef(ref(t, "src/a.go", record.Medium, 1, baseMtime))
	// Bypass AddRef to simulate a corrupted in-memory state.
	h.refs = append(h.refs, record.Ref{Path: "server.pem", Hash: "0a1b2c3d", Size: 1, Mtime: baseMtime, Depth: record.Full, Op: record.OpRead})

	out := strings.Join(h.Serialize(), "\n")
	require.Contains(t, out, "src/a.go")
	require.NotContains(t, out, "server.pem")
}

func TestLoad_RoundTrip(t *testing.T) {
	h := New("/repo", "svc", "acme/repo")
	h.AddRef(ref(t, "tests/a_test.go", record.Shallow, 10, baseMtime))
	h.AddRef(ref(t, "config/app.toml", record.Shallow, 20, baseMtime+1))
	h.AddRef(ref(t, "src/b.go", record.Medium, 30, baseMtime+2))
	h.AddRef(ref(t, "api/c.go", record.Medium, 40, baseMtime+3))
	h.AddRef(ref(t, "README.md", record.Full, 50, baseMtime+4))
	h.AddAudit(record.Audit{Timestamp: "2026-10-18T09:31:00Z", Run: record.RunCompact, OK: true})

	text := strings.Join(h.Serialize(), "\n")
	loaded, ok := Load(record.ParseStream(strings.NewReader(text)))
	require.True(t, ok)

	require.Equal(t, h.Meta(), loaded.Meta())
	require.Equal(t, h.Refs(), loaded.Refs())
	require.Equal(t, h.Excluded(), loaded.Excluded())
	require.Equal(t, h.Audits(), loaded.Audits())
	require.Len(t, loaded.Refs(), 5)
	require.Len(t, loaded.Audits(), 1)
	require.Equal(t, h.Serialize(), loaded.Serialize())
}

func TestLoad_RoundTripWithExclusions(t *testing.T) {
	h := New("/repo", "", "")
	h.AddRef(ref(t, "src/a.go", record.Medium, 1, baseMtime))
	h.AddRef(record.Ref{Path: ".env", Hash: "0a1b2c3d", Size: 1, Mtime: baseMtime, Depth: record.Full, Op: record.OpRead})
	h.AddSecretExclusion("*.pem", 2)

	loaded, ok := Load(slices.Values(h.Records()))
	require.True(t, ok)
	require.Equal(t, 3, loaded.Excluded())
	require.Equal(t, h.Reasons(), loaded.Reasons())
}

func TestLoad_NoMeta(t *testing.T) {
	text := strings.Join([]string{
		record.Serialize(ref(t, "src/a.go", record.Medium, 1, baseMtime)),
		record.Serialize(record.Audit{Timestamp: "t", Run: record.RunCompact, OK: true}),
	}, "\n")

	h, ok := Load(record.ParseStream(strings.NewReader(text)))
	require.False(t, ok)
	require.Nil(t, h)
}

func TestLoad_FirstMetaWinsAndExMerges(t *testing.T) {
	first := record.Meta{ID: "FIRST", Created: "c", Root: "/a", SchemaVersion: "1.0"}
	second := record.Meta{ID: "SECOND", Created: "c", Root: "/b", SchemaVersion: "1.0"}

	recs := []record.Record{
		ref(t, "src/a.go", record.Medium, 1, baseMtime),
		first,
		record.Ex{Key: record.ExclusionKey, Count: 2, Reasons: []string{"*.key"}},
		second,
		record.Ex{Key: record.ExclusionKey, Count: 3, Reasons: []string{"*.key", ".env*"}},
	}

	h, ok := Load(slices.Values(recs))
	require.True(t, ok)
	require.Equal(t, "FIRST", h.ID())
	require.Len(t, h.Refs(), 1)
	require.Equal(t, 5, h.Excluded())
	require.Equal(t, []string{"*.key", ".env*"}, h.Reasons())
}

func TestLoad_SecretRefInFileIsExcluded(t *testing.T) {
	lines := []string{
		record.Serialize(record.Meta{ID: "A", Created: "c", Root: "/r", SchemaVersion: "1.0"}),
		`{"t":"ref","p":"keys/deploy.key","h":"0a1b2c3d","s":1,"m":1700000000,"d":"full","o":"read"}`,
		`{"t":"ref","p":"src/a.go","h":"0a1b2c3d","s":1,"m":1700000000,"d":"medium","o":"read"}`,
	}

	h, ok := Load(record.ParseStream(strings.NewReader(strings.Join(lines, "\n"))))
	require.True(t, ok)
	require.Len(t, h.Refs(), 1)
	require.Equal(t, 1, h.Excluded())
	require.NotContains(t, strings.Join(h.Serialize(), "\n"), "deploy.key")
}

func TestWriteTo(t *testing.T) {
	h := New("/repo", "", "")
	h.AddRef(ref(t, "src/a.go", record.Medium, 1, baseMtime))

	var sb strings.Builder
	n, err := h.WriteTo(&sb)
	require.NoError(t, err)
	require.Equal(t, int64(sb.Len()), n)
	require.Equal(t, strings.Join(h.Serialize(), "\n")+"\n", sb.String())
}
