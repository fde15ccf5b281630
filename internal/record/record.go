// Package record defines the typed line protocol of a handoff file: four
// record kinds, one JSON object per line, discriminated by the "t" field.
package record

// SchemaVersion is stamped into every Meta record this package creates.
const SchemaVersion = "1.0"

// ExclusionKey is the only key an Ex record may carry.
const ExclusionKey = "secret_patterns"

// Kind is the value of the "t" discriminator.
type Kind string

const (
	KindMeta  Kind = "meta"
	KindRef   Kind = "ref"
	KindEx    Kind = "ex"
	KindAudit Kind = "audit"
)

// Depth is the pack tier a reference is classified into.
type Depth string

const (
	Shallow Depth = "shallow"
	Medium  Depth = "medium"
	Full    Depth = "full"
)

// Depths lists the tiers from cheapest to most complete.
var Depths = []Depth{Shallow, Medium, Full}

// Valid reports whether d is a known tier.
func (d Depth) Valid() bool {
	switch d {
	case Shallow, Medium, Full:
		return true
	}
	return false
}

// Priority orders tiers for packing: full=3 > medium=2 > shallow=1.
// Unknown tiers rank 0.
func (d Depth) Priority() int {
	switch d {
	case Full:
		return 3
	case Medium:
		return 2
	case Shallow:
		return 1
	}
	return 0
}

// Short returns the single-letter tier code used in pack file names.
func (d Depth) Short() string {
	if !d.Valid() {
		return ""
	}
	return string(d)[:1]
}

// Op is the file operation that produced a reference.
type Op string

const (
	OpRead      Op = "read"
	OpWrite     Op = "write"
	OpEdit      Op = "edit"
	OpMultiEdit Op = "multi_edit"
)

// Valid reports whether o is a known operation.
func (o Op) Valid() bool {
	switch o {
	case OpRead, OpWrite, OpEdit, OpMultiEdit:
		return true
	}
	return false
}

// RunKind names the operation an Audit entry records.
type RunKind string

const (
	RunCompact RunKind = "compact"
	RunHydrate RunKind = "hydrate"
)

// Valid reports whether k is a known run kind.
func (k RunKind) Valid() bool {
	return k == RunCompact || k == RunHydrate
}

// Record is one line of a handoff file. The set of implementations is closed:
// Meta, Ref, Ex and Audit.
type Record interface {
	Kind() Kind
	isRecord()
}

// Meta identifies a handoff.
type Meta struct {
	ID             string
	Created        string // RFC3339, UTC
	Root           string // absolute repository root
	WorkingDir     string // relative to Root
	RepoID         string
	FilesChanged   int
	SecretsChanged bool
	SchemaVersion  string
}

// Ex tallies files dropped by the secret policy. It never carries a path,
// hash or size.
type Ex struct {
	Key     string
	Count   int
	Reasons []string
}

// Audit logs one compact or hydrate run.
type Audit struct {
	Timestamp string // RFC3339, UTC
	Run       RunKind
	OK        bool
	Degraded  bool
	Depth     Depth // optional
}

func (Meta) Kind() Kind  { return KindMeta }
func (Ref) Kind() Kind   { return KindRef }
func (Ex) Kind() Kind    { return KindEx }
func (Audit) Kind() Kind { return KindAudit }

func (Meta) isRecord()  {}
func (Ref) isRecord()   {}
func (Ex) isRecord()    {}
func (Audit) isRecord() {}
