package record

import (
	"encoding/json"
	"strings"
	"time"
)

// Wire shapes. Required fields are pointers so that absent and explicit null
// both read as missing; optional fields are values so they default and are
// omitted when zero.

type wireHead struct {
	T *string `json:"t"`
}

type wireMeta struct {
	T              string  `json:"t"`
	ID             *string `json:"id"`
	Created        *string `json:"ts"`
	Root           *string `json:"r"`
	WorkingDir     string  `json:"wd,omitempty"`
	RepoID         string  `json:"rid,omitempty"`
	FilesChanged   int     `json:"fc,omitempty"`
	SecretsChanged bool    `json:"sc,omitempty"`
	SchemaVersion  *string `json:"v"`
}

type wireRef struct {
	T     string  `json:"t"`
	Path  *string `json:"p"`
	Hash  *string `json:"h"`
	Size  *int64  `json:"s"`
	Mtime *int64  `json:"m"`
	Depth *string `json:"d"`
	Op    *string `json:"o"`
}

type wireEx struct {
	T       string  `json:"t"`
	Key     *string `json:"k"`
	Count   *int    `json:"c"`
	Reasons string  `json:"rs,omitempty"`
}

type wireAudit struct {
	T         string  `json:"t"`
	Timestamp *string `json:"ts"`
	Run       *string `json:"run"`
	OK        *bool   `json:"ok"`
	Degraded  bool    `json:"dg,omitempty"`
	Depth     string  `json:"d,omitempty"`
}

// Parse decodes one line. It returns false for blank lines, malformed JSON,
// unknown tags, and records with missing, mistyped or out-of-range required
// fields. Unknown extra fields are ignored.
func Parse(line string) (Record, bool) {
	data := []byte(strings.TrimSpace(line))
	if len(data) == 0 {
		return nil, false
	}

	var head wireHead
	if err := json.Unmarshal(data, &head); err != nil || head.T == nil {
		return nil, false
	}

	switch Kind(*head.T) {
	case KindMeta:
		return parseMeta(data)
	case KindRef:
		return parseRef(data)
	case KindEx:
		return parseEx(data)
	case KindAudit:
		return parseAudit(data)
	default:
		return nil, false
	}
}

func parseMeta(data []byte) (Record, bool) {
	var w wireMeta
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false
	}
	if w.ID == nil || *w.ID == "" || w.Created == nil || w.Root == nil || w.SchemaVersion == nil {
		return nil, false
	}
	if w.FilesChanged < 0 {
		return nil, false
	}
	return Meta{
		ID:             *w.ID,
		Created:        *w.Created,
		Root:           *w.Root,
		WorkingDir:     w.WorkingDir,
		RepoID:         w.RepoID,
		FilesChanged:   w.FilesChanged,
		SecretsChanged: w.SecretsChanged,
		SchemaVersion:  *w.SchemaVersion,
	}, true
}

func parseRef(data []byte) (Record, bool) {
	var w wireRef
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false
	}
	if w.Path == nil || w.Hash == nil || w.Size == nil || w.Mtime == nil || w.Depth == nil || w.Op == nil {
		return nil, false
	}
	r, err := newRefAt(*w.Path, *w.Hash, *w.Size, *w.Mtime, Depth(*w.Depth), Op(*w.Op), time.Now())
	if err != nil {
		return nil, false
	}
	return r, true
}

func parseEx(data []byte) (Record, bool) {
	var w wireEx
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false
	}
	if w.Key == nil || *w.Key != ExclusionKey || w.Count == nil || *w.Count < 0 {
		return nil, false
	}
	return Ex{
		Key:     *w.Key,
		Count:   *w.Count,
		Reasons: SplitReasons(w.Reasons),
	}, true
}

func parseAudit(data []byte) (Record, bool) {
	var w wireAudit
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false
	}
	if w.Timestamp == nil || w.Run == nil || w.OK == nil {
		return nil, false
	}
	run := RunKind(*w.Run)
	if !run.Valid() {
		return nil, false
	}
	depth := Depth(w.Depth)
	if depth != "" && !depth.Valid() {
		return nil, false
	}
	return Audit{
		Timestamp: *w.Timestamp,
		Run:       run,
		OK:        *w.OK,
		Degraded:  w.Degraded,
		Depth:     depth,
	}, true
}

// Serialize encodes r as one canonical line without a trailing newline.
// Optional fields holding their default value are omitted.
func Serialize(r Record) string {
	var v any
	switch rec := r.(type) {
	case Meta:
		v = wireMeta{
			T:              string(KindMeta),
			ID:             &rec.ID,
			Created:        &rec.Created,
			Root:           &rec.Root,
			WorkingDir:     rec.WorkingDir,
			RepoID:         rec.RepoID,
			FilesChanged:   rec.FilesChanged,
			SecretsChanged: rec.SecretsChanged,
			SchemaVersion:  &rec.SchemaVersion,
		}
	case Ref:
		depth, op := string(rec.Depth), string(rec.Op)
		v = wireRef{
			T:     string(KindRef),
			Path:  &rec.Path,
			Hash:  &rec.Hash,
			Size:  &rec.Size,
			Mtime: &rec.Mtime,
			Depth: &depth,
			Op:    &op,
		}
	case Ex:
		v = wireEx{
			T:       string(KindEx),
			Key:     &rec.Key,
			Count:   &rec.Count,
			Reasons: JoinReasons(rec.Reasons),
		}
	case Audit:
		run := string(rec.Run)
		v = wireAudit{
			T:         string(KindAudit),
			Timestamp: &rec.Timestamp,
			Run:       &run,
			OK:        &rec.OK,
			Degraded:  rec.Degraded,
			Depth:     string(rec.Depth),
		}
	default:
		return ""
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// JoinReasons renders exclusion reasons as the comma-joined wire value.
func JoinReasons(reasons []string) string {
	return strings.Join(reasons, ",")
}

// SplitReasons parses a comma-joined reason list, dropping empty entries.
func SplitReasons(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
