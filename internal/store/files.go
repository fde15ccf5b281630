package store

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hpungsan/handoff/internal/errors"
	"github.com/hpungsan/handoff/internal/handoff"
	"github.com/hpungsan/handoff/internal/pack"
	"github.com/hpungsan/handoff/internal/record"
)

// maxPackFileSize bounds how much of a pack file LoadPack will read.
const maxPackFileSize = 8 << 20

// WriteHandoff writes h to path, one record per line. The file is replaced
// atomically; a failed write leaves any previous file untouched.
func WriteHandoff(h *handoff.Handoff, path string) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := h.WriteTo(w)
		return err
	})
}

// LoadHandoff reads the handoff at path. A missing, unreadable or header-less
// file yields false; malformed lines are skipped.
func LoadHandoff(path string, opts ...handoff.Option) (*handoff.Handoff, bool) {
	f, err := openNoFollow(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	return handoff.Load(record.ParseStream(f), opts...)
}

// WritePack writes inj as JSON to path, atomically.
func WritePack(inj pack.Injectable, path string) error {
	data, err := json.Marshal(inj)
	if err != nil {
		return errors.NewInternal(err)
	}
	return writeAtomic(path, func(w io.Writer) error {
		if _, err := w.Write(data); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	})
}

// LoadPack reads the pack file at path. A missing, oversized, unparsable or
// malformed pack yields false.
func LoadPack(path string) (pack.Injectable, bool) {
	f, err := openNoFollow(path, os.O_RDONLY, 0)
	if err != nil {
		return pack.Injectable{}, false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxPackFileSize+1))
	if err != nil || len(data) > maxPackFileSize {
		return pack.Injectable{}, false
	}

	var inj pack.Injectable
	if err := json.Unmarshal(data, &inj); err != nil {
		return pack.Injectable{}, false
	}
	if inj.Refs == nil {
		inj.Refs = []pack.InjectableRef{}
	}
	if !inj.Valid() {
		return pack.Injectable{}, false
	}
	return inj, true
}

// writeAtomic writes through a temp file in the destination directory and
// renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := openNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidRequest) {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to create temp file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	bw := bufio.NewWriter(file)
	if err := write(bw); err != nil {
		return errors.NewInternal(err)
	}
	if err := bw.Flush(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close temp file: %w", err))
	}
	file = nil

	// os.Rename would replace a symlink, not its target, but refuse anyway.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("refusing to replace symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to finalize write: %w", err))
	}

	success = true
	return nil
}
