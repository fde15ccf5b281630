package ops

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/hpungsan/handoff/internal/errors"
	"github.com/hpungsan/handoff/internal/record"
)

// ValidateInput contains parameters for the Validate operation.
type ValidateInput struct {
	Path string // required, .jsonl handoff file
}

// ValidateOutput contains the result of the Validate operation.
type ValidateOutput struct {
	Path         string              `json:"path"`
	Lines        int                 `json:"lines"`
	Valid        int                 `json:"valid"`
	Invalid      int                 `json:"invalid"`
	InvalidLines []int               `json:"invalid_lines"` // 1-based, first 100 only
	Kinds        map[record.Kind]int `json:"kinds"`
	HasMeta      bool                `json:"has_meta"`
}

const maxReportedInvalidLines = 100

// Validate counts valid and invalid record lines in a handoff file. Blank
// lines are not counted.
func Validate(input ValidateInput) (*ValidateOutput, error) {
	if err := ValidateInputPath(input.Path); err != nil {
		return nil, err
	}
	f, err := os.Open(input.Path)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to open file: %w", err))
	}
	defer f.Close()

	out := &ValidateOutput{
		Path:         input.Path,
		InvalidLines: []int{},
		Kinds:        map[record.Kind]int{},
	}

	br := bufio.NewReader(f)
	lineNo := 0
	for {
		line, readErr := br.ReadString('\n')
		if line != "" {
			lineNo++
		}
		if strings.TrimSpace(line) != "" {
			out.Lines++
			if rec, ok := record.Parse(line); ok {
				out.Valid++
				out.Kinds[rec.Kind()]++
			} else {
				out.Invalid++
				if len(out.InvalidLines) < maxReportedInvalidLines {
					out.InvalidLines = append(out.InvalidLines, lineNo)
				}
			}
		}
		if readErr != nil {
			break
		}
	}
	out.HasMeta = out.Kinds[record.KindMeta] > 0
	return out, nil
}
