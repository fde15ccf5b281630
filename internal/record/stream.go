package record

import (
	"bufio"
	"io"
	"iter"
	"os"
)

// ParseStream lazily parses r line by line, yielding only the lines Parse
// accepts, in input order. Bad lines are skipped; a read error ends the
// sequence after the records already read. Lines have no length limit.
func ParseStream(r io.Reader) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		if r == nil {
			return
		}
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if len(line) > 0 {
				if rec, ok := Parse(line); ok {
					if !yield(rec) {
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

// ParseFile is ParseStream over the file at path. A missing or unreadable
// file yields an empty sequence.
func ParseFile(path string) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		f, err := os.Open(path)
		if err != nil {
			return
		}
		defer f.Close()
		for rec := range ParseStream(f) {
			if !yield(rec) {
				return
			}
		}
	}
}
