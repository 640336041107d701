// internal/writers/registry.go
package writers

import (
	"fmt"
	"io"
	"sort"

	"maptrack/pkg/api"
)

// Summary writer registry (format → handler). Formats register in init()
// blocks of summary.go.
var SummaryWriters = map[string]func(w io.Writer, s *api.DiffSummaryV1) error{}

// RegisterSummary is idempotent, last wins.
func RegisterSummary(format string, fn func(io.Writer, *api.DiffSummaryV1) error) {
	SummaryWriters[format] = fn
}

// SummaryFormats lists the registered formats in order.
func SummaryFormats() []string {
	out := make([]string, 0, len(SummaryWriters))
	for f := range SummaryWriters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// WriteSummary dispatches to the writer registered for format.
func WriteSummary(format string, w io.Writer, s *api.DiffSummaryV1) error {
	fn, ok := SummaryWriters[format]
	if !ok {
		return fmt.Errorf("unknown summary format %q (no writer registered)", format)
	}
	return fn(w, s)
}
