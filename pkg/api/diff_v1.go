// pkg/api/diff_v1.go
package api

// TrackV1 summarises one mappability track. Mean, Min, Max and
// UniqueFraction are omitted when no base is covered.
type TrackV1 struct {
	Key            string   `json:"key"`
	Path           string   `json:"path"`
	Bases          int64    `json:"bases"`
	Uncovered      int64    `json:"uncovered"`
	Mean           *float64 `json:"mean,omitempty"`
	Min            *float64 `json:"min,omitempty"`
	Max            *float64 `json:"max,omitempty"`
	UniqueFraction *float64 `json:"unique_fraction,omitempty"`
	Histogram      []int64  `json:"histogram,omitempty"`
}

// ComparisonV1 summarises track To minus track From.
type ComparisonV1 struct {
	Name      string   `json:"name"` // "<from>_vs_<to>"
	From      string   `json:"from"`
	To        string   `json:"to"`
	Compared  int64    `json:"compared"`
	MeanDiff  *float64 `json:"mean_diff,omitempty"`
	Increased int64    `json:"increased"`
	Decreased int64    `json:"decreased"`
	Unchanged int64    `json:"unchanged"`
	Regions   int      `json:"regions"`
	Skipped   []string `json:"skipped_chroms,omitempty"`
	Histogram []int64  `json:"histogram,omitempty"`
}

// RegionV1 is one change region.
type RegionV1 struct {
	Comparison string   `json:"comparison"`
	Chrom      string   `json:"chrom"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Changed    int      `json:"changed"`
	MeanDiff   float64  `json:"mean_diff"`
	Genes      []string `json:"genes,omitempty"`
}

// DiffSummaryV1 is the whole-run summary of maptrack-diff.
type DiffSummaryV1 struct {
	Version     string         `json:"version"`
	Keys        []string       `json:"keys"`
	Chroms      int            `json:"chroms"`
	Epsilon     float64        `json:"epsilon"`
	Tracks      []TrackV1      `json:"tracks"`
	Comparisons []ComparisonV1 `json:"comparisons"`
	Genes       int            `json:"genes,omitempty"`
}

// DiffRecordV1 is one JSONL line: exactly one of the pointers is set.
type DiffRecordV1 struct {
	Kind       string        `json:"kind"` // "track" | "comparison"
	Track      *TrackV1      `json:"track,omitempty"`
	Comparison *ComparisonV1 `json:"comparison,omitempty"`
}
