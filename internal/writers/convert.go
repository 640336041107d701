package writers

import (
	"math"

	"maptrack/internal/mapdiff"
	"maptrack/internal/version"
	"maptrack/pkg/api"
)

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ToAPITrack converts track statistics to the v1 schema.
func ToAPITrack(t *mapdiff.TrackStats) api.TrackV1 {
	out := api.TrackV1{
		Key:       t.Key,
		Path:      t.Path,
		Bases:     t.Bases,
		Uncovered: t.NaN,
		Histogram: t.Hist.Counts,
	}
	if t.Bases > 0 {
		out.Mean = finite(t.Mean())
		out.Min = finite(t.Min)
		out.Max = finite(t.Max)
		out.UniqueFraction = finite(t.UniqueFraction())
	}
	return out
}

// ToAPIComparison converts a comparison to the v1 schema.
func ToAPIComparison(c *mapdiff.Comparison) api.ComparisonV1 {
	return api.ComparisonV1{
		Name:      c.Name,
		From:      c.From,
		To:        c.To,
		Compared:  c.Compared,
		MeanDiff:  finite(c.MeanDiff()),
		Increased: c.Increased,
		Decreased: c.Decreased,
		Unchanged: c.Unchanged,
		Regions:   len(c.Regions),
		Skipped:   c.Skipped,
		Histogram: c.Hist.Counts,
	}
}

// ToAPISummary converts a whole diff result.
func ToAPISummary(res *mapdiff.Result, epsilon float64) *api.DiffSummaryV1 {
	s := &api.DiffSummaryV1{
		Version:     version.Version,
		Keys:        res.Keys,
		Chroms:      len(res.Chroms),
		Epsilon:     epsilon,
		Tracks:      make([]api.TrackV1, 0, len(res.Tracks)),
		Comparisons: make([]api.ComparisonV1, 0, len(res.Comparisons)),
		Genes:       len(res.Genes),
	}
	for i := range res.Tracks {
		s.Tracks = append(s.Tracks, ToAPITrack(&res.Tracks[i]))
	}
	for i := range res.Comparisons {
		s.Comparisons = append(s.Comparisons, ToAPIComparison(&res.Comparisons[i]))
	}
	return s
}
