// Package mapdiff compares mappability tracks of one genome computed at
// different k-mer sizes.
//
// Tracks are ordered by key and every pair (i<j) is compared as
// track_j - track_i under the name "<key_i>_vs_<key_j>". Chromosomes are
// streamed in windows on a worker pool, so memory stays bounded by
// workers x tracks x window.
package mapdiff

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	logging "github.com/op/go-logging"

	"maptrack/internal/annot"
	"maptrack/internal/track"
)

var log = logging.MustGetLogger("mapdiff")

// Options tune a comparison. The zero value uses the defaults in brackets.
type Options struct {
	Epsilon   float64      // |diff| above this is a change [0]
	MinRegion int          // shortest reported change region [1]
	MergeGap  int          // join regions separated by at most this many bases [0]
	Bins      int          // histogram bins [100]
	Threads   int          // chromosome workers [GOMAXPROCS]
	Window    int          // bases read per track at a time [1 Mi]
	Genes     *annot.Index // optional gene overlay
}

func (o Options) withDefaults() Options {
	if o.Epsilon < 0 {
		o.Epsilon = 0
	}
	if o.MinRegion < 1 {
		o.MinRegion = 1
	}
	if o.MergeGap < 0 {
		o.MergeGap = 0
	}
	if o.Bins < 1 {
		o.Bins = 100
	}
	if o.Threads < 1 {
		o.Threads = runtime.GOMAXPROCS(0)
	}
	if o.Window < 1 {
		o.Window = 1 << 20
	}
	return o
}

// TrackStats summarises the values of one track.
type TrackStats struct {
	Key    string
	Path   string
	Bases  int64 // covered bases
	NaN    int64 // uncovered bases
	Sum    float64
	Min    float64
	Max    float64
	Unique int64 // bases with value 1
	Hist   Histogram
}

func (s *TrackStats) Mean() float64 {
	if s.Bases == 0 {
		return math.NaN()
	}
	return s.Sum / float64(s.Bases)
}

func (s *TrackStats) UniqueFraction() float64 {
	if s.Bases == 0 {
		return math.NaN()
	}
	return float64(s.Unique) / float64(s.Bases)
}

func (s *TrackStats) add(v float64) {
	if math.IsNaN(v) {
		s.NaN++
		return
	}
	if s.Bases == 0 || v < s.Min {
		s.Min = v
	}
	if s.Bases == 0 || v > s.Max {
		s.Max = v
	}
	s.Bases++
	s.Sum += v
	if v == 1 {
		s.Unique++
	}
	s.Hist.Add(v)
}

func (s *TrackStats) merge(o TrackStats) {
	if o.Bases > 0 {
		if s.Bases == 0 || o.Min < s.Min {
			s.Min = o.Min
		}
		if s.Bases == 0 || o.Max > s.Max {
			s.Max = o.Max
		}
	}
	s.Bases += o.Bases
	s.NaN += o.NaN
	s.Sum += o.Sum
	s.Unique += o.Unique
	s.Hist.Merge(o.Hist)
}

// Region is a maximal run of changed bases, possibly merged across short
// gaps. Start/End are 0-based half-open.
type Region struct {
	Chrom    string
	Start    int
	End      int
	Changed  int // changed bases inside the region
	MeanDiff float64
	Genes    []string
}

// Comparison is the difference between two tracks.
type Comparison struct {
	Name      string
	From, To  string // keys; diff = To - From
	Compared  int64  // bases covered in both tracks
	SumDiff   float64
	Increased int64
	Decreased int64
	Unchanged int64
	Hist      Histogram
	Regions   []Region
	Skipped   []string // chromosomes missing from To
}

func (c *Comparison) MeanDiff() float64 {
	if c.Compared == 0 {
		return math.NaN()
	}
	return c.SumDiff / float64(c.Compared)
}

func (c *Comparison) merge(o *Comparison) {
	c.Compared += o.Compared
	c.SumDiff += o.SumDiff
	c.Increased += o.Increased
	c.Decreased += o.Decreased
	c.Unchanged += o.Unchanged
	c.Hist.Merge(o.Hist)
	c.Regions = append(c.Regions, o.Regions...)
	c.Skipped = append(c.Skipped, o.Skipped...)
}

// GeneStats holds the mean value of every track over one gene, in key
// order. NaN means no covered base.
type GeneStats struct {
	Gene  annot.Gene
	Means []float64
}

// Result of a Run.
type Result struct {
	Keys        []string
	Chroms      []string
	Tracks      []TrackStats
	Comparisons []Comparison
	Genes       []GeneStats
}

// ErrTooFewTracks is returned when fewer than two tracks are given.
var ErrTooFewTracks = errors.New("mapdiff: need at least two tracks")

// Pairs names the comparisons for keys in order.
func Pairs(keys []string) [][2]int {
	var out [][2]int
	for i := 0; i < len(keys)-1; i++ {
		for j := i + 1; j < len(keys); j++ {
			out = append(out, [2]int{i, j})
		}
	}
	return out
}

// Run compares tracks, which must already be sorted by key.
func Run(ctx context.Context, tracks []track.Track, opt Options) (*Result, error) {
	if len(tracks) < 2 {
		return nil, ErrTooFewTracks
	}
	opt = opt.withDefaults()

	res := &Result{}
	for _, t := range tracks {
		res.Keys = append(res.Keys, t.Key)
		res.Tracks = append(res.Tracks, TrackStats{Key: t.Key, Path: t.Path, Hist: NewHistogram(0, 1, opt.Bins)})
	}
	pairs := Pairs(res.Keys)
	for _, p := range pairs {
		from, to := res.Keys[p[0]], res.Keys[p[1]]
		res.Comparisons = append(res.Comparisons, Comparison{
			Name: from + "_vs_" + to, From: from, To: to,
			Hist: NewHistogram(-1, 1, opt.Bins),
		})
	}
	res.Chroms = chromUnion(tracks)

	var genes []annot.Gene
	if opt.Genes != nil {
		genes = opt.Genes.Genes()
	}
	geneSum := make([][]float64, len(genes))
	geneN := make([][]int64, len(genes))
	for i := range genes {
		geneSum[i] = make([]float64, len(tracks))
		geneN[i] = make([]int64, len(tracks))
	}

	parts, err := runChroms(ctx, tracks, res.Chroms, pairs, opt)
	if err != nil {
		return nil, err
	}
	for _, part := range parts {
		for i := range res.Tracks {
			res.Tracks[i].merge(part.tracks[i])
		}
		for i := range res.Comparisons {
			res.Comparisons[i].merge(&part.cmps[i])
		}
		for gi, sums := range part.geneSum {
			for ti, v := range sums {
				geneSum[gi][ti] += v
				geneN[gi][ti] += part.geneN[gi][ti]
			}
		}
	}
	for i, g := range genes {
		gs := GeneStats{Gene: g, Means: make([]float64, len(tracks))}
		for ti := range tracks {
			gs.Means[ti] = math.NaN()
			if geneN[i][ti] > 0 {
				gs.Means[ti] = geneSum[i][ti] / float64(geneN[i][ti])
			}
		}
		res.Genes = append(res.Genes, gs)
	}
	return res, nil
}

// chromUnion lists chromosomes in first-track order, then any extra ones
// from later tracks.
func chromUnion(tracks []track.Track) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range tracks {
		for _, c := range t.Chroms() {
			if !seen[c.Name] {
				seen[c.Name] = true
				out = append(out, c.Name)
			}
		}
	}
	return out
}

// runChroms processes chroms on opt.Threads workers and returns the
// per-chromosome partial results in chroms order.
func runChroms(parent context.Context, tracks []track.Track, chroms []string, pairs [][2]int, opt Options) ([]*partial, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	type job struct {
		idx   int
		chrom string
	}
	type result struct {
		idx  int
		part *partial
		err  error
	}
	jobs := make(chan job)
	results := make(chan result, opt.Threads)

	var wg sync.WaitGroup
	for w := 0; w < opt.Threads; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				part, err := compareChrom(ctx, tracks, j.chrom, pairs, opt)
				results <- result{idx: j.idx, part: part, err: err}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for i, c := range chroms {
			select {
			case <-ctx.Done():
				return
			case jobs <- job{idx: i, chrom: c}:
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	parts := make([]*partial, len(chroms))
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", chroms[r.idx], r.err)
				cancel()
			}
			continue
		}
		parts[r.idx] = r.part
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return parts, nil
}
