package mapdiff

import (
	"context"
	"math"

	"maptrack/internal/track"
)

// partial holds one chromosome's contribution to a Result.
type partial struct {
	tracks  []TrackStats
	cmps    []Comparison
	geneSum map[int][]float64
	geneN   map[int][]int64
}

// regionBuilder grows change regions base by base.
type regionBuilder struct {
	chrom      string
	open       bool
	start, end int
	n          int
	sum        float64
	out        []Region
}

func (b *regionBuilder) changed(pos int, d float64, mergeGap, minLen int) {
	if b.open && pos-b.end <= mergeGap {
		b.end = pos + 1
		b.n++
		b.sum += d
		return
	}
	b.close(minLen)
	b.open, b.start, b.end, b.n, b.sum = true, pos, pos+1, 1, d
}

func (b *regionBuilder) close(minLen int) {
	if b.open && b.end-b.start >= minLen {
		b.out = append(b.out, Region{
			Chrom:    b.chrom,
			Start:    b.start,
			End:      b.end,
			Changed:  b.n,
			MeanDiff: b.sum / float64(b.n),
		})
	}
	b.open = false
}

func chromSize(t track.Track, chrom string) int {
	for _, c := range t.Chroms() {
		if c.Name == chrom {
			return c.Size
		}
	}
	return -1
}

func compareChrom(ctx context.Context, tracks []track.Track, chrom string, pairs [][2]int, opt Options) (*partial, error) {
	p := &partial{
		tracks:  make([]TrackStats, len(tracks)),
		cmps:    make([]Comparison, len(pairs)),
		geneSum: map[int][]float64{},
		geneN:   map[int][]int64{},
	}
	sizes := make([]int, len(tracks))
	maxSize := 0
	for i, t := range tracks {
		p.tracks[i].Hist = NewHistogram(0, 1, opt.Bins)
		sizes[i] = chromSize(t, chrom)
		if sizes[i] > maxSize {
			maxSize = sizes[i]
		}
	}

	// Bases compared per pair; -1 skips the pair.
	limit := make([]int, len(pairs))
	builders := make([]regionBuilder, len(pairs))
	for k, pr := range pairs {
		p.cmps[k].Hist = NewHistogram(-1, 1, opt.Bins)
		builders[k].chrom = chrom
		a, b := sizes[pr[0]], sizes[pr[1]]
		switch {
		case a < 0 || b < 0:
			limit[k] = -1
			p.cmps[k].Skipped = []string{chrom}
			missing := tracks[pr[1]].Key
			if b >= 0 {
				missing = tracks[pr[0]].Key
			}
			log.Warningf("%s_vs_%s: %s missing from track %s, skipped", tracks[pr[0]].Key, tracks[pr[1]].Key, chrom, missing)
		case a != b:
			limit[k] = a
			if b < a {
				limit[k] = b
			}
			log.Warningf("%s_vs_%s: %s length differs (%d vs %d), comparing the first %d bases",
				tracks[pr[0]].Key, tracks[pr[1]].Key, chrom, a, b, limit[k])
		default:
			limit[k] = a
		}
	}
	log.Debugf("%s: %d bases", chrom, maxSize)

	vals := make([][]float32, len(tracks))
	for ws := 0; ws < maxSize; ws += opt.Window {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		we := ws + opt.Window
		if we > maxSize {
			we = maxSize
		}
		for i, t := range tracks {
			vals[i] = nil
			if sizes[i] <= ws {
				continue
			}
			end := we
			if end > sizes[i] {
				end = sizes[i]
			}
			v, err := t.Values(chrom, ws, end)
			if err != nil {
				return nil, err
			}
			vals[i] = v
			for _, x := range v {
				p.tracks[i].add(float64(x))
			}
		}

		for k, pr := range pairs {
			if limit[k] <= ws {
				continue
			}
			a, b := vals[pr[0]], vals[pr[1]]
			n := limit[k] - ws
			if n > len(a) {
				n = len(a)
			}
			if n > len(b) {
				n = len(b)
			}
			c := &p.cmps[k]
			for x := 0; x < n; x++ {
				va, vb := float64(a[x]), float64(b[x])
				if math.IsNaN(va) || math.IsNaN(vb) {
					continue
				}
				d := vb - va
				c.Compared++
				c.SumDiff += d
				c.Hist.Add(d)
				switch {
				case d > opt.Epsilon:
					c.Increased++
				case d < -opt.Epsilon:
					c.Decreased++
				default:
					c.Unchanged++
					continue
				}
				builders[k].changed(ws+x, d, opt.MergeGap, opt.MinRegion)
			}
		}

		if opt.Genes != nil {
			p.addGenes(opt, chrom, ws, vals)
		}
	}

	for k := range builders {
		builders[k].close(opt.MinRegion)
		regs := builders[k].out
		if opt.Genes != nil {
			for r := range regs {
				for _, g := range opt.Genes.Overlapping(chrom, regs[r].Start, regs[r].End) {
					regs[r].Genes = append(regs[r].Genes, g.Name)
				}
			}
		}
		p.cmps[k].Regions = regs
	}
	return p, nil
}

// addGenes accumulates per-gene sums for the window starting at ws.
func (p *partial) addGenes(opt Options, chrom string, ws int, vals [][]float32) {
	we := ws
	for _, v := range vals {
		if ws+len(v) > we {
			we = ws + len(v)
		}
	}
	genes := opt.Genes.Genes()
	for _, gi := range opt.Genes.Lookup(chrom, ws, we) {
		g := genes[gi]
		sums, ok := p.geneSum[gi]
		if !ok {
			sums = make([]float64, len(vals))
			p.geneSum[gi] = sums
			p.geneN[gi] = make([]int64, len(vals))
		}
		ns := p.geneN[gi]
		for ti, v := range vals {
			lo, hi := g.Start-ws, g.End-ws
			if lo < 0 {
				lo = 0
			}
			if hi > len(v) {
				hi = len(v)
			}
			for x := lo; x < hi; x++ {
				if f := float64(v[x]); !math.IsNaN(f) {
					sums[ti] += f
					ns[ti]++
				}
			}
		}
	}
}
