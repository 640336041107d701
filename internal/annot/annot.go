// Package annot loads gene spans from a GTF annotation and indexes them
// for overlap queries.
package annot

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/biogo/biogo/io/featio"
	"github.com/biogo/biogo/io/featio/gff"
	"github.com/biogo/biogo/seq"
	"github.com/biogo/store/interval"
	logging "github.com/op/go-logging"

	"maptrack-core/fasta"
)

var log = logging.MustGetLogger("annot")

// Gene is a 0-based half-open gene span.
type Gene struct {
	ID     string
	Name   string
	Chrom  string
	Start  int
	End    int
	Strand string
}

// LoadGTF reads gene spans from a (possibly gzipped) GTF file. Gene lines
// are used when present; otherwise each gene spans its exons and
// transcripts.
func LoadGTF(path string) ([]Gene, error) {
	rc, err := fasta.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	genes, err := ReadGTF(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return genes, nil
}

// ReadGTF is LoadGTF on an open stream.
func ReadGTF(r io.Reader) ([]Gene, error) {
	sc := featio.NewScanner(gff.NewReader(&commentFilter{r: bufio.NewReader(r)}))
	var (
		genes   []Gene
		derived = map[string]*Gene{}
		order   []string
		skipped int
	)
	for sc.Next() {
		f := sc.Feat().(*gff.Feature)
		id := attr(f.FeatAttributes, "gene_id")
		if id == "" {
			skipped++
			continue
		}
		g := Gene{
			ID:     id,
			Name:   attr(f.FeatAttributes, "gene_name"),
			Chrom:  f.SeqName,
			Start:  f.FeatStart,
			End:    f.FeatEnd,
			Strand: strand(f.FeatStrand),
		}
		if g.Name == "" {
			g.Name = id
		}
		switch f.Feature {
		case "gene":
			genes = append(genes, g)
		case "exon", "transcript":
			key := g.Chrom + "\x00" + id
			d, ok := derived[key]
			if !ok {
				derived[key] = &g
				order = append(order, key)
				continue
			}
			if g.Start < d.Start {
				d.Start = g.Start
			}
			if g.End > d.End {
				d.End = g.End
			}
		}
	}
	if err := sc.Error(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Debugf("%d features without gene_id ignored", skipped)
	}
	if len(genes) == 0 {
		for _, k := range order {
			genes = append(genes, *derived[k])
		}
		if len(genes) > 0 {
			log.Infof("no gene features; derived %d genes from exons and transcripts", len(genes))
		}
	}
	sort.SliceStable(genes, func(i, j int) bool {
		if genes[i].Chrom != genes[j].Chrom {
			return genes[i].Chrom < genes[j].Chrom
		}
		return genes[i].Start < genes[j].Start
	})
	return genes, nil
}

func strand(s seq.Strand) string {
	switch s {
	case seq.Plus:
		return "+"
	case seq.Minus:
		return "-"
	}
	return "."
}

func attr(a gff.Attributes, tag string) string {
	return strings.Trim(strings.TrimSpace(a.Get(tag)), `"`)
}

// commentFilter drops "#" comment lines other than "##" directives,
// which the gff reader does not accept.
type commentFilter struct {
	r   *bufio.Reader
	buf []byte
	err error
}

func (c *commentFilter) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		line, err := c.r.ReadBytes('\n')
		c.err = err
		if len(line) > 0 && line[0] == '#' && (len(line) < 2 || line[1] != '#') {
			continue
		}
		c.buf = line
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// Index answers overlap queries per chromosome.
type Index struct {
	genes []Gene
	trees map[string]*interval.IntTree
}

type geneInterval struct {
	uid        uintptr
	start, end int
}

func (g geneInterval) Overlap(b interval.IntRange) bool { return g.start < b.End && b.Start < g.end }
func (g geneInterval) ID() uintptr                      { return g.uid }
func (g geneInterval) Range() interval.IntRange {
	return interval.IntRange{Start: g.start, End: g.end}
}

// NewIndex builds an index over genes. Empty spans are left out.
func NewIndex(genes []Gene) (*Index, error) {
	ix := &Index{genes: genes, trees: map[string]*interval.IntTree{}}
	for i, g := range genes {
		if g.End <= g.Start {
			continue
		}
		t := ix.trees[g.Chrom]
		if t == nil {
			t = &interval.IntTree{}
			ix.trees[g.Chrom] = t
		}
		if err := t.Insert(geneInterval{uid: uintptr(i), start: g.Start, end: g.End}, true); err != nil {
			return nil, fmt.Errorf("index gene %s: %w", g.ID, err)
		}
	}
	for _, t := range ix.trees {
		t.AdjustRanges()
	}
	return ix, nil
}

// Genes returns every indexed gene in load order.
func (ix *Index) Genes() []Gene { return ix.genes }

// Lookup returns the positions in Genes of the genes on chrom intersecting
// [start, end), in no particular order.
func (ix *Index) Lookup(chrom string, start, end int) []int {
	t := ix.trees[chrom]
	if t == nil || end <= start {
		return nil
	}
	hits := t.Get(geneInterval{start: start, end: end})
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = int(h.ID())
	}
	return out
}

// Overlapping returns the genes on chrom intersecting [start, end), by
// start position.
func (ix *Index) Overlapping(chrom string, start, end int) []Gene {
	idx := ix.Lookup(chrom, start, end)
	out := make([]Gene, 0, len(idx))
	for _, i := range idx {
		out = append(out, ix.genes[i])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out
}
