package writers

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/snappy"

	"maptrack/internal/mapdiff"
)

// RegionsFile names the change-region table of one comparison.
func RegionsFile(dir, comparison string, compress bool) string {
	name := "regions_" + comparison + ".tsv"
	if compress {
		name += ".sz"
	}
	return filepath.Join(dir, name)
}

// GenesFile names the per-gene table.
func GenesFile(dir string) string { return filepath.Join(dir, "genes.tsv") }

// createTable opens path for writing through a temp file. With compress
// set the stream is snappy framed. commit renames the file into place.
func createTable(path string, compress bool) (w *bufio.Writer, commit func() error, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, nil, err
	}
	var sink io.Writer = tmp
	var sw *snappy.Writer
	if compress {
		sw = snappy.NewBufferedWriter(tmp)
		sink = sw
	}
	bw := bufio.NewWriterSize(sink, 64<<10)
	commit = func() error {
		err := bw.Flush()
		if sw != nil && err == nil {
			err = sw.Close()
		}
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err == nil {
			err = os.Rename(tmp.Name(), path)
		}
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
		return err
	}
	return bw, commit, nil
}

// WriteRegions writes the change regions of c as TSV.
func WriteRegions(path string, c *mapdiff.Comparison, compress bool) error {
	bw, commit, err := createTable(path, compress)
	if err != nil {
		return err
	}
	fmt.Fprintln(bw, "chrom\tstart\tend\tlength\tchanged\tmean_diff\tgenes")
	for _, r := range c.Regions {
		genes := "-"
		if len(r.Genes) > 0 {
			genes = strings.Join(r.Genes, ",")
		}
		fmt.Fprintf(bw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.Chrom, r.Start, r.End, r.End-r.Start, r.Changed, strconv.FormatFloat(r.MeanDiff, 'g', 6, 64), genes)
	}
	return commit()
}

// WriteGenes writes the mean value of every track per gene.
func WriteGenes(path string, keys []string, genes []mapdiff.GeneStats) error {
	bw, commit, err := createTable(path, false)
	if err != nil {
		return err
	}
	fmt.Fprint(bw, "gene_id\tgene_name\tchrom\tstart\tend\tstrand")
	for _, k := range keys {
		fmt.Fprintf(bw, "\tmean_%s", k)
	}
	fmt.Fprintln(bw)
	for _, g := range genes {
		fmt.Fprintf(bw, "%s\t%s\t%s\t%d\t%d\t%s", g.Gene.ID, g.Gene.Name, g.Gene.Chrom, g.Gene.Start, g.Gene.End, g.Gene.Strand)
		for _, m := range g.Means {
			v := "NA"
			if !math.IsNaN(m) {
				v = strconv.FormatFloat(m, 'f', 4, 64)
			}
			fmt.Fprintf(bw, "\t%s", v)
		}
		fmt.Fprintln(bw)
	}
	return commit()
}
