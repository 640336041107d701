package annot

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const gtfGenes = `#!genome-build test
##gff-version 2
chr1	src	gene	11	20	.	+	.	gene_id "G1"; gene_name "alpha";
chr1	src	exon	11	15	.	+	.	gene_id "G1"; transcript_id "T1";
chr1	src	gene	31	60	.	-	.	gene_id "G2";
chr2	src	gene	1	5	.	+	.	gene_id "G3"; gene_name "gamma";
`

const gtfExonsOnly = `chr1	src	exon	101	110	.	+	.	gene_id "E1"; transcript_id "T1";
chr1	src	exon	131	140	.	+	.	gene_id "E1"; transcript_id "T1";
chr1	src	transcript	91	120	.	+	.	gene_id "E1"; transcript_id "T2";
`

func TestReadGTFGenes(t *testing.T) {
	genes, err := ReadGTF(strings.NewReader(gtfGenes))
	if err != nil {
		t.Fatal(err)
	}
	if len(genes) != 3 {
		t.Fatalf("genes %+v", genes)
	}
	g := genes[0]
	if g.ID != "G1" || g.Name != "alpha" || g.Chrom != "chr1" || g.Start != 10 || g.End != 20 || g.Strand != "+" {
		t.Fatalf("G1 %+v", g)
	}
	if genes[1].Name != "G2" || genes[1].Strand != "-" {
		t.Fatalf("G2 name falls back to id: %+v", genes[1])
	}
}

func TestReadGTFDerivesGenes(t *testing.T) {
	genes, err := ReadGTF(strings.NewReader(gtfExonsOnly))
	if err != nil {
		t.Fatal(err)
	}
	if len(genes) != 1 || genes[0].Start != 90 || genes[0].End != 140 {
		t.Fatalf("derived %+v", genes)
	}
}

func TestLoadGTFGzip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.gtf.gz")
	fh, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(fh)
	zw.Write([]byte(gtfGenes))
	zw.Close()
	fh.Close()
	genes, err := LoadGTF(p)
	if err != nil || len(genes) != 3 {
		t.Fatalf("LoadGTF: %v %+v", err, genes)
	}
}

func TestIndexOverlapping(t *testing.T) {
	genes, err := ReadGTF(strings.NewReader(gtfGenes))
	if err != nil {
		t.Fatal(err)
	}
	ix, err := NewIndex(genes)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		chrom      string
		start, end int
		want       []string
	}{
		{"chr1", 0, 10, nil},
		{"chr1", 0, 11, []string{"G1"}},
		{"chr1", 19, 31, []string{"G1", "G2"}},
		{"chr1", 20, 30, nil},
		{"chr2", 4, 100, []string{"G3"}},
		{"chrX", 0, 100, nil},
	}
	for _, c := range cases {
		got := ix.Overlapping(c.chrom, c.start, c.end)
		var ids []string
		for _, g := range got {
			ids = append(ids, g.ID)
		}
		if strings.Join(ids, ",") != strings.Join(c.want, ",") {
			t.Errorf("%s:%d-%d = %v, want %v", c.chrom, c.start, c.end, ids, c.want)
		}
	}
}
