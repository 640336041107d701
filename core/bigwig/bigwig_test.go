package bigwig

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"maptrack-core/chromsizes"
	"maptrack-core/wig"
)

func fixture() (chromsizes.Sizes, []wig.Section) {
	sizes := chromsizes.Sizes{{Name: "chr2", Length: 100}, {Name: "chr1", Length: 50}, {Name: "chr10", Length: 30}}
	var fixed []wig.Item
	for i := 0; i < 12; i++ {
		fixed = append(fixed, wig.Item{Start: 5 + 5*i, End: 10 + 5*i, Value: float32(i) / 10})
	}
	secs := []wig.Section{
		{Chrom: "chr2", Kind: wig.FixedStep, Start: 5, Step: 5, Span: 5, Items: fixed},
		{Chrom: "chr1", Kind: wig.VariableStep, Step: 1, Span: 2, Items: []wig.Item{{Start: 0, End: 2, Value: 1}, {Start: 10, End: 12, Value: 0.5}}},
		{Chrom: "chr10", Kind: wig.BedGraph, Items: []wig.Item{{Start: 0, End: 30, Value: 0.25}}},
	}
	return sizes, secs
}

func encode(t *testing.T, opt WriteOptions) *Reader {
	t.Helper()
	sizes, secs := fixture()
	var buf bytes.Buffer
	if err := Encode(&buf, sizes, secs, opt); err != nil {
		t.Fatalf("encode: %v", err)
	}
	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	return r
}

func isNaN(v float32) bool { return math.IsNaN(float64(v)) }

func TestRoundTrip(t *testing.T) {
	opts := map[string]WriteOptions{
		"defaults":   {},
		"deep trees": {ItemsPerSlot: 3, BlockSize: 2},
		"raw blocks": {ItemsPerSlot: 3, BlockSize: 2, NoCompress: true},
	}
	for name, opt := range opts {
		t.Run(name, func(t *testing.T) {
			r := encode(t, opt)

			chroms := r.Chroms()
			wantNames := []string{"chr1", "chr10", "chr2"}
			if len(chroms) != 3 {
				t.Fatalf("chroms %+v", chroms)
			}
			for i, c := range chroms {
				if c.Name != wantNames[i] || c.ID != uint32(i) {
					t.Fatalf("chrom %d = %+v", i, c)
				}
			}
			if c, ok := r.Chrom("chr2"); !ok || c.Size != 100 {
				t.Fatalf("chr2 = %+v %v", c, ok)
			}

			v, err := r.Values("chr1", 0, 13)
			if err != nil {
				t.Fatalf("values chr1: %v", err)
			}
			for i, x := range v {
				switch {
				case i < 2:
					if x != 1 {
						t.Fatalf("chr1[%d]=%v want 1", i, x)
					}
				case i == 10 || i == 11:
					if x != 0.5 {
						t.Fatalf("chr1[%d]=%v want 0.5", i, x)
					}
				default:
					if !isNaN(x) {
						t.Fatalf("chr1[%d]=%v want NaN", i, x)
					}
				}
			}

			v, err = r.Values("chr2", 0, 100)
			if err != nil {
				t.Fatalf("values chr2: %v", err)
			}
			for p, x := range v {
				if p < 5 || p >= 65 {
					if !isNaN(x) {
						t.Fatalf("chr2[%d]=%v want NaN", p, x)
					}
					continue
				}
				if want := float32((p-5)/5) / 10; x != want {
					t.Fatalf("chr2[%d]=%v want %v", p, x, want)
				}
			}

			ivs, err := r.Intervals("chr2", 12, 22)
			if err != nil {
				t.Fatalf("intervals: %v", err)
			}
			if len(ivs) != 3 || ivs[0].Start != 10 || ivs[2].End != 25 {
				t.Fatalf("intervals %+v", ivs)
			}

			v, err = r.Values("chr10", 29, 30)
			if err != nil || len(v) != 1 || v[0] != 0.25 {
				t.Fatalf("chr10 tail %v %v", v, err)
			}

			s := r.Summary()
			if s.BasesCovered != 94 {
				t.Fatalf("bases covered %d", s.BasesCovered)
			}
			if math.Abs(s.Sum-43.5) > 1e-4 || s.Min != 0 || math.Abs(s.Max-1.1) > 1e-6 {
				t.Fatalf("summary %+v", s)
			}
		})
	}
}

func TestRangeErrors(t *testing.T) {
	r := encode(t, WriteOptions{})
	if _, err := r.Values("chrX", 0, 1); !errors.Is(err, ErrUnknownChrom) {
		t.Fatalf("want ErrUnknownChrom, got %v", err)
	}
	if _, err := r.Values("chr1", 0, 51); err == nil {
		t.Fatal("expected out of range error")
	}
	if _, err := r.Values("chr1", 5, 4); err == nil {
		t.Fatal("expected inverted range error")
	}
	if v, err := r.Values("chr1", 3, 3); err != nil || len(v) != 0 {
		t.Fatalf("empty range: %v %v", v, err)
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	sizes := chromsizes.Sizes{{Name: "c", Length: 10}}
	cases := map[string][]wig.Section{
		"unknown chrom": {{Chrom: "d", Kind: wig.BedGraph, Items: []wig.Item{{Start: 0, End: 1, Value: 1}}}},
		"past end":      {{Chrom: "c", Kind: wig.BedGraph, Items: []wig.Item{{Start: 5, End: 11, Value: 1}}}},
		"unsorted":      {{Chrom: "c", Kind: wig.BedGraph, Items: []wig.Item{{Start: 5, End: 6, Value: 1}, {Start: 1, End: 2, Value: 1}}}},
	}
	for name, secs := range cases {
		if err := Encode(&bytes.Buffer{}, sizes, secs, WriteOptions{}); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if err := Encode(&bytes.Buffer{}, nil, nil, WriteOptions{}); err == nil {
		t.Error("expected error without chromosomes")
	}
}

func TestEmptyTrack(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, chromsizes.Sizes{{Name: "c", Length: 4}}, nil, WriteOptions{}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	v, err := r.Values("c", 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range v {
		if !isNaN(x) {
			t.Fatalf("want all NaN, got %v", v)
		}
	}
}

func TestOpenFileAndBadMagic(t *testing.T) {
	dir := t.TempDir()
	sizes, secs := fixture()
	var buf bytes.Buffer
	if err := Encode(&buf, sizes, secs, WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "24_x.bw")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if r.Version() != 4 {
		t.Fatalf("version %d", r.Version())
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	bad := filepath.Join(dir, "bad.bw")
	if err := os.WriteFile(bad, make([]byte, 128), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(bad); !errors.Is(err, ErrNotBigWig) {
		t.Fatalf("want ErrNotBigWig, got %v", err)
	}
}

func TestTreeLayoutContiguous(t *testing.T) {
	for _, n := range []int{0, 1, 2, 255, 256, 257, 300, 65536, 65537} {
		tl := layoutTree(n, 256, 100, 32, 24)
		off := int64(100)
		items := 0
		for lvl := len(tl.nodes) - 1; lvl >= 0; lvl-- {
			size := 24
			if lvl == 0 {
				size = 32
			}
			for j, got := range tl.nodes[lvl] {
				if got != off {
					t.Fatalf("n=%d level %d node %d at %d, want %d", n, lvl, j, got, off)
				}
				k := tl.itemsIn(lvl, j)
				if lvl == 0 {
					items += k
				}
				off += int64(nodeHeaderSize + k*size)
			}
		}
		if items != n || tl.end != off {
			t.Fatalf("n=%d: %d leaves, end %d want %d", n, items, tl.end, off)
		}
		if len(tl.nodes[len(tl.nodes)-1]) != 1 {
			t.Fatalf("n=%d: root level has %d nodes", n, len(tl.nodes[len(tl.nodes)-1]))
		}
	}
}

func TestManyScaffoldsDefaults(t *testing.T) {
	var sizes chromsizes.Sizes
	var secs []wig.Section
	for i := 0; i < 300; i++ {
		name := fmt.Sprintf("scaffold_%03d", i)
		sizes = append(sizes, chromsizes.Chrom{Name: name, Length: 10})
		secs = append(secs, wig.Section{Chrom: name, Kind: wig.BedGraph,
			Items: []wig.Item{{Start: 2, End: 4, Value: float32(i)}}})
	}
	var buf bytes.Buffer
	if err := Encode(&buf, sizes, secs, WriteOptions{}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	if got := len(r.Chroms()); got != 300 {
		t.Fatalf("%d chroms, want 300", got)
	}
	for _, i := range []int{0, 1, 255, 256, 299} {
		name := fmt.Sprintf("scaffold_%03d", i)
		v, err := r.Values(name, 0, 10)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if v[2] != float32(i) || v[3] != float32(i) || !isNaN(v[1]) || !isNaN(v[4]) {
			t.Fatalf("%s: %v", name, v)
		}
	}
}

func TestManyBlocksDefaults(t *testing.T) {
	const n = 300 * 1024
	items := make([]wig.Item, n)
	for i := range items {
		items[i] = wig.Item{Start: i, End: i + 1, Value: 1}
	}
	items[n-1].Value = 0.5
	sizes := chromsizes.Sizes{{Name: "chr1", Length: n}}
	secs := []wig.Section{{Chrom: "chr1", Kind: wig.FixedStep, Start: 0, Step: 1, Span: 1, Items: items}}

	for name, opt := range map[string]WriteOptions{"zlib": {}, "raw": {NoCompress: true}} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, sizes, secs, opt); err != nil {
				t.Fatalf("encode: %v", err)
			}
			r, err := NewReader(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("reader: %v", err)
			}
			for _, start := range []int{0, 262143, n/2 - 5, n - 10} {
				v, err := r.Values("chr1", start, start+10)
				if err != nil {
					t.Fatalf("values @%d: %v", start, err)
				}
				for i, x := range v {
					want := float32(1)
					if start+i == n-1 {
						want = 0.5
					}
					if x != want {
						t.Fatalf("chr1[%d]=%v want %v", start+i, x, want)
					}
				}
			}
			if s := r.Summary(); s.BasesCovered != n {
				t.Fatalf("bases covered %d", s.BasesCovered)
			}
		})
	}
}
