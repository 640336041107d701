package bigwig

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"maptrack-core/chromsizes"
	"maptrack-core/wig"
)

// WriteOptions tunes Encode. The zero value is usable.
type WriteOptions struct {
	ItemsPerSlot int  // max items per data block [1024]
	BlockSize    int  // B+ tree / R-tree fanout [256]
	NoCompress   bool // store blocks raw instead of zlib
}

func (o WriteOptions) withDefaults() WriteOptions {
	if o.ItemsPerSlot <= 0 {
		o.ItemsPerSlot = 1024
	}
	if o.ItemsPerSlot > math.MaxUint16 {
		o.ItemsPerSlot = math.MaxUint16
	}
	if o.BlockSize < 2 {
		o.BlockSize = 256
	}
	if o.BlockSize > math.MaxUint16 {
		o.BlockSize = math.MaxUint16
	}
	return o
}

var le = binary.LittleEndian

type dataBlock struct {
	chrom      uint32
	start, end uint32
	off, size  uint64
}

type encoder struct {
	opt     WriteOptions
	buf     bytes.Buffer
	scratch []byte
}

func (e *encoder) u8(v uint8) { e.buf.WriteByte(v) }

func (e *encoder) u16(v uint16) {
	e.scratch = le.AppendUint16(e.scratch[:0], v)
	e.buf.Write(e.scratch)
}

func (e *encoder) u32(v uint32) {
	e.scratch = le.AppendUint32(e.scratch[:0], v)
	e.buf.Write(e.scratch)
}

func (e *encoder) u64(v uint64) {
	e.scratch = le.AppendUint64(e.scratch[:0], v)
	e.buf.Write(e.scratch)
}

func (e *encoder) pos() int64 { return int64(e.buf.Len()) }

// Encode writes sections as a BigWig to w. Chromosome IDs follow the
// byte order of names. Every section chromosome must appear in sizes and
// every item must fall inside the chromosome.
func Encode(w io.Writer, sizes chromsizes.Sizes, sections []wig.Section, opt WriteOptions) error {
	opt = opt.withDefaults()
	if len(sizes) == 0 {
		return fmt.Errorf("bigwig encode: no chromosomes")
	}

	chroms := make([]Chrom, len(sizes))
	for i, c := range sizes {
		chroms[i] = Chrom{Name: c.Name, Size: c.Length}
	}
	sort.Slice(chroms, func(i, j int) bool { return chroms[i].Name < chroms[j].Name })
	ids := make(map[string]uint32, len(chroms))
	keySize := 1
	for i := range chroms {
		chroms[i].ID = uint32(i)
		ids[chroms[i].Name] = uint32(i)
		if len(chroms[i].Name) > keySize {
			keySize = len(chroms[i].Name)
		}
	}

	secs := make([]wig.Section, 0, len(sections))
	for _, s := range sections {
		if len(s.Items) == 0 {
			continue
		}
		id, ok := ids[s.Chrom]
		if !ok {
			return fmt.Errorf("bigwig encode: %w: %s not in chrom sizes", ErrUnknownChrom, s.Chrom)
		}
		size := chroms[id].Size
		prev := -1
		for _, it := range s.Items {
			if it.Start < prev {
				return fmt.Errorf("bigwig encode: %s items not sorted at %d", s.Chrom, it.Start)
			}
			if it.Start < 0 || it.End <= it.Start || it.End > size {
				return fmt.Errorf("bigwig encode: %s:%d-%d outside [0,%d]", s.Chrom, it.Start, it.End, size)
			}
			prev = it.Start
		}
		secs = append(secs, s)
	}
	sort.SliceStable(secs, func(i, j int) bool {
		ci, cj := ids[secs[i].Chrom], ids[secs[j].Chrom]
		if ci != cj {
			return ci < cj
		}
		return secs[i].Items[0].Start < secs[j].Items[0].Start
	})

	e := &encoder{opt: opt}

	// Header and summary are patched once offsets are known.
	e.buf.Write(make([]byte, headerSize+summarySize))

	chromTreeOff := e.pos()
	e.writeChromTree(chroms, keySize)

	dataOff := e.pos()
	blocks, maxRaw, sum, err := e.writeData(secs, ids)
	if err != nil {
		return err
	}

	indexOff := e.pos()
	e.writeIndex(blocks, indexOff)
	e.u32(Magic)

	out := e.buf.Bytes()
	hdr := out[:headerSize]
	le.PutUint32(hdr[0:], Magic)
	le.PutUint16(hdr[4:], 4)
	le.PutUint16(hdr[6:], 0)
	le.PutUint64(hdr[8:], uint64(chromTreeOff))
	le.PutUint64(hdr[16:], uint64(dataOff))
	le.PutUint64(hdr[24:], uint64(indexOff))
	le.PutUint64(hdr[44:], headerSize)
	if !opt.NoCompress {
		le.PutUint32(hdr[52:], uint32(maxRaw))
	}
	s := out[headerSize : headerSize+summarySize]
	le.PutUint64(s[0:], sum.BasesCovered)
	le.PutUint64(s[8:], math.Float64bits(sum.Min))
	le.PutUint64(s[16:], math.Float64bits(sum.Max))
	le.PutUint64(s[24:], math.Float64bits(sum.Sum))
	le.PutUint64(s[32:], math.Float64bits(sum.SumSquares))

	_, err = w.Write(out)
	return err
}

func (e *encoder) writeChromTree(chroms []Chrom, keySize int) {
	fanout := e.opt.BlockSize
	if len(chroms) < fanout {
		fanout = len(chroms)
	}
	if fanout < 2 {
		fanout = 2
	}
	base := e.pos() + chromTreeHeader
	t := layoutTree(len(chroms), fanout, base, keySize+8, keySize+8)

	e.u32(chromTreeMagic)
	e.u32(uint32(fanout))
	e.u32(uint32(keySize))
	e.u32(8)
	e.u64(uint64(len(chroms)))
	e.u64(0)

	key := make([]byte, keySize)
	putKey := func(name string) {
		for i := range key {
			key[i] = 0
		}
		copy(key, name)
		e.buf.Write(key)
	}
	for lvl := len(t.nodes) - 1; lvl >= 0; lvl-- {
		for j := range t.nodes[lvl] {
			n := t.itemsIn(lvl, j)
			if lvl == 0 {
				e.u8(1)
			} else {
				e.u8(0)
			}
			e.u8(0)
			e.u16(uint16(n))
			for k := 0; k < n; k++ {
				g := j*t.fanout + k
				if lvl == 0 {
					putKey(chroms[g].Name)
					e.u32(chroms[g].ID)
					e.u32(uint32(chroms[g].Size))
					continue
				}
				lo, _ := t.leafSpan(lvl, g)
				putKey(chroms[lo].Name)
				e.u64(uint64(t.nodes[lvl-1][g]))
			}
		}
	}
}

func (e *encoder) writeData(secs []wig.Section, ids map[string]uint32) ([]dataBlock, int, Summary, error) {
	var (
		blocks []dataBlock
		maxRaw int
		sum    = Summary{Min: math.Inf(1), Max: math.Inf(-1)}
		raw    bytes.Buffer
		zbuf   bytes.Buffer
	)
	for _, s := range secs {
		for _, it := range s.Items {
			n := float64(it.End - it.Start)
			v := float64(it.Value)
			sum.BasesCovered += uint64(it.End - it.Start)
			sum.Sum += v * n
			sum.SumSquares += v * v * n
			sum.Min = math.Min(sum.Min, v)
			sum.Max = math.Max(sum.Max, v)
		}
	}
	if sum.BasesCovered == 0 {
		sum.Min, sum.Max = 0, 0
	}

	count := 0
	for _, s := range secs {
		count += (len(s.Items) + e.opt.ItemsPerSlot - 1) / e.opt.ItemsPerSlot
	}
	e.u64(uint64(count))

	for _, s := range secs {
		id := ids[s.Chrom]
		for lo := 0; lo < len(s.Items); lo += e.opt.ItemsPerSlot {
			hi := lo + e.opt.ItemsPerSlot
			if hi > len(s.Items) {
				hi = len(s.Items)
			}
			items := s.Items[lo:hi]
			raw.Reset()
			end := encodeSection(&raw, id, s, items)
			if raw.Len() > maxRaw {
				maxRaw = raw.Len()
			}
			payload := raw.Bytes()
			if !e.opt.NoCompress {
				zbuf.Reset()
				zw := zlib.NewWriter(&zbuf)
				if _, err := zw.Write(payload); err != nil {
					return nil, 0, sum, err
				}
				if err := zw.Close(); err != nil {
					return nil, 0, sum, err
				}
				payload = zbuf.Bytes()
			}
			off := e.pos()
			e.buf.Write(payload)
			blocks = append(blocks, dataBlock{
				chrom: id,
				start: uint32(items[0].Start),
				end:   uint32(end),
				off:   uint64(off),
				size:  uint64(len(payload)),
			})
		}
	}
	return blocks, maxRaw, sum, nil
}

// encodeSection writes one section header plus items and returns the
// largest item end.
func encodeSection(w *bytes.Buffer, chrom uint32, s wig.Section, items []wig.Item) int {
	end := 0
	for _, it := range items {
		if it.End > end {
			end = it.End
		}
	}
	var step, span uint32
	var typ uint8
	switch s.Kind {
	case wig.FixedStep:
		typ, step, span = typeFixedStep, uint32(s.Step), uint32(s.Span)
	case wig.VariableStep:
		typ, span = typeVariableStep, uint32(s.Span)
	default:
		typ = typeBedGraph
	}
	var h [sectionHdrSize]byte
	le.PutUint32(h[0:], chrom)
	le.PutUint32(h[4:], uint32(items[0].Start))
	le.PutUint32(h[8:], uint32(end))
	le.PutUint32(h[12:], step)
	le.PutUint32(h[16:], span)
	h[20] = typ
	le.PutUint16(h[22:], uint16(len(items)))
	w.Write(h[:])

	var b [12]byte
	for _, it := range items {
		switch typ {
		case typeFixedStep:
			le.PutUint32(b[0:], math.Float32bits(it.Value))
			w.Write(b[:4])
		case typeVariableStep:
			le.PutUint32(b[0:], uint32(it.Start))
			le.PutUint32(b[4:], math.Float32bits(it.Value))
			w.Write(b[:8])
		default:
			le.PutUint32(b[0:], uint32(it.Start))
			le.PutUint32(b[4:], uint32(it.End))
			le.PutUint32(b[8:], math.Float32bits(it.Value))
			w.Write(b[:12])
		}
	}
	return end
}

func (e *encoder) writeIndex(blocks []dataBlock, indexOff int64) {
	fanout := e.opt.BlockSize
	t := layoutTree(len(blocks), fanout, indexOff+rTreeHeaderSize, rLeafItemSize, rInnerItemSize)

	// span of leaves [lo, hi): start of the first, max end over all
	span := func(lo, hi int) (sc, sb, ec, eb uint32) {
		if lo >= hi {
			return 0, 0, 0, 0
		}
		sc, sb = blocks[lo].chrom, blocks[lo].start
		for _, b := range blocks[lo:hi] {
			if before(ec, eb, b.chrom, b.end) {
				ec, eb = b.chrom, b.end
			}
		}
		return
	}

	sc, sb, ec, eb := span(0, len(blocks))
	e.u32(rTreeMagic)
	e.u32(uint32(t.fanout))
	e.u64(uint64(len(blocks)))
	e.u32(sc)
	e.u32(sb)
	e.u32(ec)
	e.u32(eb)
	e.u64(uint64(indexOff))
	e.u32(uint32(e.opt.ItemsPerSlot))
	e.u32(0)

	for lvl := len(t.nodes) - 1; lvl >= 0; lvl-- {
		for j := range t.nodes[lvl] {
			n := t.itemsIn(lvl, j)
			if lvl == 0 {
				e.u8(1)
			} else {
				e.u8(0)
			}
			e.u8(0)
			e.u16(uint16(n))
			for k := 0; k < n; k++ {
				g := j*t.fanout + k
				if lvl == 0 {
					b := blocks[g]
					e.u32(b.chrom)
					e.u32(b.start)
					e.u32(b.chrom)
					e.u32(b.end)
					e.u64(b.off)
					e.u64(b.size)
					continue
				}
				sc, sb, ec, eb := span(t.leafSpan(lvl, g))
				e.u32(sc)
				e.u32(sb)
				e.u32(ec)
				e.u32(eb)
				e.u64(uint64(t.nodes[lvl-1][g]))
			}
		}
	}
}
